package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	glfw "github.com/go-gl/glfw/v3.3/glfw"
	"github.com/richinsley/glhandoff/glfwcontext"
	"github.com/richinsley/glhandoff/graphics"
	"github.com/richinsley/glhandoff/headless"
	"github.com/richinsley/glhandoff/options"
	"github.com/richinsley/glhandoff/player"
	"github.com/richinsley/glhandoff/source"
)

const (
	defaultWidth  = 1280
	defaultHeight = 720
)

func init() {
	// The display context and the event loop live on the main thread.
	runtime.LockOSThread()
}

func newSource(opts *options.PlayerOptions) source.Source {
	width, height := opts.FrameSize()
	switch *opts.Source {
	case options.SourceGst:
		return source.NewGstSource(source.GstConfig{
			Launch: *opts.GstLaunch,
			Width:  width,
			Height: height,
			FPS:    *opts.FPS,
		})
	case options.SourceFFmpeg:
		return source.NewFFmpegSource(source.FFmpegConfig{
			Input:      *opts.Input,
			FFmpegPath: *opts.FFmpegPath,
			Width:      width,
			Height:     height,
			Realtime:   *opts.Realtime,
			Frames:     *opts.Frames,
		})
	default:
		return source.NewPatternSource(source.PatternConfig{
			Width:  width,
			Height: height,
			FPS:    *opts.FPS,
			Frames: *opts.Frames,
		})
	}
}

func windowSize(opts *options.PlayerOptions) (int, int) {
	if *opts.Width > 0 && *opts.Height > 0 {
		return *opts.Width, *opts.Height
	}
	return defaultWidth, defaultHeight
}

// headlessConfig builds EGL pbuffer contexts.
func headlessConfig(opts *options.PlayerOptions, cfg *player.Config) {
	width, height := windowSize(opts)
	display, err := headless.NewHeadless(width, height)
	if err != nil {
		cfg.DisplayErr = err
		return
	}
	cfg.Display = display
	upload, err := headless.NewShared(display)
	if err != nil {
		log.Printf("Warning: no shared upload context: %v", err)
		return
	}
	cfg.Upload = upload
}

// windowConfig builds the GLFW window and its shared upload context.
func windowConfig(opts *options.PlayerOptions, cfg *player.Config) {
	width, height := windowSize(opts)
	display, err := glfwcontext.New(glfwcontext.Config{
		Width:   width,
		Height:  height,
		Title:   fmt.Sprintf("glhandoff - %s", *opts.Source),
		Visible: true,
		VSync:   *opts.VSync,
	}, nil)
	if err != nil {
		cfg.DisplayErr = err
		return
	}
	display.RegisterKeyCallback(glfw.KeyQ, display.RequestClose)
	cfg.Display = display
	cfg.Events = display

	upload, err := glfwcontext.NewShared(display)
	if err != nil {
		log.Printf("Warning: no shared upload context: %v", err)
		return
	}
	cfg.Upload = upload
}

func run(opts *options.PlayerOptions) error {
	thread := graphics.LockThread("main")
	defer thread.Unlock()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := player.Config{
		Source:       newSource(opts),
		PollInterval: *opts.PollInterval,
	}
	if *opts.Headless {
		headlessConfig(opts, &cfg)
	} else {
		if err := glfwcontext.InitGraphics(); err != nil {
			return fmt.Errorf("failed to initialize GLFW: %w", err)
		}
		defer glfwcontext.TerminateGraphics()
		windowConfig(opts, &cfg)
	}

	log.Printf("Starting %s source...", *opts.Source)
	return player.New(thread, cfg).Run(ctx)
}

func main() {
	opts, err := options.Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("Error parsing options: %v", err)
	}
	if *opts.Help {
		fmt.Println("Frame handoff player")
		flag.PrintDefaults()
		return
	}
	if err := opts.Validate(); err != nil {
		log.Fatalf("Invalid options: %v", err)
	}

	if err := run(opts); err != nil {
		log.Fatalf("Player failed: %v", err)
	}
	log.Println("Player finished")
}
