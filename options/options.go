package options

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Source kinds.
const (
	SourcePattern = "pattern"
	SourceGst     = "gst"
	SourceFFmpeg  = "ffmpeg"
)

type PlayerOptions struct {
	ConfigFile   *string
	Help         *bool
	Source       *string        // pattern, gst or ffmpeg
	Input        *string        // file or URL for the ffmpeg source
	GstLaunch    *string        // upstream gst-launch description for the gst source
	FFmpegPath   *string        // Path to ffmpeg executable
	Width        *int           // frame size; 0 keeps the input size where the source allows it
	Height       *int
	FPS          *float64       // pattern and gst rate; 0 paces on render only
	Frames       *int           // stop after this many frames; 0 is unlimited
	Realtime     *bool          // read ffmpeg input at native rate
	Headless     *bool          // EGL pbuffer instead of a window (linux)
	VSync        *bool
	PollInterval *time.Duration // idle event polling interval

	set map[string]bool // flag names given on the command line or in the file
}

// fileOptions mirrors PlayerOptions for YAML. Nil fields were absent from the
// file.
type fileOptions struct {
	Source       *string        `yaml:"source"`
	Input        *string        `yaml:"input"`
	GstLaunch    *string        `yaml:"gst_launch"`
	FFmpegPath   *string        `yaml:"ffmpeg_path"`
	Width        *int           `yaml:"width"`
	Height       *int           `yaml:"height"`
	FPS          *float64       `yaml:"fps"`
	Frames       *int           `yaml:"frames"`
	Realtime     *bool          `yaml:"realtime"`
	Headless     *bool          `yaml:"headless"`
	VSync        *bool          `yaml:"vsync"`
	PollInterval *time.Duration `yaml:"poll_interval"`
}

// Register defines the player flags on fs.
func Register(fs *flag.FlagSet) *PlayerOptions {
	return &PlayerOptions{
		ConfigFile:   fs.String("config", "", "YAML file with option defaults; explicit flags win"),
		Help:         fs.Bool("help", false, "Show help message"),
		Source:       fs.String("source", SourcePattern, "Frame source: pattern, gst or ffmpeg"),
		Input:        fs.String("input", "", "Input file or URL for the ffmpeg source"),
		GstLaunch:    fs.String("gst", "", "Upstream gst-launch description for the gst source"),
		FFmpegPath:   fs.String("ffmpeg", "", "Path to ffmpeg executable"),
		Width:        fs.Int("width", 1280, "Frame width"),
		Height:       fs.Int("height", 720, "Frame height"),
		FPS:          fs.Float64("fps", 30, "Frames per second for the pattern and gst sources"),
		Frames:       fs.Int("frames", 0, "Stop after this many frames (0 = unlimited)"),
		Realtime:     fs.Bool("realtime", true, "Read ffmpeg input at its native frame rate"),
		Headless:     fs.Bool("headless", false, "Render into an EGL pbuffer instead of a window"),
		VSync:        fs.Bool("vsync", true, "Synchronize buffer swaps with the display"),
		PollInterval: fs.Duration("poll", 10*time.Millisecond, "Idle event polling interval"),
	}
}

// Parse parses args into a fresh set of options and applies the -config file
// beneath any flags given explicitly.
func Parse(fs *flag.FlagSet, args []string) (*PlayerOptions, error) {
	o := Register(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	o.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	if *o.ConfigFile != "" {
		explicit := make(map[string]bool, len(o.set))
		for name := range o.set {
			explicit[name] = true
		}
		if err := o.LoadFile(*o.ConfigFile, explicit); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// LoadFile overlays values from a YAML file. Options whose flag name is in
// skip are left alone.
func (o *PlayerOptions) LoadFile(path string, skip map[string]bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	var f fileOptions
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	overlay(o, "source", o.Source, f.Source, skip)
	overlay(o, "input", o.Input, f.Input, skip)
	overlay(o, "gst", o.GstLaunch, f.GstLaunch, skip)
	overlay(o, "ffmpeg", o.FFmpegPath, f.FFmpegPath, skip)
	overlay(o, "width", o.Width, f.Width, skip)
	overlay(o, "height", o.Height, f.Height, skip)
	overlay(o, "fps", o.FPS, f.FPS, skip)
	overlay(o, "frames", o.Frames, f.Frames, skip)
	overlay(o, "realtime", o.Realtime, f.Realtime, skip)
	overlay(o, "headless", o.Headless, f.Headless, skip)
	overlay(o, "vsync", o.VSync, f.VSync, skip)
	overlay(o, "poll", o.PollInterval, f.PollInterval, skip)
	return nil
}

// overlay copies a file value into dst unless the flag name is skipped, and
// records the option as set.
func overlay[T any](o *PlayerOptions, name string, dst, src *T, skip map[string]bool) {
	if skip[name] || src == nil {
		return
	}
	*dst = *src
	if o.set == nil {
		o.set = make(map[string]bool)
	}
	o.set[name] = true
}

// IsSet reports whether the option with the given flag name was given on the
// command line or in the config file rather than left at its default.
func (o *PlayerOptions) IsSet(name string) bool {
	return o.set[name]
}

// FrameSize is the size sources should produce. The ffmpeg source keeps the
// input size (0x0) unless a size was given explicitly.
func (o *PlayerOptions) FrameSize() (int, int) {
	if *o.Source == SourceFFmpeg && !o.IsSet("width") && !o.IsSet("height") {
		return 0, 0
	}
	return *o.Width, *o.Height
}

// Validate checks option combinations.
func (o *PlayerOptions) Validate() error {
	var errs []error
	switch *o.Source {
	case SourcePattern, SourceGst:
		if *o.Width <= 0 || *o.Height <= 0 {
			errs = append(errs, fmt.Errorf("%s source needs a positive size, got %dx%d", *o.Source, *o.Width, *o.Height))
		}
	case SourceFFmpeg:
		if *o.Input == "" {
			errs = append(errs, errors.New("ffmpeg source needs -input"))
		}
		if *o.Width < 0 || *o.Height < 0 {
			errs = append(errs, fmt.Errorf("negative size %dx%d", *o.Width, *o.Height))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown source %q", *o.Source))
	}
	if *o.FPS < 0 {
		errs = append(errs, fmt.Errorf("negative fps %v", *o.FPS))
	}
	if *o.Frames < 0 {
		errs = append(errs, fmt.Errorf("negative frame limit %d", *o.Frames))
	}
	if *o.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval must be positive, got %v", *o.PollInterval))
	}
	return errors.Join(errs...)
}
