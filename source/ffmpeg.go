package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/richinsley/glhandoff/graphics"
	"github.com/richinsley/glhandoff/handoff"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// FFmpegConfig configures the ffmpeg decode source.
type FFmpegConfig struct {
	Input      string
	FFmpegPath string // ffprobe is looked up next to it
	Width      int  // 0 keeps the input width
	Height     int  // 0 keeps the input height
	Realtime   bool // read input at its native rate (-re)
	Frames     int  // 0 decodes until end of input
}

// FFmpegSource decodes a file or URL with an ffmpeg subprocess to raw RGBA
// and publishes one frame at a time.
type FFmpegSource struct {
	base
	cfg FFmpegConfig
}

func NewFFmpegSource(cfg FFmpegConfig) *FFmpegSource {
	return &FFmpegSource{
		base: base{name: "ffmpeg"},
		cfg:  cfg,
	}
}

// videoInfo is what Run needs from ffprobe.
type videoInfo struct {
	Width  int
	Height int
	FPS    float64
}

type probeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
	} `json:"streams"`
}

// parseProbe extracts the first video stream from ffprobe's JSON output.
func parseProbe(out string) (videoInfo, error) {
	var p probeOutput
	if err := json.Unmarshal([]byte(out), &p); err != nil {
		return videoInfo{}, fmt.Errorf("failed to parse probe output: %w", err)
	}
	for _, s := range p.Streams {
		if s.CodecType != "video" {
			continue
		}
		fps := parseRate(s.AvgFrameRate)
		if fps == 0 {
			fps = parseRate(s.RFrameRate)
		}
		return videoInfo{Width: s.Width, Height: s.Height, FPS: fps}, nil
	}
	return videoInfo{}, errors.New("no video stream in input")
}

// parseRate parses an ffprobe rational such as "30000/1001".
func parseRate(r string) float64 {
	num, den, ok := strings.Cut(r, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !ok {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// ffprobePath returns the ffprobe binary that ships with ffmpegPath, or
// "ffprobe" from PATH when no ffmpeg path is configured.
func ffprobePath(ffmpegPath string) string {
	if ffmpegPath == "" {
		return "ffprobe"
	}
	dir, name := filepath.Split(ffmpegPath)
	if strings.Contains(name, "ffmpeg") {
		name = strings.Replace(name, "ffmpeg", "ffprobe", 1)
	} else {
		name = "ffprobe" + filepath.Ext(name)
	}
	return filepath.Join(dir, name)
}

// probe runs ffprobe on the input and returns its JSON output.
func (s *FFmpegSource) probe(ctx context.Context) (string, error) {
	args := ffmpeg.ConvertKwargsToCmdLineArgs(ffmpeg.KwArgs{
		"show_streams": "",
		"of":           "json",
		"v":            "error",
	})
	args = append(args, s.cfg.Input)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, ffprobePath(s.cfg.FFmpegPath), args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w", strings.TrimSpace(stderr.String()), err)
	}
	return stdout.String(), nil
}

func (s *FFmpegSource) Run(ctx context.Context, deliver Deliver) error {
	up, err := s.getUploader()
	if err != nil {
		return err
	}

	probed, err := s.probe(ctx)
	if err != nil {
		return fmt.Errorf("failed to probe %s: %w", s.cfg.Input, err)
	}
	info, err := parseProbe(probed)
	if err != nil {
		return fmt.Errorf("%s: %w", s.cfg.Input, err)
	}
	width, height := info.Width, info.Height
	if s.cfg.Width > 0 && s.cfg.Height > 0 {
		width, height = s.cfg.Width, s.cfg.Height
	}
	log.Printf("source ffmpeg: %s %dx%d at %.3f fps, decoding to %dx%d rgba", s.cfg.Input, info.Width, info.Height, info.FPS, width, height)

	inputArgs := ffmpeg.KwArgs{}
	if s.cfg.Realtime {
		inputArgs["re"] = ""
	}
	outputArgs := ffmpeg.KwArgs{
		"f":       "rawvideo",
		"pix_fmt": "rgba",
		"s":       fmt.Sprintf("%dx%d", width, height),
	}

	pipeReader, pipeWriter := io.Pipe()
	ffmpegCmd := ffmpeg.Input(s.cfg.Input, inputArgs).
		Output("pipe:", outputArgs).
		GlobalArgs("-hide_banner", "-loglevel", "error").
		WithOutput(pipeWriter).
		WithErrorOutput(os.Stderr)
	if s.cfg.FFmpegPath != "" {
		ffmpegCmd = ffmpegCmd.SetFfmpegPath(s.cfg.FFmpegPath)
	}
	cmd := ffmpegCmd.Compile()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		// Unblock the reader once ffmpeg exits.
		pipeWriter.Close()
		waitErr <- err
	}()

	var killOnce sync.Once
	kill := func() {
		killOnce.Do(func() {
			if cmd.Process != nil {
				cmd.Process.Kill()
			}
		})
	}
	stop := context.AfterFunc(ctx, kill)
	defer stop()

	thread := graphics.LockThread("ffmpeg")
	defer thread.Unlock()
	defer up.Release(thread)

	frameSize := width * height * 4
	buf := make([]byte, frameSize)
	var frameDur time.Duration
	if info.FPS > 0 {
		frameDur = time.Duration(float64(time.Second) / info.FPS)
	}

	n := 0
	cancelled := false
	for s.cfg.Frames == 0 || n < s.cfg.Frames {
		if _, err := io.ReadFull(pipeReader, buf); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				log.Printf("source ffmpeg: read: %v", err)
			}
			break
		}
		frame := &handoff.Frame{
			Width:   width,
			Height:  height,
			Format:  handoff.FormatRGBA,
			Seq:     s.nextSeq(),
			PTS:     time.Duration(n) * frameDur,
			TraceID: uuid.New().String(),
			Data:    buf,
		}
		n++
		res := s.publish(thread, up, deliver, frame)
		frame.Data = nil
		if res == handoff.ResultCancelled {
			cancelled = true
			break
		}
	}

	kill()
	pipeReader.Close()
	err = <-waitErr
	log.Printf("source ffmpeg: %d frame(s) decoded from %s", n, s.cfg.Input)

	switch {
	case cancelled:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case s.cfg.Frames > 0 && n >= s.cfg.Frames:
		// Killed on purpose after the frame limit.
		return nil
	case err != nil:
		return fmt.Errorf("ffmpeg exited: %w", err)
	}
	return nil
}
