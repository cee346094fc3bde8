package source

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/richinsley/glhandoff/graphics"
	"github.com/richinsley/glhandoff/handoff"
)

type fakeUploader struct {
	mu       sync.Mutex
	uploads  int
	released int
	failSeq  uint64
}

func (u *fakeUploader) Upload(t *graphics.Thread, f *handoff.Frame) error {
	if t == nil {
		return errors.New("upload without a locked thread")
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if f.Seq == u.failSeq {
		return errors.New("texture allocation failed")
	}
	u.uploads++
	f.Texture = 42
	return nil
}

func (u *fakeUploader) Release(t *graphics.Thread) {
	u.mu.Lock()
	u.released++
	u.mu.Unlock()
}

type recorder struct {
	mu       sync.Mutex
	frames   []handoff.Frame
	cancelAt uint64
}

func (r *recorder) deliver(f *handoff.Frame) handoff.WaitResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *f
	cp.Data = append([]byte(nil), f.Data[:4]...)
	r.frames = append(r.frames, cp)
	if r.cancelAt != 0 && f.Seq >= r.cancelAt {
		return handoff.ResultCancelled
	}
	return handoff.ResultRendered
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func TestPatternSourceDeliversFrames(t *testing.T) {
	src := NewPatternSource(PatternConfig{Width: 16, Height: 8, Frames: 5})
	up := &fakeUploader{}
	src.SetUploader(up)
	rec := &recorder{}

	if err := src.Run(context.Background(), rec.deliver); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(rec.frames) != 5 {
		t.Fatalf("expected 5 frames, got %d", len(rec.frames))
	}
	traces := make(map[string]bool)
	for i, f := range rec.frames {
		if f.Seq != uint64(i+1) {
			t.Errorf("frame %d has seq %d", i, f.Seq)
		}
		if f.Texture != 42 {
			t.Errorf("frame %d delivered before upload", f.Seq)
		}
		if f.Width != 16 || f.Height != 8 || f.Format != handoff.FormatRGBA {
			t.Errorf("frame %d: unexpected geometry %s", f.Seq, f.String())
		}
		if traces[f.TraceID] {
			t.Errorf("duplicate trace id %s", f.TraceID)
		}
		traces[f.TraceID] = true
	}
	if up.released != 1 {
		t.Errorf("uploader released %d times", up.released)
	}
}

func TestPatternSourceStopsOnCancelled(t *testing.T) {
	src := NewPatternSource(PatternConfig{Width: 4, Height: 4})
	src.SetUploader(&fakeUploader{})
	rec := &recorder{cancelAt: 3}

	done := make(chan error, 1)
	go func() { done <- src.Run(context.Background(), rec.deliver) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("source kept publishing after a cancelled delivery")
	}
	if n := rec.count(); n != 3 {
		t.Errorf("expected 3 deliveries, got %d", n)
	}
}

func TestPatternSourceContextCancel(t *testing.T) {
	src := NewPatternSource(PatternConfig{Width: 4, Height: 4, FPS: 500})
	src.SetUploader(&fakeUploader{})
	rec := &recorder{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, rec.deliver) }()

	for rec.count() < 3 {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run ignored cancellation")
	}
}

func TestUploadFailureSkipsFrame(t *testing.T) {
	src := NewPatternSource(PatternConfig{Width: 4, Height: 4, Frames: 3})
	src.SetUploader(&fakeUploader{failSeq: 2})
	rec := &recorder{}

	if err := src.Run(context.Background(), rec.deliver); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rec.frames) != 2 || rec.frames[0].Seq != 1 || rec.frames[1].Seq != 3 {
		t.Errorf("expected frames 1 and 3, got %d frame(s)", len(rec.frames))
	}
}

func TestRunWithoutContext(t *testing.T) {
	sources := map[string]Source{
		"pattern": NewPatternSource(PatternConfig{Width: 4, Height: 4}),
		"ffmpeg":  NewFFmpegSource(FFmpegConfig{Input: "in.mp4"}),
		"gst":     NewGstSource(GstConfig{Width: 4, Height: 4}),
	}
	for name, src := range sources {
		t.Run(name, func(t *testing.T) {
			err := src.Run(context.Background(), func(*handoff.Frame) handoff.WaitResult {
				t.Fatal("delivered without an upload context")
				return handoff.ResultCancelled
			})
			if !errors.Is(err, ErrNoContext) {
				t.Errorf("expected ErrNoContext, got %v", err)
			}
		})
	}
}

func TestUseContextOnce(t *testing.T) {
	src := NewPatternSource(PatternConfig{Width: 4, Height: 4})
	if err := src.UseContext(nil); !errors.Is(err, ErrNoContext) {
		t.Errorf("nil context: expected ErrNoContext, got %v", err)
	}
}

func TestFillBars(t *testing.T) {
	const w, h = 16, 2
	data := make([]byte, w*h*4)
	fillBars(data, w, h, 0)

	pixel := func(x, y int) [4]byte {
		var p [4]byte
		copy(p[:], data[(y*w+x)*4:])
		return p
	}
	if got := pixel(0, 0); got != barColors[0] {
		t.Errorf("first pixel %v, want white", got)
	}
	if got := pixel(w-1, 0); got != barColors[7] {
		t.Errorf("last pixel %v, want black", got)
	}
	for x := 0; x < w; x++ {
		if pixel(x, 0) != pixel(x, 1) {
			t.Fatalf("rows differ at x=%d", x)
		}
	}

	// Scrolling by one bar width moves yellow into the first column.
	fillBars(data, w, h, w/8)
	if got := pixel(0, 0); got != barColors[1] {
		t.Errorf("scrolled first pixel %v, want yellow", got)
	}
}

func TestParseProbe(t *testing.T) {
	out := `{"streams":[
		{"codec_type":"audio","sample_rate":"48000"},
		{"codec_type":"video","width":1920,"height":1080,"avg_frame_rate":"30000/1001","r_frame_rate":"30000/1001"}
	]}`
	info, err := parseProbe(out)
	if err != nil {
		t.Fatalf("parseProbe: %v", err)
	}
	if info.Width != 1920 || info.Height != 1080 {
		t.Errorf("unexpected size %dx%d", info.Width, info.Height)
	}
	if info.FPS < 29.96 || info.FPS > 29.98 {
		t.Errorf("unexpected fps %f", info.FPS)
	}

	if _, err := parseProbe(`{"streams":[{"codec_type":"audio"}]}`); err == nil {
		t.Error("expected an error for audio-only input")
	}
	if _, err := parseProbe("not json"); err == nil {
		t.Error("expected an error for malformed output")
	}
}

func TestParseRate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"25/1", 25},
		{"24", 24},
		{"0/0", 0},
		{"", 0},
		{"x/1", 0},
	}
	for _, tt := range tests {
		if got := parseRate(tt.in); got != tt.want {
			t.Errorf("parseRate(%q) = %f, want %f", tt.in, got, tt.want)
		}
	}
}

func TestFFprobePath(t *testing.T) {
	tests := []struct {
		ffmpeg string
		want   string
	}{
		{"", "ffprobe"},
		{"ffmpeg", "ffprobe"},
		{"/opt/ffmpeg7/bin/ffmpeg", "/opt/ffmpeg7/bin/ffprobe"},
		{"/usr/local/bin/ffmpeg-6.1", "/usr/local/bin/ffprobe-6.1"},
		{"/opt/media/encoder", "/opt/media/ffprobe"},
	}
	for _, tt := range tests {
		if got := ffprobePath(tt.ffmpeg); got != tt.want {
			t.Errorf("ffprobePath(%q) = %q, want %q", tt.ffmpeg, got, tt.want)
		}
	}
}

func TestGstFramerate(t *testing.T) {
	tests := []struct {
		fps      float64
		num, den int
	}{
		{30, 30, 1},
		{25, 25, 1},
		{29.97, 30000, 1001},
		{23.976, 24000, 1001},
		{59.94, 60000, 1001},
		{12.5, 25, 2},
	}
	for _, tt := range tests {
		if num, den := framerate(tt.fps); num != tt.num || den != tt.den {
			t.Errorf("framerate(%v) = %d/%d, want %d/%d", tt.fps, num, den, tt.num, tt.den)
		}
	}

	src := NewGstSource(GstConfig{Width: 640, Height: 360, FPS: 29.97})
	if desc := src.Description(); !strings.Contains(desc, "framerate=30000/1001") {
		t.Errorf("description %q lacks the NTSC rate", desc)
	}
}

func TestGstDescription(t *testing.T) {
	src := NewGstSource(GstConfig{Width: 640, Height: 360, FPS: 30})
	desc := src.Description()
	for _, part := range []string{
		DefaultGstLaunch,
		"videorate",
		"format=RGBA,width=640,height=360,framerate=30/1",
		"appsink name=sink",
	} {
		if !strings.Contains(desc, part) {
			t.Errorf("description %q lacks %q", desc, part)
		}
	}

	src = NewGstSource(GstConfig{Launch: "uridecodebin uri=file:///a.mp4", Width: 2, Height: 2})
	if desc := src.Description(); strings.Contains(desc, "videorate") || !strings.HasPrefix(desc, "uridecodebin") {
		t.Errorf("unexpected description %q", desc)
	}
}
