package source

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/richinsley/glhandoff/graphics"
	"github.com/richinsley/glhandoff/handoff"
)

// PatternConfig configures the synthetic source.
type PatternConfig struct {
	Width  int
	Height int
	FPS    float64 // <= 0 produces frames as fast as they are rendered
	Frames int     // 0 runs until cancelled
}

// PatternSource emits scrolling colour bars. It needs no media stack and is
// used for smoke tests.
type PatternSource struct {
	base
	cfg PatternConfig
}

func NewPatternSource(cfg PatternConfig) *PatternSource {
	return &PatternSource{
		base: base{name: "pattern"},
		cfg:  cfg,
	}
}

var barColors = [8][4]byte{
	{235, 235, 235, 255}, // white
	{235, 235, 16, 255},  // yellow
	{16, 235, 235, 255},  // cyan
	{16, 235, 16, 255},   // green
	{235, 16, 235, 255},  // magenta
	{235, 16, 16, 255},   // red
	{16, 16, 235, 255},   // blue
	{16, 16, 16, 255},    // black
}

// fillBars draws eight vertical RGBA bars shifted by seq pixels.
func fillBars(data []byte, width, height int, seq uint64) {
	shift := int(seq % uint64(width))
	row := data[:width*4]
	for x := 0; x < width; x++ {
		c := barColors[((x+shift)%width)*len(barColors)/width]
		copy(row[x*4:], c[:])
	}
	for y := 1; y < height; y++ {
		copy(data[y*width*4:(y+1)*width*4], row)
	}
}

func (p *PatternSource) Run(ctx context.Context, deliver Deliver) error {
	up, err := p.getUploader()
	if err != nil {
		return err
	}

	thread := graphics.LockThread("pattern")
	defer thread.Unlock()
	defer up.Release(thread)

	var interval time.Duration
	var tick <-chan time.Time
	if p.cfg.FPS > 0 {
		interval = time.Duration(float64(time.Second) / p.cfg.FPS)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	data := make([]byte, p.cfg.Width*p.cfg.Height*4)
	start := time.Now()
	log.Printf("source pattern: %dx%d at %.2f fps", p.cfg.Width, p.cfg.Height, p.cfg.FPS)

	for n := 0; p.cfg.Frames == 0 || n < p.cfg.Frames; n++ {
		seq := p.nextSeq()
		fillBars(data, p.cfg.Width, p.cfg.Height, seq)

		pts := time.Since(start)
		if interval > 0 {
			pts = time.Duration(n) * interval
		}
		frame := &handoff.Frame{
			Width:   p.cfg.Width,
			Height:  p.cfg.Height,
			Format:  handoff.FormatRGBA,
			Seq:     seq,
			PTS:     pts,
			TraceID: uuid.New().String(),
			Data:    data,
		}
		res := p.publish(thread, up, deliver, frame)
		frame.Data = nil
		if res == handoff.ResultCancelled {
			return nil
		}

		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
	}
	log.Printf("source pattern: produced %d frame(s)", p.cfg.Frames)
	return nil
}
