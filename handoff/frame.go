package handoff

import (
	"fmt"
	"time"
)

// PixelFormat is the layout of a frame's pixels.
type PixelFormat int

const (
	FormatRGBA PixelFormat = iota
	FormatRGB
	FormatBGRA
)

func (f PixelFormat) String() string {
	switch f {
	case FormatRGBA:
		return "RGBA"
	case FormatRGB:
		return "RGB"
	case FormatBGRA:
		return "BGRA"
	default:
		return fmt.Sprintf("PixelFormat(%d)", int(f))
	}
}

// BytesPerPixel returns the packed size of one pixel.
func (f PixelFormat) BytesPerPixel() int {
	if f == FormatRGB {
		return 3
	}
	return 4
}

// Frame is a GPU-resident decoded image. The source that publishes it owns it;
// the render side only reads it for the duration of one render call.
type Frame struct {
	Texture uint32
	Width   int
	Height  int
	Format  PixelFormat

	Seq     uint64
	PTS     time.Duration
	TraceID string

	// Data is the CPU mapping of the frame's backing memory while the source
	// holds it mapped. It may be nil.
	Data []byte
}

func (f *Frame) String() string {
	return fmt.Sprintf("frame seq=%d tex=%d %dx%d %s trace=%s", f.Seq, f.Texture, f.Width, f.Height, f.Format, f.TraceID)
}
