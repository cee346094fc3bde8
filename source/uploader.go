package source

import (
	"fmt"

	gl "github.com/go-gl/gl/v4.1-core/gl"
	"github.com/richinsley/glhandoff/graphics"
	"github.com/richinsley/glhandoff/handoff"
	"github.com/richinsley/glhandoff/renderer"
)

// Uploader moves a frame's pixels into GPU memory visible to the display
// context and sets Frame.Texture.
type Uploader interface {
	Upload(t *graphics.Thread, f *handoff.Frame) error
	Release(t *graphics.Thread)
}

// GLUploader writes frames into one texture of the shared upload context.
// Only one frame is in flight at a time, so a single texture suffices.
type GLUploader struct {
	bridge  *graphics.Bridge
	texture uint32
	width   int
	height  int
	format  handoff.PixelFormat
}

func NewGLUploader(ctx graphics.Context) *GLUploader {
	return &GLUploader{bridge: graphics.NewBridge("upload", ctx, nil)}
}

func (u *GLUploader) Upload(t *graphics.Thread, f *handoff.Frame) error {
	need := f.Width * f.Height * f.Format.BytesPerPixel()
	if need == 0 || len(f.Data) < need {
		return fmt.Errorf("frame data is %d bytes, need %d", len(f.Data), need)
	}

	b, err := u.bridge.Bind(t)
	if err != nil {
		return err
	}
	defer b.Release()
	if err := renderer.InitGL(); err != nil {
		return err
	}

	if u.texture == 0 {
		gl.GenTextures(1, &u.texture)
		gl.BindTexture(gl.TEXTURE_2D, u.texture)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	} else {
		gl.BindTexture(gl.TEXTURE_2D, u.texture)
	}

	pixelFormat := uint32(gl.RGBA)
	if f.Format == handoff.FormatRGB {
		pixelFormat = gl.RGB
	}
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
	if f.Width != u.width || f.Height != u.height || f.Format != u.format {
		gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(f.Width), int32(f.Height), 0, pixelFormat, gl.UNSIGNED_BYTE, nil)
		u.width, u.height, u.format = f.Width, f.Height, f.Format
	}
	gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, int32(f.Width), int32(f.Height), pixelFormat, gl.UNSIGNED_BYTE, gl.Ptr(f.Data))
	gl.BindTexture(gl.TEXTURE_2D, 0)

	// The display context samples the texture next; it must be complete.
	gl.Finish()
	if code := gl.GetError(); code != gl.NO_ERROR {
		return fmt.Errorf("gl error 0x%x uploading %v", code, f)
	}

	f.Texture = u.texture
	return nil
}

// Release deletes the texture. t must be able to bind the upload context.
func (u *GLUploader) Release(t *graphics.Thread) {
	if u.texture != 0 {
		if b, err := u.bridge.Bind(t); err == nil {
			gl.DeleteTextures(1, &u.texture)
			b.Release()
		}
		u.texture = 0
	}
	u.width, u.height = 0, 0
}
