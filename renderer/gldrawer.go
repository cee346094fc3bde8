package renderer

import (
	"errors"
	"fmt"
	"sync"

	gl "github.com/go-gl/gl/v4.1-core/gl"
	"github.com/richinsley/glhandoff/graphics"
	"github.com/richinsley/glhandoff/handoff"
	"github.com/richinsley/glhandoff/shader"
)

// gl.Init resolves function pointers for whichever context is current; it is
// only needed once per process.
var glInitOnce sync.Once

var errNoTexture = errors.New("frame has no texture")

var quadVertices = []float32{
	-1.0, 1.0, -1.0, -1.0, 1.0, -1.0,
	-1.0, 1.0, 1.0, -1.0, 1.0, 1.0,
}

// GLDrawer draws a frame's texture as a letterboxed full-window quad.
type GLDrawer struct {
	quadVAO uint32
	vbo     uint32
	program uint32

	textureLoc int32
	swizzleLoc int32
	flipLoc    int32

	// Flip mirrors the image vertically. Frames from the sources in this
	// module are stored top row first, so it is on by default.
	Flip bool
}

// InitGL loads the OpenGL function pointers. The context must be current.
func InitGL() error {
	var initErr error
	glInitOnce.Do(func() {
		initErr = gl.Init()
	})
	if initErr != nil {
		return fmt.Errorf("failed to initialize OpenGL: %w", initErr)
	}
	return nil
}

// NewGLDrawer builds the quad and blit program in the bound context.
func NewGLDrawer(b *graphics.Binding) (*GLDrawer, error) {
	b.MustBeBound()
	if err := InitGL(); err != nil {
		return nil, err
	}

	isGLES := false
	if g, ok := b.Context().(interface{ IsGLES() bool }); ok {
		isGLES = g.IsGLES()
	}

	fs, err := shader.TranslateBlit(isGLES)
	if err != nil {
		return nil, err
	}
	d := &GLDrawer{Flip: true}
	d.program, err = newProgram(shader.GenerateVertexShader(isGLES), fs.Code)
	if err != nil {
		return nil, fmt.Errorf("failed to create blit program: %w", err)
	}
	d.textureLoc = uniformLocation(d.program, fs, shader.UniformTexture)
	d.swizzleLoc = uniformLocation(d.program, fs, shader.UniformSwizzle)
	d.flipLoc = uniformLocation(d.program, fs, shader.UniformFlip)

	gl.GenVertexArrays(1, &d.quadVAO)
	gl.GenBuffers(1, &d.vbo)
	gl.BindVertexArray(d.quadVAO)
	gl.BindBuffer(gl.ARRAY_BUFFER, d.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(quadVertices)*4, gl.Ptr(quadVertices), gl.STATIC_DRAW)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointer(0, 2, gl.FLOAT, false, 2*4, gl.PtrOffset(0))
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	gl.BindVertexArray(0)

	return d, nil
}

func uniformLocation(program uint32, fs *shader.Translated, name string) int32 {
	mapped, ok := fs.Uniform(name)
	if !ok {
		return -1
	}
	return gl.GetUniformLocation(program, gl.Str(mapped+"\x00"))
}

// Draw clears the framebuffer and draws f's texture scaled to fit.
func (d *GLDrawer) Draw(b *graphics.Binding, f *handoff.Frame) error {
	b.MustBeBound()
	if f.Texture == 0 {
		return errNoTexture
	}

	fbWidth, fbHeight := b.FramebufferSize()
	gl.Viewport(0, 0, int32(fbWidth), int32(fbHeight))
	gl.ClearColor(0, 0, 0, 1)
	gl.Clear(gl.COLOR_BUFFER_BIT)

	x, y, w, h := fitViewport(fbWidth, fbHeight, f.Width, f.Height)
	gl.Viewport(int32(x), int32(y), int32(w), int32(h))

	gl.UseProgram(d.program)
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, f.Texture)
	if d.textureLoc >= 0 {
		gl.Uniform1i(d.textureLoc, 0)
	}
	if d.swizzleLoc >= 0 {
		gl.Uniform1i(d.swizzleLoc, boolToInt(shader.NeedsSwizzle(f.Format)))
	}
	if d.flipLoc >= 0 {
		gl.Uniform1i(d.flipLoc, boolToInt(d.Flip))
	}
	gl.BindVertexArray(d.quadVAO)
	gl.DrawArrays(gl.TRIANGLES, 0, 6)
	gl.BindVertexArray(0)
	gl.BindTexture(gl.TEXTURE_2D, 0)

	if code := gl.GetError(); code != gl.NO_ERROR {
		return fmt.Errorf("gl error 0x%x drawing %v", code, f)
	}
	return nil
}

// Destroy frees the GL objects. The context must be bound.
func (d *GLDrawer) Destroy(b *graphics.Binding) {
	b.MustBeBound()
	gl.DeleteProgram(d.program)
	gl.DeleteBuffers(1, &d.vbo)
	gl.DeleteVertexArrays(1, &d.quadVAO)
}

// fitViewport returns the largest rectangle with the frame's aspect ratio
// centred in the framebuffer.
func fitViewport(fbWidth, fbHeight, frameWidth, frameHeight int) (x, y, w, h int) {
	if frameWidth <= 0 || frameHeight <= 0 || fbWidth <= 0 || fbHeight <= 0 {
		return 0, 0, fbWidth, fbHeight
	}
	// Compare fbWidth/fbHeight with frameWidth/frameHeight without floats.
	if fbWidth*frameHeight > frameWidth*fbHeight {
		// Framebuffer is wider: pillarbox.
		w = frameWidth * fbHeight / frameHeight
		h = fbHeight
	} else {
		w = fbWidth
		h = frameHeight * fbWidth / frameWidth
	}
	return (fbWidth - w) / 2, (fbHeight - h) / 2, w, h
}

func boolToInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
