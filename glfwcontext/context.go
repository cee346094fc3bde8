package glfwcontext

import (
	"fmt"
	"log"
	"runtime"

	glfw "github.com/go-gl/glfw/v3.3/glfw"
)

// Config describes the window to create.
type Config struct {
	Width   int
	Height  int
	Title   string
	Visible bool
	VSync   bool
}

// Context is a GLFW window and its OpenGL context. It implements
// graphics.Context and eventloop.EventSource.
type Context struct {
	window *glfw.Window
	// A map to store functions to be called on key presses.
	keyCallbacks map[glfw.Key]func()
}

// New creates a window with a 4.1 core context. When share is non-nil the new
// context shares objects (textures, buffers) with it. Must be called on the
// thread that called InitGraphics. The context is left detached.
func New(cfg Config, share *Context) (*Context, error) {
	var sharecontext *glfw.Window
	if share != nil {
		sharecontext = share.window
	}
	glfw.DefaultWindowHints()
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)

	if cfg.Visible {
		glfw.WindowHint(glfw.Resizable, glfw.True)
	} else {
		glfw.WindowHint(glfw.Visible, glfw.False)
	}

	title := cfg.Title
	if title == "" {
		title = "glhandoff"
	}
	win, err := glfw.CreateWindow(cfg.Width, cfg.Height, title, nil, sharecontext)
	if err != nil {
		return nil, fmt.Errorf("failed to create window: %w", err)
	}

	c := &Context{
		window:       win,
		keyCallbacks: make(map[glfw.Key]func()),
	}

	// Set the key callback for the window to be the method on our new context instance.
	win.SetKeyCallback(c.glfwKeyCallback)

	// Swap interval is per-context state, so it has to be set while current.
	win.MakeContextCurrent()
	if cfg.VSync {
		glfw.SwapInterval(1)
	} else {
		glfw.SwapInterval(0)
	}
	glfw.DetachCurrentContext()

	return c, nil
}

// NewShared creates a hidden 1x1 window whose context shares objects with
// parent. It serves as the upload context of a pipeline thread.
func NewShared(parent *Context) (*Context, error) {
	c, err := New(Config{Width: 1, Height: 1, Title: "glhandoff-upload"}, parent)
	if err != nil {
		return nil, fmt.Errorf("failed to create shared context: %w", err)
	}
	return c, nil
}

// RegisterKeyCallback allows the main application to register a function to be
// called when a specific key is pressed.
func (c *Context) RegisterKeyCallback(key glfw.Key, f func()) {
	c.keyCallbacks[key] = f
}

func (c *Context) glfwKeyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if key == glfw.KeyEscape && action == glfw.Press {
		w.SetShouldClose(true)
	}

	if action == glfw.Press {
		if callback, ok := c.keyCallbacks[key]; ok {
			callback()
		}
	}
}

// MakeCurrent makes the context current on the calling thread.
func (c *Context) MakeCurrent() {
	c.window.MakeContextCurrent()
}

// DetachCurrent makes no context current on the calling thread.
func (c *Context) DetachCurrent() {
	glfw.DetachCurrentContext()
}

// IsCurrent asks GLFW whether this window's context is current on the calling
// thread.
func (c *Context) IsCurrent() bool {
	return glfw.GetCurrentContext() == c.window
}

func (c *Context) IsGLES() bool {
	// GLFW does not provide a direct way to check if the context is GLES.
	return false
}

func (c *Context) SwapBuffers() {
	c.window.SwapBuffers()
}

func (c *Context) GetFramebufferSize() (int, int) {
	return c.window.GetFramebufferSize()
}

// Shutdown destroys the window and its context.
func (c *Context) Shutdown() {
	c.window.Destroy()
}

func (c *Context) ShouldClose() bool {
	return c.window.ShouldClose()
}

// RequestClose flags the window as closing; the event loop notices on its
// next poll.
func (c *Context) RequestClose() {
	c.window.SetShouldClose(true)
}

// PollEvents processes pending window system events. Main thread only.
func (c *Context) PollEvents() {
	glfw.PollEvents()
}

// InitGraphics initializes the main graphics subsystem (GLFW). Must be called from the main thread.
func InitGraphics() error {
	runtime.LockOSThread()
	if err := glfw.Init(); err != nil {
		return err
	}
	log.Printf("GLFW Initialized")
	return nil
}

// TerminateGraphics shuts down the graphics subsystem. Must be called from the main thread.
func TerminateGraphics() {
	glfw.Terminate()
	log.Printf("GLFW Terminated")
}
