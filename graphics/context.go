package graphics

// Context defines the interface for a native OpenGL context that can be made
// current on one thread at a time.
type Context interface {
	MakeCurrent()
	// DetachCurrent makes no context current on the calling thread.
	DetachCurrent()
	// IsCurrent asks the native layer whether this context is current on the
	// calling thread. It reports false when the surface was torn down.
	IsCurrent() bool
	SwapBuffers()
	GetFramebufferSize() (int, int)
	Shutdown()
}
