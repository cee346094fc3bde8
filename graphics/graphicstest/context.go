// Package graphicstest provides an in-memory graphics.Context for tests that
// cannot open a display.
package graphicstest

import "sync"

// Context records how it is driven. It never touches a native layer.
type Context struct {
	mu       sync.Mutex
	current  bool
	lost     bool
	width    int
	height   int
	makes    int
	detaches int
	swaps    int
	shutdown bool
}

func NewContext(width, height int) *Context {
	return &Context{width: width, height: height}
}

func (c *Context) MakeCurrent() {
	c.mu.Lock()
	c.current = true
	c.makes++
	c.mu.Unlock()
}

func (c *Context) DetachCurrent() {
	c.mu.Lock()
	c.current = false
	c.detaches++
	c.mu.Unlock()
}

func (c *Context) IsCurrent() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current && !c.lost
}

func (c *Context) SwapBuffers() {
	c.mu.Lock()
	c.swaps++
	c.mu.Unlock()
}

func (c *Context) GetFramebufferSize() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.width, c.height
}

func (c *Context) Shutdown() {
	c.mu.Lock()
	c.shutdown = true
	c.mu.Unlock()
}

// SetLost simulates the display surface being torn down underneath the
// context: MakeCurrent still succeeds but the native query reports nothing
// current.
func (c *Context) SetLost(lost bool) {
	c.mu.Lock()
	c.lost = lost
	c.mu.Unlock()
}

// Current reports whether MakeCurrent is in effect.
func (c *Context) Current() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Counts returns the MakeCurrent, DetachCurrent and SwapBuffers call counts.
func (c *Context) Counts() (makes, detaches, swaps int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.makes, c.detaches, c.swaps
}

func (c *Context) IsShutdown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shutdown
}
