//go:build !linux

package headless

import (
	"errors"
)

var errUnsupported = errors.New("egl headless rendering is not supported on this platform")

// Headless is unavailable off linux; the constructors always fail.
type Headless struct{}

func NewHeadless(width, height int) (*Headless, error) {
	return nil, errUnsupported
}

func NewShared(parent *Headless) (*Headless, error) {
	return nil, errUnsupported
}

func (h *Headless) MakeCurrent()                   {}
func (h *Headless) DetachCurrent()                 {}
func (h *Headless) IsCurrent() bool                { return false }
func (h *Headless) IsGLES() bool                   { return true }
func (h *Headless) GetFramebufferSize() (int, int) { return 0, 0 }
func (h *Headless) SwapBuffers()                   {}
func (h *Headless) Shutdown()                      {}
