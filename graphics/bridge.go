package graphics

import (
	"errors"
	"fmt"
	"log"
	"sync"
)

var (
	// ErrContextUnavailable is returned when the native context could not be
	// created or shared at setup time.
	ErrContextUnavailable = errors.New("graphics: context unavailable")
	// ErrContextBusy is returned when a context is bound on another thread.
	ErrContextBusy = errors.New("graphics: context bound on another thread")
	// ErrForeignRegistered is returned by a second RegisterForeign call.
	ErrForeignRegistered = errors.New("graphics: foreign context already registered")
)

// PreconditionError is the panic value raised when a binding is used after it
// lost the context. It marks a programming error, never a driver failure.
type PreconditionError struct {
	Bridge string
	Op     string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("graphics: %s on %s while unbound", e.Op, e.Bridge)
}

// ForeignContextUser is implemented by pipeline collaborators that produce
// frames against a context shared with the display context.
type ForeignContextUser interface {
	UseContext(ctx Context) error
}

// BridgeStats is a snapshot of a bridge's binding counters.
type BridgeStats struct {
	Binds   uint64
	Unbinds uint64
	Bound   bool
}

// Bridge references a native context owned elsewhere and toggles its
// association with the calling thread. Only one thread may hold it at a time.
type Bridge struct {
	name     string
	ctx      Context
	setupErr error
	foreign  Context

	mu         sync.Mutex
	holder     *Thread
	depth      int
	gen        uint64
	binds      uint64
	unbinds    uint64
	registered bool
}

// NewBridge wraps ctx. setupErr is the error, if any, from creating the native
// context; a bridge built from a failed setup refuses every Bind.
func NewBridge(name string, ctx Context, setupErr error) *Bridge {
	if ctx == nil && setupErr == nil {
		setupErr = errors.New("no native context")
	}
	return &Bridge{
		name:     name,
		ctx:      ctx,
		setupErr: setupErr,
	}
}

// WithForeign attaches the context shared with this one that the pipeline
// should produce frames against.
func (b *Bridge) WithForeign(foreign Context) *Bridge {
	b.mu.Lock()
	b.foreign = foreign
	b.mu.Unlock()
	return b
}

// Name returns the bridge name used in logs.
func (b *Bridge) Name() string { return b.name }

// Check reports whether the native context was created successfully.
func (b *Bridge) Check() error {
	if b.setupErr != nil {
		return fmt.Errorf("%w: %s: %v", ErrContextUnavailable, b.name, b.setupErr)
	}
	return nil
}

// Bind makes the context current on t and returns the guard that undoes it.
// If t already holds a different bridge, that bridge is unbound first.
// Binding again on the holder thread nests; each Binding must be released.
func (b *Bridge) Bind(t *Thread) (*Binding, error) {
	if err := b.Check(); err != nil {
		return nil, err
	}
	if t == nil {
		panic("graphics: Bind on nil thread")
	}

	if prev := t.Current(); prev != nil && prev != b {
		prev.forceUnbind(t)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.holder != nil && b.holder != t {
		return nil, fmt.Errorf("%w: %s held by %s", ErrContextBusy, b.name, b.holder)
	}
	if b.holder == t {
		b.depth++
		return &Binding{bridge: b, thread: t, gen: b.gen}, nil
	}

	b.ctx.MakeCurrent()
	b.gen++
	b.holder = t
	b.depth = 1
	b.binds++
	t.setCurrent(b)
	return &Binding{bridge: b, thread: t, gen: b.gen}, nil
}

func (b *Bridge) release(t *Thread, gen uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.holder != t || b.gen != gen {
		return
	}
	b.depth--
	if b.depth > 0 {
		return
	}
	b.unbindLocked(t)
}

func (b *Bridge) forceUnbind(t *Thread) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.holder != t {
		return
	}
	b.unbindLocked(t)
}

func (b *Bridge) unbindLocked(t *Thread) {
	b.ctx.DetachCurrent()
	b.holder = nil
	b.depth = 0
	b.unbinds++
	t.clearCurrent(b)
}

// Holder returns the thread the context is bound on, or nil.
func (b *Bridge) Holder() *Thread {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.holder
}

func (b *Bridge) Stats() BridgeStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BridgeStats{
		Binds:   b.binds,
		Unbinds: b.unbinds,
		Bound:   b.holder != nil,
	}
}

// RegisterForeign hands the foreign context to the pipeline. It is a one-time
// setup call.
func (b *Bridge) RegisterForeign(user ForeignContextUser) error {
	if err := b.Check(); err != nil {
		return err
	}

	b.mu.Lock()
	if b.foreign == nil {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s has no foreign context", ErrContextUnavailable, b.name)
	}
	if b.registered {
		b.mu.Unlock()
		return ErrForeignRegistered
	}
	b.registered = true
	foreign := b.foreign
	b.mu.Unlock()

	if err := user.UseContext(foreign); err != nil {
		return fmt.Errorf("graphics: foreign context registration for %s: %w", b.name, err)
	}
	log.Printf("graphics: registered foreign context for %s", b.name)
	return nil
}

// Destroy shuts down the wrapped contexts. It refuses while a thread still
// holds the context.
func (b *Bridge) Destroy() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.holder != nil {
		return fmt.Errorf("%w: cannot destroy %s", ErrContextBusy, b.name)
	}
	if b.foreign != nil {
		b.foreign.Shutdown()
		b.foreign = nil
	}
	if b.ctx != nil {
		b.ctx.Shutdown()
		b.ctx = nil
		b.setupErr = errors.New("destroyed")
	}
	return nil
}

// Binding is the scoped association of a bridge with one thread. Release it
// on every exit path, typically with defer.
type Binding struct {
	bridge   *Bridge
	thread   *Thread
	gen      uint64
	released bool
}

// Release unbinds the context. Calling it more than once is a no-op.
func (bd *Binding) Release() {
	if bd.released {
		return
	}
	bd.released = true
	bd.bridge.release(bd.thread, bd.gen)
}

// Bound reports whether the binding still holds the context.
func (bd *Binding) Bound() bool {
	if bd.released {
		return false
	}
	bd.bridge.mu.Lock()
	defer bd.bridge.mu.Unlock()
	return bd.bridge.holder == bd.thread && bd.bridge.gen == bd.gen
}

// MustBeBound panics with a *PreconditionError when the binding no longer
// holds the context. Draw calls issued while unbound are a programming error.
func (bd *Binding) MustBeBound() {
	if !bd.Bound() {
		panic(&PreconditionError{Bridge: bd.bridge.name, Op: "draw"})
	}
}

// Active reports whether the native layer agrees the context is current.
func (bd *Binding) Active() bool {
	return bd.Bound() && bd.bridge.ctx.IsCurrent()
}

// Present swaps the display buffers.
func (bd *Binding) Present() {
	bd.MustBeBound()
	bd.bridge.ctx.SwapBuffers()
}

func (bd *Binding) FramebufferSize() (int, int) {
	bd.MustBeBound()
	return bd.bridge.ctx.GetFramebufferSize()
}

// Context returns the bound native context, for callers that need optional
// capabilities such as IsGLES.
func (bd *Binding) Context() Context {
	bd.MustBeBound()
	return bd.bridge.ctx
}
