package graphics

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

var threadIDs atomic.Uint64

// Thread is a goroutine pinned to its OS thread. Contexts are bound to a
// Thread rather than to a goroutine, because the native layer tracks the
// current context per OS thread.
type Thread struct {
	id   uint64
	name string

	mu      sync.Mutex
	current *Bridge
}

// LockThread pins the calling goroutine to its OS thread and returns a handle
// for it. The caller must stay on that goroutine for as long as it binds
// contexts through the handle.
func LockThread(name string) *Thread {
	runtime.LockOSThread()
	return &Thread{
		id:   threadIDs.Add(1),
		name: name,
	}
}

// Unlock releases the OS thread pinning. Any context still bound through this
// thread is unbound first.
func (t *Thread) Unlock() {
	if b := t.Current(); b != nil {
		b.forceUnbind(t)
	}
	runtime.UnlockOSThread()
}

// Current returns the bridge bound on this thread, or nil.
func (t *Thread) Current() *Bridge {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

func (t *Thread) setCurrent(b *Bridge) {
	t.mu.Lock()
	t.current = b
	t.mu.Unlock()
}

func (t *Thread) clearCurrent(b *Bridge) {
	t.mu.Lock()
	if t.current == b {
		t.current = nil
	}
	t.mu.Unlock()
}

func (t *Thread) String() string {
	return fmt.Sprintf("%s#%d", t.name, t.id)
}
