// Package source produces frames on pipeline threads and hands them to the
// render thread through a handoff slot.
package source

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/richinsley/glhandoff/graphics"
	"github.com/richinsley/glhandoff/handoff"
)

// ErrNoContext is returned by Run when no upload context was registered.
var ErrNoContext = errors.New("source: no upload context registered")

// Deliver publishes a frame and blocks until it was rendered or cancelled.
// It is normally bound to handoff.Slot.Publish.
type Deliver func(*handoff.Frame) handoff.WaitResult

// Source is a frame producer. UseContext receives the context shared with
// the display context; Run produces frames until the input ends, ctx is
// cancelled, or a delivery is cancelled.
//
// Run may block inside deliver, so callers must request handoff shutdown
// before waiting for Run to return.
type Source interface {
	graphics.ForeignContextUser
	Run(ctx context.Context, deliver Deliver) error
}

// base holds what every source shares: the uploader and the frame counter.
type base struct {
	name string

	mu       sync.Mutex
	uploader Uploader
	seq      uint64
}

func (b *base) UseContext(ctx graphics.Context) error {
	if ctx == nil {
		return ErrNoContext
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.uploader != nil {
		// Set explicitly with SetUploader; the shared context goes unused.
		log.Printf("source %s: keeping existing uploader", b.name)
		return nil
	}
	b.uploader = NewGLUploader(ctx)
	return nil
}

// SetUploader replaces the uploader, for CPU-only producers and tests.
func (b *base) SetUploader(u Uploader) {
	b.mu.Lock()
	b.uploader = u
	b.mu.Unlock()
}

func (b *base) getUploader() (Uploader, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.uploader == nil {
		return nil, ErrNoContext
	}
	return b.uploader, nil
}

func (b *base) nextSeq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	return b.seq
}

// publish uploads f on t and delivers it. An upload failure skips the frame;
// it is reported as delivered so the producer keeps going.
func (b *base) publish(t *graphics.Thread, up Uploader, deliver Deliver, f *handoff.Frame) handoff.WaitResult {
	if err := up.Upload(t, f); err != nil {
		log.Printf("source %s: upload %v: %v", b.name, f, err)
		return handoff.ResultRendered
	}
	res := deliver(f)
	if res == handoff.ResultCancelled {
		log.Printf("source %s: delivery of frame %d cancelled, stopping", b.name, f.Seq)
	}
	return res
}
