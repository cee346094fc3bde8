package renderer

import (
	"fmt"
	"log"
	"sync/atomic"

	"github.com/richinsley/glhandoff/graphics"
	"github.com/richinsley/glhandoff/handoff"
)

// Drawer issues the draw calls for one frame against a bound context. The
// executor presents afterwards.
type Drawer interface {
	Draw(b *graphics.Binding, f *handoff.Frame) error
}

// ExecutorStats is a snapshot of the executor's counters.
type ExecutorStats struct {
	Rendered uint64
	Skipped  uint64 // context could not be made current
	Failed   uint64 // bind or draw failed, or the driver panicked
}

// Executor is the render job run on the display thread for each published
// frame. It implements handoff.Renderer.
type Executor struct {
	bridge *graphics.Bridge
	thread *graphics.Thread
	drawer Drawer

	rendered atomic.Uint64
	skipped  atomic.Uint64
	failed   atomic.Uint64
}

// NewExecutor returns an executor drawing through d with bridge bound on
// thread. thread must be the thread the scheduler runs jobs on.
func NewExecutor(bridge *graphics.Bridge, thread *graphics.Thread, d Drawer) *Executor {
	return &Executor{
		bridge: bridge,
		thread: thread,
		drawer: d,
	}
}

// Render draws the slot's pending frame, if any, and always completes the
// slot so the producer is released. Failures are logged and counted; drawing
// through a released binding is a programming error and panics past Render.
func (e *Executor) Render(slot *handoff.Slot) {
	defer slot.CompleteRender()

	frame, ok := slot.TakeForRender()
	if !ok {
		return
	}
	e.draw(frame)
}

func (e *Executor) draw(frame *handoff.Frame) {
	defer func() {
		if r := recover(); r != nil {
			if pe, ok := r.(*graphics.PreconditionError); ok {
				panic(pe)
			}
			e.failed.Add(1)
			log.Printf("renderer: draw of %v panicked: %v", frame, r)
		}
	}()

	binding, err := e.bridge.Bind(e.thread)
	if err != nil {
		e.failed.Add(1)
		log.Printf("renderer: %v", fmt.Errorf("bind for %v: %w", frame, err))
		return
	}
	defer binding.Release()

	if !binding.Active() {
		e.skipped.Add(1)
		log.Printf("renderer: %s not current, skipping %v", e.bridge.Name(), frame)
		return
	}

	if err := e.drawer.Draw(binding, frame); err != nil {
		e.failed.Add(1)
		log.Printf("renderer: draw %v: %v", frame, err)
		return
	}
	binding.Present()
	e.rendered.Add(1)
}

func (e *Executor) Stats() ExecutorStats {
	return ExecutorStats{
		Rendered: e.rendered.Load(),
		Skipped:  e.skipped.Load(),
		Failed:   e.failed.Load(),
	}
}
