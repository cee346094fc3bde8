package handoff

import (
	"fmt"
	"sync"
)

// State is the handoff slot's state.
type State int

const (
	// Empty means no frame is pending. It is the initial state.
	Empty State = iota
	// Pending means a frame was published and awaits render.
	Pending
	// Rendered means the render finished; the producer may reclaim the frame.
	Rendered
	// Cancelled is terminal: a wait was resolved by shutdown.
	Cancelled
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case Pending:
		return "pending"
	case Rendered:
		return "rendered"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// WaitResult is what Publish returns to the producer.
type WaitResult int

const (
	ResultRendered WaitResult = iota
	ResultCancelled
)

func (r WaitResult) String() string {
	if r == ResultRendered {
		return "rendered"
	}
	return "cancelled"
}

// ProtocolError is the panic value raised when a producer publishes into a
// slot that is not empty.
type ProtocolError struct {
	State State
	Frame *Frame
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("handoff: publish of %v while slot is %s", e.Frame, e.State)
}

// Scheduler dispatches a job onto the thread that owns the display context.
// It may drop the job once the host loop is terminating.
type Scheduler interface {
	ScheduleHighPriority(job func()) bool
}

// Renderer consumes the slot on the render thread. It must call
// TakeForRender and CompleteRender on every invocation.
type Renderer interface {
	Render(slot *Slot)
}

// SlotStats is a snapshot of slot counters.
type SlotStats struct {
	Published   uint64
	Rendered    uint64
	Cancelled   uint64
	Completions uint64
	Dropped     uint64 // render jobs the scheduler refused
}

// Slot is a single-frame mailbox between one producer and the render thread.
// The producer blocks in Publish until the frame is rendered or shutdown is
// requested, which throttles the pipeline to the render cadence.
//
// All fields are guarded by mu.
type Slot struct {
	sched    Scheduler
	renderer Renderer
	shutdown *Shutdown

	mu      sync.Mutex
	cond    *sync.Cond
	state   State
	frame   *Frame
	reading bool // a render job took the frame and has not completed yet
	stats   SlotStats
}

func NewSlot(sched Scheduler, r Renderer, sd *Shutdown) *Slot {
	s := &Slot{
		sched:    sched,
		renderer: r,
		shutdown: sd,
	}
	s.cond = sync.NewCond(&s.mu)
	sd.onRequest(s.wake)
	return s
}

func (s *Slot) wake() {
	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Publish hands f to the render thread and blocks until it has been rendered
// or shutdown is requested. The caller keeps ownership of f and must release
// it after Publish returns, whatever the result. Publishing into a slot that
// is not empty panics with *ProtocolError.
func (s *Slot) Publish(f *Frame) WaitResult {
	s.mu.Lock()
	if s.state == Cancelled || s.shutdown.Requested() {
		s.state = Cancelled
		s.mu.Unlock()
		return ResultCancelled
	}
	if s.state != Empty {
		err := &ProtocolError{State: s.state, Frame: f}
		s.mu.Unlock()
		panic(err)
	}
	s.frame = f
	s.state = Pending
	s.stats.Published++
	s.mu.Unlock()

	if !s.sched.ScheduleHighPriority(func() { s.renderer.Render(s) }) {
		s.mu.Lock()
		s.stats.Dropped++
		s.mu.Unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for s.reading || (s.state == Pending && !s.shutdown.Requested()) {
		s.cond.Wait()
	}

	s.frame = nil
	if s.state == Rendered {
		s.state = Empty
		s.stats.Rendered++
		return ResultRendered
	}
	s.state = Cancelled
	s.stats.Cancelled++
	return ResultCancelled
}

// TakeForRender returns the pending frame, or false when nothing is pending or
// shutdown already aborted it. It does not change the slot state.
func (s *Slot) TakeForRender() (*Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Pending || s.frame == nil || s.shutdown.Requested() {
		return nil, false
	}
	s.reading = true
	return s.frame, true
}

// CompleteRender marks the pending frame rendered and wakes the producer.
// On a slot with nothing pending it only clears the read mark.
func (s *Slot) CompleteRender() {
	s.mu.Lock()
	defer s.mu.Unlock()

	took := s.reading
	s.reading = false
	if s.state == Pending && (took || !s.shutdown.Requested()) {
		s.state = Rendered
		s.stats.Completions++
	}
	s.cond.Broadcast()
}

func (s *Slot) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Slot) Stats() SlotStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
