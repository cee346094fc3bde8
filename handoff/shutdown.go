package handoff

import (
	"log"
	"sync"
	"sync/atomic"
)

// Shutdown is the process-wide cancellation flag. It moves from false to true
// exactly once and wakes every slot waiting on it.
type Shutdown struct {
	requested atomic.Bool
	done      chan struct{}

	mu     sync.Mutex
	wakers []func()
}

func NewShutdown() *Shutdown {
	return &Shutdown{done: make(chan struct{})}
}

// Request sets the flag and wakes every blocked Publish. It is idempotent and
// safe to call from any goroutine.
func (s *Shutdown) Request() {
	if !s.requested.CompareAndSwap(false, true) {
		return
	}
	close(s.done)

	s.mu.Lock()
	wakers := s.wakers
	s.mu.Unlock()

	log.Printf("handoff: shutdown requested, waking %d slot(s)", len(wakers))
	for _, wake := range wakers {
		wake()
	}
}

// Requested reports whether Request has been called.
func (s *Shutdown) Requested() bool {
	return s.requested.Load()
}

// Done is closed when shutdown is requested.
func (s *Shutdown) Done() <-chan struct{} {
	return s.done
}

// onRequest registers a waker. A waker registered after the request runs
// immediately.
func (s *Shutdown) onRequest(wake func()) {
	s.mu.Lock()
	s.wakers = append(s.wakers, wake)
	s.mu.Unlock()

	if s.Requested() {
		wake()
	}
}
