// Package eventloop runs the host event loop on the thread that owns the
// display context. Work posted from other goroutines is executed on that
// thread, high-priority work first, and input is polled whenever the loop is
// idle.
package eventloop

import (
	"log"
	"sync"
	"time"
)

// DefaultPollInterval is how often an idle loop polls for input.
const DefaultPollInterval = 10 * time.Millisecond

// EventSource is the window system's input queue.
type EventSource interface {
	PollEvents()
	ShouldClose() bool
}

type Option func(*Loop)

// WithPollInterval sets the idle poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.pollInterval = d
		}
	}
}

// Stats is a snapshot of the loop's counters.
type Stats struct {
	HighRun   uint64
	NormalRun uint64
	Dropped   uint64
	Polls     uint64
}

// Loop is a single-threaded dispatcher. Run must be called on the thread that
// owns the display context; every other method is safe from any goroutine.
type Loop struct {
	events       EventSource
	pollInterval time.Duration
	wake         chan struct{}

	mu       sync.Mutex
	high     []func()
	normal   []func()
	quitting bool
	onClose  []func()
	stats    Stats

	closeOnce sync.Once
}

func New(events EventSource, opts ...Option) *Loop {
	l := &Loop{
		events:       events,
		pollInterval: DefaultPollInterval,
		wake:         make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ScheduleHighPriority queues job ahead of normal work and wakes the loop if
// it is idle. It returns false, dropping the job, once the loop is quitting.
func (l *Loop) ScheduleHighPriority(job func()) bool {
	return l.enqueue(job, true)
}

// Schedule queues job at normal priority.
func (l *Loop) Schedule(job func()) bool {
	return l.enqueue(job, false)
}

func (l *Loop) enqueue(job func(), high bool) bool {
	l.mu.Lock()
	if l.quitting {
		l.stats.Dropped++
		l.mu.Unlock()
		return false
	}
	if high {
		l.high = append(l.high, job)
	} else {
		l.normal = append(l.normal, job)
	}
	l.mu.Unlock()

	l.signal()
	return true
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// OnClose registers f to run once, on the loop thread, when the event source
// asks to close.
func (l *Loop) OnClose(f func()) {
	l.mu.Lock()
	l.onClose = append(l.onClose, f)
	l.mu.Unlock()
}

// Quit asks Run to return. Queued and future jobs are dropped.
func (l *Loop) Quit() {
	l.mu.Lock()
	l.quitting = true
	l.mu.Unlock()
	l.signal()
}

// Quitting reports whether Quit has been called.
func (l *Loop) Quitting() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.quitting
}

// Run dispatches jobs until Quit is called or the event source asks to close.
func (l *Loop) Run() {
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	log.Printf("eventloop: running, poll interval %v", l.pollInterval)
	for {
		// A busy loop still services input.
		select {
		case <-ticker.C:
			l.poll()
		default:
		}

		if l.runNext() {
			continue
		}
		if l.Quitting() {
			l.discard()
			log.Printf("eventloop: stopped")
			return
		}

		select {
		case <-l.wake:
		case <-ticker.C:
			l.poll()
		}
	}
}

// runNext runs one job, high priority first. It reports whether it ran one.
func (l *Loop) runNext() bool {
	l.mu.Lock()
	if l.quitting {
		l.mu.Unlock()
		return false
	}
	var job func()
	switch {
	case len(l.high) > 0:
		job = l.high[0]
		l.high[0] = nil
		l.high = l.high[1:]
		l.stats.HighRun++
	case len(l.normal) > 0:
		job = l.normal[0]
		l.normal[0] = nil
		l.normal = l.normal[1:]
		l.stats.NormalRun++
	}
	l.mu.Unlock()

	if job == nil {
		return false
	}
	job()
	return true
}

func (l *Loop) poll() {
	if l.events == nil {
		return
	}
	l.events.PollEvents()

	l.mu.Lock()
	l.stats.Polls++
	l.mu.Unlock()

	if l.events.ShouldClose() {
		l.closeOnce.Do(func() {
			log.Printf("eventloop: close requested by event source")
			l.mu.Lock()
			callbacks := l.onClose
			l.mu.Unlock()
			for _, f := range callbacks {
				f()
			}
			l.Quit()
		})
	}
}

func (l *Loop) discard() {
	l.mu.Lock()
	n := len(l.high) + len(l.normal)
	l.high = nil
	l.normal = nil
	l.stats.Dropped += uint64(n)
	l.mu.Unlock()
	if n > 0 {
		log.Printf("eventloop: dropped %d queued job(s) on quit", n)
	}
}

func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}
