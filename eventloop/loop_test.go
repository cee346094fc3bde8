package eventloop

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeEvents struct {
	polls atomic.Int64
	close atomic.Bool
}

func (f *fakeEvents) PollEvents()       { f.polls.Add(1) }
func (f *fakeEvents) ShouldClose() bool { return f.close.Load() }

func runLoop(l *Loop) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.Run()
	}()
	return done
}

func waitClosed(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for %s", what)
	}
}

func TestHighPriorityRunsFirst(t *testing.T) {
	l := New(nil)

	var mu sync.Mutex
	var order []string
	record := func(s string) func() {
		return func() {
			mu.Lock()
			order = append(order, s)
			mu.Unlock()
		}
	}

	// Queue before Run so the loop sees both queues populated.
	l.Schedule(record("normal-1"))
	l.Schedule(record("normal-2"))
	l.ScheduleHighPriority(record("high-1"))
	l.ScheduleHighPriority(record("high-2"))

	finished := make(chan struct{})
	l.Schedule(func() { close(finished) })

	done := runLoop(l)
	waitClosed(t, finished, "queued jobs")
	l.Quit()
	waitClosed(t, done, "loop exit")

	want := []string{"high-1", "high-2", "normal-1", "normal-2"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}

func TestIdleLoopServicesJobPromptly(t *testing.T) {
	// A long poll interval proves the wake-up comes from the schedule call.
	l := New(&fakeEvents{}, WithPollInterval(time.Hour))
	done := runLoop(l)
	defer func() {
		l.Quit()
		waitClosed(t, done, "loop exit")
	}()

	time.Sleep(10 * time.Millisecond) // let the loop go idle

	ran := make(chan struct{})
	start := time.Now()
	if !l.ScheduleHighPriority(func() { close(ran) }) {
		t.Fatal("job refused by a running loop")
	}
	waitClosed(t, ran, "high priority job")
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("idle loop took %v to run the job", elapsed)
	}
}

func TestJobsDroppedAfterQuit(t *testing.T) {
	l := New(nil)
	done := runLoop(l)
	l.Quit()
	waitClosed(t, done, "loop exit")

	if l.ScheduleHighPriority(func() { t.Error("job ran after quit") }) {
		t.Error("ScheduleHighPriority accepted a job after quit")
	}
	if l.Schedule(func() { t.Error("job ran after quit") }) {
		t.Error("Schedule accepted a job after quit")
	}
	if got := l.Stats().Dropped; got != 2 {
		t.Errorf("expected 2 dropped, got %d", got)
	}
}

func TestEventSourceCloseStopsLoop(t *testing.T) {
	events := &fakeEvents{}
	l := New(events, WithPollInterval(time.Millisecond))

	closed := make(chan struct{})
	l.OnClose(func() { close(closed) })

	done := runLoop(l)
	events.close.Store(true)

	waitClosed(t, closed, "OnClose callback")
	waitClosed(t, done, "loop exit")
	if events.polls.Load() == 0 {
		t.Error("event source never polled")
	}
}

func TestBusyLoopStillPolls(t *testing.T) {
	events := &fakeEvents{}
	l := New(events, WithPollInterval(time.Millisecond))
	done := runLoop(l)

	// Keep the loop saturated with self-rescheduling work.
	var spin func()
	spin = func() {
		time.Sleep(100 * time.Microsecond)
		l.Schedule(spin)
	}
	l.Schedule(spin)

	deadline := time.After(2 * time.Second)
	for events.polls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatal("busy loop starved input polling")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	l.Quit()
	waitClosed(t, done, "loop exit")
}
