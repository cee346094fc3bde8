package handoff

import (
	"sync"
	"testing"
	"time"
)

func TestShutdownIdempotent(t *testing.T) {
	sd := NewShutdown()
	if sd.Requested() {
		t.Fatal("new shutdown already requested")
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sd.Request()
		}()
	}
	wg.Wait()

	if !sd.Requested() {
		t.Fatal("flag not set after Request")
	}
	select {
	case <-sd.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed")
	}
}

func TestShutdownWakesLateRegistration(t *testing.T) {
	sd := NewShutdown()
	sd.Request()

	woken := false
	sd.onRequest(func() { woken = true })
	if !woken {
		t.Fatal("waker registered after the request was not run")
	}
}

func TestShutdownWakesEverySlot(t *testing.T) {
	sd := NewShutdown()
	const slots = 4
	results := make(chan WaitResult, slots)
	for i := 0; i < slots; i++ {
		rt := &renderThread{jobs: make(chan func(), 1)}
		slot := NewSlot(rt, &checkingRenderer{}, sd)
		go func() { results <- slot.Publish(&Frame{Seq: 1}) }()
	}

	time.Sleep(10 * time.Millisecond)
	sd.Request()
	for i := 0; i < slots; i++ {
		if res := waitResult(t, results); res != ResultCancelled {
			t.Errorf("slot %d: expected cancelled, got %s", i, res)
		}
	}
}
