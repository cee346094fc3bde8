package graphics_test

import (
	"errors"
	"testing"

	"github.com/richinsley/glhandoff/graphics"
	"github.com/richinsley/glhandoff/graphics/graphicstest"
)

type recordingUser struct {
	got   graphics.Context
	calls int
	err   error
}

func (u *recordingUser) UseContext(ctx graphics.Context) error {
	u.calls++
	u.got = ctx
	return u.err
}

func TestBindReleasePairing(t *testing.T) {
	ctx := graphicstest.NewContext(640, 480)
	bridge := graphics.NewBridge("display", ctx, nil)
	thread := graphics.LockThread("test")
	defer thread.Unlock()

	for i := 0; i < 10; i++ {
		binding, err := bridge.Bind(thread)
		if err != nil {
			t.Fatalf("Bind failed: %v", err)
		}
		if !binding.Active() {
			t.Fatalf("binding %d not active", i)
		}
		binding.Release()
		binding.Release() // idempotent
		if ctx.Current() {
			t.Fatalf("context still current after release %d", i)
		}
	}

	stats := bridge.Stats()
	if stats.Binds != 10 || stats.Unbinds != 10 || stats.Bound {
		t.Errorf("unexpected stats: %+v", stats)
	}
	makes, detaches, _ := ctx.Counts()
	if makes != detaches {
		t.Errorf("unpaired native calls: makes=%d detaches=%d", makes, detaches)
	}
	if thread.Current() != nil {
		t.Errorf("thread still reports a current bridge")
	}
}

func TestNestedBindOnHolderThread(t *testing.T) {
	ctx := graphicstest.NewContext(1, 1)
	bridge := graphics.NewBridge("display", ctx, nil)
	thread := graphics.LockThread("test")
	defer thread.Unlock()

	outer, err := bridge.Bind(thread)
	if err != nil {
		t.Fatalf("outer Bind failed: %v", err)
	}
	inner, err := bridge.Bind(thread)
	if err != nil {
		t.Fatalf("inner Bind failed: %v", err)
	}

	inner.Release()
	if !ctx.Current() {
		t.Fatal("inner release unbound the outer binding")
	}
	outer.Release()
	if ctx.Current() {
		t.Fatal("context still current after outer release")
	}
}

func TestBindUnavailable(t *testing.T) {
	setupErr := errors.New("no display")
	bridge := graphics.NewBridge("display", nil, setupErr)

	if err := bridge.Check(); !errors.Is(err, graphics.ErrContextUnavailable) {
		t.Fatalf("Check: expected ErrContextUnavailable, got %v", err)
	}

	thread := graphics.LockThread("test")
	defer thread.Unlock()
	if _, err := bridge.Bind(thread); !errors.Is(err, graphics.ErrContextUnavailable) {
		t.Fatalf("Bind: expected ErrContextUnavailable, got %v", err)
	}
}

func TestBindBusyOnOtherThread(t *testing.T) {
	bridge := graphics.NewBridge("display", graphicstest.NewContext(1, 1), nil)

	owner := graphics.LockThread("owner")
	defer owner.Unlock()
	binding, err := bridge.Bind(owner)
	if err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	defer binding.Release()

	errc := make(chan error, 1)
	go func() {
		other := graphics.LockThread("other")
		defer other.Unlock()
		_, err := bridge.Bind(other)
		errc <- err
	}()

	if err := <-errc; !errors.Is(err, graphics.ErrContextBusy) {
		t.Fatalf("expected ErrContextBusy, got %v", err)
	}
	if bridge.Holder() != owner {
		t.Errorf("holder changed to %v", bridge.Holder())
	}
}

func TestBindSwitchesContextOnSameThread(t *testing.T) {
	ctxA := graphicstest.NewContext(1, 1)
	ctxB := graphicstest.NewContext(1, 1)
	a := graphics.NewBridge("a", ctxA, nil)
	b := graphics.NewBridge("b", ctxB, nil)
	thread := graphics.LockThread("test")
	defer thread.Unlock()

	bindingA, err := a.Bind(thread)
	if err != nil {
		t.Fatalf("Bind a: %v", err)
	}
	bindingB, err := b.Bind(thread)
	if err != nil {
		t.Fatalf("Bind b: %v", err)
	}

	if ctxA.Current() {
		t.Error("a still current after binding b on the same thread")
	}
	if a.Holder() != nil {
		t.Error("a still reports a holder")
	}
	if bindingA.Bound() {
		t.Error("stale binding a reports bound")
	}

	// A stale release must not disturb the rebound state.
	bindingA.Release()
	if !ctxB.Current() {
		t.Error("releasing stale binding a unbound b")
	}
	bindingB.Release()
	if thread.Current() != nil {
		t.Error("thread still holds a bridge")
	}
}

func TestDrawWhileUnboundPanics(t *testing.T) {
	bridge := graphics.NewBridge("display", graphicstest.NewContext(1, 1), nil)
	thread := graphics.LockThread("test")
	defer thread.Unlock()

	binding, err := bridge.Bind(thread)
	if err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	binding.Release()

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("Present after release did not panic")
		}
		if _, ok := r.(*graphics.PreconditionError); !ok {
			t.Fatalf("expected *PreconditionError, got %T: %v", r, r)
		}
	}()
	binding.Present()
}

func TestActiveReflectsNativeQuery(t *testing.T) {
	ctx := graphicstest.NewContext(1, 1)
	bridge := graphics.NewBridge("display", ctx, nil)
	thread := graphics.LockThread("test")
	defer thread.Unlock()

	ctx.SetLost(true)
	binding, err := bridge.Bind(thread)
	if err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	defer binding.Release()

	if binding.Active() {
		t.Error("Active reported true with the surface lost")
	}
	if !binding.Bound() {
		t.Error("binding should remain bound for pairing purposes")
	}
}

func TestRegisterForeignOnce(t *testing.T) {
	foreign := graphicstest.NewContext(1, 1)
	bridge := graphics.NewBridge("display", graphicstest.NewContext(1, 1), nil).WithForeign(foreign)

	user := &recordingUser{}
	if err := bridge.RegisterForeign(user); err != nil {
		t.Fatalf("RegisterForeign failed: %v", err)
	}
	if user.got != foreign || user.calls != 1 {
		t.Fatalf("user not handed the foreign context: %+v", user)
	}
	if err := bridge.RegisterForeign(user); !errors.Is(err, graphics.ErrForeignRegistered) {
		t.Fatalf("second registration: expected ErrForeignRegistered, got %v", err)
	}

	plain := graphics.NewBridge("plain", graphicstest.NewContext(1, 1), nil)
	if err := plain.RegisterForeign(user); !errors.Is(err, graphics.ErrContextUnavailable) {
		t.Fatalf("no foreign context: expected ErrContextUnavailable, got %v", err)
	}
}

func TestDestroyRefusesWhileBound(t *testing.T) {
	ctx := graphicstest.NewContext(1, 1)
	foreign := graphicstest.NewContext(1, 1)
	bridge := graphics.NewBridge("display", ctx, nil).WithForeign(foreign)
	thread := graphics.LockThread("test")
	defer thread.Unlock()

	binding, err := bridge.Bind(thread)
	if err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if err := bridge.Destroy(); !errors.Is(err, graphics.ErrContextBusy) {
		t.Fatalf("expected ErrContextBusy, got %v", err)
	}

	binding.Release()
	if err := bridge.Destroy(); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if !ctx.IsShutdown() || !foreign.IsShutdown() {
		t.Error("contexts not shut down")
	}
	if _, err := bridge.Bind(thread); !errors.Is(err, graphics.ErrContextUnavailable) {
		t.Errorf("Bind after Destroy: expected ErrContextUnavailable, got %v", err)
	}
}
