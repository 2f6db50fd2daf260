package helper

import (
	"errors"
	"sync/atomic"
	"testing"

	"go.uber.org/goleak"
)

func Test_ShouldInactivateFlagOnce(t *testing.T) {
	var f Flag
	if !f.IsActive() {
		t.Fatalf("flag should start active")
	}
	if !f.Inactivate() {
		t.Errorf("first inactivate should succeed")
	}
	if f.Inactivate() {
		t.Errorf("second inactivate should fail")
	}
	if !f.IsInactive() {
		t.Errorf("flag should be inactive")
	}
}

func Test_ShouldLetSingleCallerInactivate(t *testing.T) {
	defer goleak.VerifyNone(t)

	var f Flag
	var winners int32
	invoker := NewInvoker()
	for i := 0; i < 50; i++ {
		if err := invoker.Spawn(func() {
			if f.Inactivate() {
				atomic.AddInt32(&winners, 1)
			}
		}); err != nil {
			t.Fatalf("failed spawning. %v", err)
		}
	}
	invoker.Stop()
	if atomic.LoadInt32(&winners) != 1 {
		t.Errorf("expected a single winner, found %d", winners)
	}
}

func Test_ShouldWaitSpawnedRoutines(t *testing.T) {
	defer goleak.VerifyNone(t)

	invoker := NewInvoker()
	var done int32
	for i := 0; i < 10; i++ {
		if err := invoker.Spawn(func() { atomic.AddInt32(&done, 1) }); err != nil {
			t.Fatalf("failed spawning. %v", err)
		}
	}
	invoker.Stop()
	if atomic.LoadInt32(&done) != 10 {
		t.Errorf("stop returned before every routine, %d done", done)
	}
	if err := invoker.Spawn(func() {}); !errors.Is(err, ErrInvokerStopped) {
		t.Errorf("expected stopped invoker, found %v", err)
	}
}
