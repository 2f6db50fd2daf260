package core

import (
	"bytes"
	"errors"
	"testing"

	"github.com/jabolina/go-rollback/pkg/rollback/memory"
	"github.com/jabolina/go-rollback/pkg/rollback/types"
)

func stateOf(frame types.FrameNumber) types.SimulationState {
	return types.SimulationState{byte(frame), byte(frame), byte(frame), byte(frame)}
}

func Test_ShouldRestoreAndTruncateSnapshots(t *testing.T) {
	stack := NewSnapshotStack(memory.NewArena(64))
	for f := types.FrameNumber(0); f < 5; f++ {
		if err := stack.Push(f, stateOf(f)); err != nil {
			t.Fatalf("failed pushing %d. %v", f, err)
		}
	}

	state, err := stack.Restore(2)
	if err != nil {
		t.Fatalf("failed restoring. %v", err)
	}
	if !bytes.Equal(state, stateOf(2)) {
		t.Errorf("expected state of frame 2, found %v", state)
	}

	if err = stack.TruncateFrom(3); err != nil {
		t.Fatalf("failed truncating. %v", err)
	}
	first, last, ok := stack.Frames()
	if !ok || first != 0 || last != 2 {
		t.Errorf("expected frames 0 to 2, found %d to %d", first, last)
	}
	if _, err = stack.Restore(3); !errors.Is(err, types.ErrInvalidHandle) {
		t.Errorf("expected truncated frame to be gone, found %v", err)
	}
	if err = stack.Push(3, stateOf(3)); err != nil {
		t.Errorf("failed pushing after truncate. %v", err)
	}
}

func Test_ShouldRejectGapBetweenSnapshots(t *testing.T) {
	stack := NewSnapshotStack(memory.NewArena(64))
	_ = stack.Push(1, stateOf(1))
	if err := stack.Push(3, stateOf(3)); !errors.Is(err, types.ErrFrameOrder) {
		t.Errorf("expected frame order error, found %v", err)
	}
}

func Test_ShouldReclaimSnapshotsBelowFloor(t *testing.T) {
	stack := NewSnapshotStack(memory.NewArena(16))
	for f := types.FrameNumber(0); f < 4; f++ {
		if err := stack.Push(f, stateOf(f)); err != nil {
			t.Fatalf("failed pushing %d. %v", f, err)
		}
	}
	if err := stack.Push(4, stateOf(4)); !errors.Is(err, types.ErrOutOfCapacity) {
		t.Fatalf("expected out of capacity without floor, found %v", err)
	}

	stack.SetFloor(2)
	if err := stack.Push(4, stateOf(4)); err != nil {
		t.Fatalf("failed pushing after floor. %v", err)
	}
	first, last, _ := stack.Frames()
	if first != 2 || last != 4 {
		t.Errorf("expected frames 2 to 4, found %d to %d", first, last)
	}
	for f := types.FrameNumber(2); f <= 4; f++ {
		state, err := stack.Restore(f)
		if err != nil {
			t.Fatalf("failed restoring %d. %v", f, err)
		}
		if !bytes.Equal(state, stateOf(f)) {
			t.Errorf("frame %d corrupted after reclaim, found %v", f, state)
		}
	}
}
