package core

import (
	"errors"
	"fmt"

	"github.com/jabolina/go-rollback/pkg/rollback/memory"
	"github.com/jabolina/go-rollback/pkg/rollback/types"
)

type snapshot struct {
	frame  types.FrameNumber
	handle memory.Handle
}

// SnapshotStack keeps one snapshot for each consecutive frame of the
// predicted simulation inside the arena. The allocation order is the
// frame order, so rolling back to a frame is a rewind of the arena.
type SnapshotStack struct {
	arena   *memory.Arena
	entries []snapshot

	// Snapshots before this frame are not needed for rollback anymore.
	floor types.FrameNumber
}

// NewSnapshotStack creates an empty stack over the arena.
func NewSnapshotStack(arena *memory.Arena) *SnapshotStack {
	return &SnapshotStack{arena: arena}
}

// Push stores the state of the given frame on top of the stack.
// Frames must be pushed consecutively. When the arena is full the
// snapshots below the floor are reclaimed and the allocation retried.
func (s *SnapshotStack) Push(frame types.FrameNumber, state types.SimulationState) error {
	if n := len(s.entries); n > 0 && s.entries[n-1].frame.Next() != frame {
		return fmt.Errorf("snapshot of %d on top of %d: %w", frame, s.entries[n-1].frame, types.ErrFrameOrder)
	}
	h, err := s.arena.Allocate(len(state))
	if errors.Is(err, types.ErrOutOfCapacity) && s.reclaim() {
		h, err = s.arena.Allocate(len(state))
	}
	if err != nil {
		return err
	}
	if err = s.arena.Write(h, state); err != nil {
		return err
	}
	s.entries = append(s.entries, snapshot{frame: frame, handle: h})
	return nil
}

func (s *SnapshotStack) index(frame types.FrameNumber) (int, bool) {
	if len(s.entries) == 0 || frame < s.entries[0].frame {
		return 0, false
	}
	i := int(frame - s.entries[0].frame)
	return i, i < len(s.entries)
}

// Restore returns a copy of the state stored for the frame.
func (s *SnapshotStack) Restore(frame types.FrameNumber) (types.SimulationState, error) {
	i, ok := s.index(frame)
	if !ok {
		return nil, fmt.Errorf("no snapshot for frame %d: %w", frame, types.ErrInvalidHandle)
	}
	return s.arena.Read(s.entries[i].handle)
}

// TruncateFrom releases the snapshot of the frame and every one
// after it.
func (s *SnapshotStack) TruncateFrom(frame types.FrameNumber) error {
	i, ok := s.index(frame)
	if !ok {
		if len(s.entries) > 0 && frame < s.entries[0].frame {
			i = 0
		} else {
			return nil
		}
	}
	if err := s.arena.ResetTo(s.entries[i].handle); err != nil {
		return err
	}
	s.entries = s.entries[:i]
	return nil
}

// SetFloor marks the snapshots before the frame as reclaimable.
func (s *SnapshotStack) SetFloor(frame types.FrameNumber) {
	if frame > s.floor {
		s.floor = frame
	}
}

// Clear releases every snapshot.
func (s *SnapshotStack) Clear() {
	s.arena.Reset()
	s.entries = s.entries[:0]
}

// Moves the live snapshots to the start of the arena, releasing the
// ones below the floor. Returns `true` if any memory was released.
func (s *SnapshotStack) reclaim() bool {
	keep := 0
	for keep < len(s.entries) && s.entries[keep].frame < s.floor {
		keep++
	}
	if keep == 0 {
		return false
	}
	if keep == len(s.entries) {
		s.Clear()
		return true
	}
	shift, err := s.arena.Compact(s.entries[keep].handle)
	if err != nil {
		return false
	}
	live := copy(s.entries, s.entries[keep:])
	s.entries = s.entries[:live]
	for i := range s.entries {
		s.entries[i].handle = s.entries[i].handle.Shift(shift)
	}
	return shift > 0
}

// Len returns how many snapshots are stored.
func (s *SnapshotStack) Len() int {
	return len(s.entries)
}

// Frames returns the first and last frame stored.
func (s *SnapshotStack) Frames() (types.FrameNumber, types.FrameNumber, bool) {
	if len(s.entries) == 0 {
		return 0, 0, false
	}
	return s.entries[0].frame, s.entries[len(s.entries)-1].frame, true
}
