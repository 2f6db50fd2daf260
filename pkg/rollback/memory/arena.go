// Package memory provides the snapshot allocator used by the rollback
// driver. All snapshots live inside a single contiguous buffer that is
// allocated once, so checkpointing and restoring the simulation state on
// the hot path never touches the garbage collector.
package memory

import (
	"fmt"

	"github.com/jabolina/go-rollback/pkg/rollback/types"
)

// Handle references an allocation inside the arena.
// Handles are plain offsets, they never expose the underlying memory
// and every access through them is bounds checked.
type Handle struct {
	// Where the allocation starts.
	Offset int

	// Size of the allocation in bytes.
	Length int
}

// End returns the first offset after the allocation.
func (h Handle) End() int {
	return h.Offset + h.Length
}

// Arena is a bump allocator with a stack discipline.
//
// Allocations are handed out from a cursor that only moves forward.
// Memory is reclaimed explicitly, either rewinding the cursor with
// ResetTo, which releases the given handle and everything allocated
// after it, or with Compact, which releases everything allocated
// before the given handle. There is no implicit reclaim.
//
// The arena is not safe for concurrent use.
type Arena struct {
	// The contiguous buffer, never resized.
	buffer []byte

	// Next free offset.
	cursor int
}

// NewArena allocates the buffer with the given capacity.
func NewArena(capacity int) *Arena {
	if capacity < 0 {
		capacity = 0
	}
	return &Arena{buffer: make([]byte, capacity)}
}

// Capacity returns the total size of the buffer.
func (a *Arena) Capacity() int {
	return len(a.buffer)
}

// Used returns how many bytes are currently allocated.
func (a *Arena) Used() int {
	return a.cursor
}

// Available returns how many bytes can still be allocated.
func (a *Arena) Available() int {
	return len(a.buffer) - a.cursor
}

// Allocate reserves size bytes at the cursor.
// When the buffer is exhausted returns ErrOutOfCapacity, the caller
// must reclaim memory before retrying.
func (a *Arena) Allocate(size int) (Handle, error) {
	if size < 0 {
		return Handle{}, fmt.Errorf("negative allocation %d: %w", size, types.ErrInvalidHandle)
	}
	if size > a.Available() {
		return Handle{}, fmt.Errorf("requested %d bytes, %d available: %w", size, a.Available(), types.ErrOutOfCapacity)
	}
	h := Handle{Offset: a.cursor, Length: size}
	a.cursor += size
	return h, nil
}

// Valid verifies if the handle references a live allocation.
func (a *Arena) Valid(h Handle) bool {
	return h.Offset >= 0 && h.Length >= 0 && h.End() <= a.cursor
}

// ResetTo rewinds the cursor to the handle offset. The handle and
// all the handles allocated after it are invalidated.
func (a *Arena) ResetTo(h Handle) error {
	if h.Offset < 0 || h.Offset > a.cursor {
		return fmt.Errorf("reset to offset %d with cursor at %d: %w", h.Offset, a.cursor, types.ErrInvalidHandle)
	}
	a.cursor = h.Offset
	return nil
}

// Reset releases every allocation.
func (a *Arena) Reset() {
	a.cursor = 0
}

// Write copies the bytes into the allocation. The data must have
// exactly the size of the allocation, there are no partial writes.
func (a *Arena) Write(h Handle, data []byte) error {
	if !a.Valid(h) {
		return fmt.Errorf("write at %d+%d: %w", h.Offset, h.Length, types.ErrInvalidHandle)
	}
	if len(data) != h.Length {
		return fmt.Errorf("write of %d bytes into allocation of %d: %w", len(data), h.Length, types.ErrInvalidHandle)
	}
	copy(a.buffer[h.Offset:h.End()], data)
	return nil
}

// Read returns a copy of the allocation content.
func (a *Arena) Read(h Handle) ([]byte, error) {
	out := make([]byte, h.Length)
	if err := a.ReadInto(h, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadInto copies the allocation content into dst, which must have
// exactly the allocation size.
func (a *Arena) ReadInto(h Handle, dst []byte) error {
	if !a.Valid(h) {
		return fmt.Errorf("read at %d+%d: %w", h.Offset, h.Length, types.ErrInvalidHandle)
	}
	if len(dst) != h.Length {
		return fmt.Errorf("read of allocation with %d bytes into %d: %w", h.Length, len(dst), types.ErrInvalidHandle)
	}
	copy(dst, a.buffer[h.Offset:h.End()])
	return nil
}

// Compact releases everything allocated before the handle.
//
// The live region, from the handle up to the cursor, is moved to the
// start of the buffer. Handles allocated before h become invalid and
// every handle from h onwards must be shifted down by the returned
// value, see Handle.Shift.
func (a *Arena) Compact(h Handle) (int, error) {
	if h.Offset < 0 || h.Offset > a.cursor {
		return 0, fmt.Errorf("compact from offset %d with cursor at %d: %w", h.Offset, a.cursor, types.ErrInvalidHandle)
	}
	shift := h.Offset
	if shift == 0 {
		return 0, nil
	}
	copy(a.buffer, a.buffer[shift:a.cursor])
	a.cursor -= shift
	return shift, nil
}

// Shift moves the handle after a compaction.
func (h Handle) Shift(shift int) Handle {
	return Handle{Offset: h.Offset - shift, Length: h.Length}
}
