package memory

import (
	"bytes"
	"errors"
	"testing"

	"github.com/jabolina/go-rollback/pkg/rollback/types"
)

func Test_ShouldReadWhatWasWritten(t *testing.T) {
	arena := NewArena(64)
	data := []byte("snapshot-of-frame")

	h, err := arena.Allocate(len(data))
	if err != nil {
		t.Fatalf("failed allocating. %v", err)
	}
	if err = arena.Write(h, data); err != nil {
		t.Fatalf("failed writing. %v", err)
	}

	read, err := arena.Read(h)
	if err != nil {
		t.Fatalf("failed reading. %v", err)
	}
	if !bytes.Equal(read, data) {
		t.Errorf("expected %q, found %q", data, read)
	}

	dst := make([]byte, len(data))
	if err = arena.ReadInto(h, dst); err != nil {
		t.Fatalf("failed reading into. %v", err)
	}
	if !bytes.Equal(dst, data) {
		t.Errorf("expected %q, found %q", data, dst)
	}

	// The copy must not alias the arena.
	read[0] = 'X'
	again, _ := arena.Read(h)
	if again[0] != data[0] {
		t.Errorf("read returned memory of the arena")
	}
}

func Test_ShouldFailWhenOutOfCapacity(t *testing.T) {
	arena := NewArena(10)
	if _, err := arena.Allocate(8); err != nil {
		t.Fatalf("failed allocating. %v", err)
	}
	_, err := arena.Allocate(3)
	if !errors.Is(err, types.ErrOutOfCapacity) {
		t.Errorf("expected out of capacity, found %v", err)
	}
	if arena.Used() != 8 {
		t.Errorf("failed allocation moved the cursor to %d", arena.Used())
	}
}

func Test_ShouldReuseMemoryAfterResetTo(t *testing.T) {
	arena := NewArena(30)
	first, _ := arena.Allocate(10)
	second, _ := arena.Allocate(10)
	_, _ = arena.Allocate(10)
	if arena.Available() != 0 {
		t.Fatalf("expected full arena, %d available", arena.Available())
	}

	if err := arena.ResetTo(second); err != nil {
		t.Fatalf("failed reset. %v", err)
	}
	if arena.Used() != second.Offset {
		t.Errorf("expected cursor at %d, found %d", second.Offset, arena.Used())
	}
	if arena.Valid(second) {
		t.Errorf("handle still valid after reset")
	}
	if !arena.Valid(first) {
		t.Errorf("handle before reset was invalidated")
	}

	again, err := arena.Allocate(20)
	if err != nil {
		t.Fatalf("failed allocating after reset. %v", err)
	}
	if again.Offset != second.Offset {
		t.Errorf("expected reuse at %d, found %d", second.Offset, again.Offset)
	}

	arena.Reset()
	if arena.Used() != 0 || arena.Available() != arena.Capacity() {
		t.Errorf("reset leaked %d bytes", arena.Used())
	}
}

func Test_ShouldRejectInvalidHandles(t *testing.T) {
	arena := NewArena(16)
	h, _ := arena.Allocate(4)

	if err := arena.Write(h, []byte("too long")); !errors.Is(err, types.ErrInvalidHandle) {
		t.Errorf("expected invalid handle on partial write, found %v", err)
	}
	if err := arena.ReadInto(h, make([]byte, 2)); !errors.Is(err, types.ErrInvalidHandle) {
		t.Errorf("expected invalid handle on short read, found %v", err)
	}
	if _, err := arena.Read(Handle{Offset: 10, Length: 4}); !errors.Is(err, types.ErrInvalidHandle) {
		t.Errorf("expected invalid handle outside the cursor, found %v", err)
	}
	if err := arena.ResetTo(Handle{Offset: 12}); !errors.Is(err, types.ErrInvalidHandle) {
		t.Errorf("expected invalid handle reset after cursor, found %v", err)
	}
}

func Test_ShouldCompactLiveRegion(t *testing.T) {
	arena := NewArena(12)
	var handles []Handle
	for _, value := range []string{"aaaa", "bbbb", "cccc"} {
		h, err := arena.Allocate(4)
		if err != nil {
			t.Fatalf("failed allocating. %v", err)
		}
		if err = arena.Write(h, []byte(value)); err != nil {
			t.Fatalf("failed writing. %v", err)
		}
		handles = append(handles, h)
	}

	shift, err := arena.Compact(handles[1])
	if err != nil {
		t.Fatalf("failed compacting. %v", err)
	}
	if shift != 4 {
		t.Errorf("expected shift of 4, found %d", shift)
	}
	if arena.Available() != 4 {
		t.Errorf("expected 4 bytes released, %d available", arena.Available())
	}

	for i, expected := range []string{"bbbb", "cccc"} {
		read, err := arena.Read(handles[i+1].Shift(shift))
		if err != nil {
			t.Fatalf("failed reading shifted handle. %v", err)
		}
		if string(read) != expected {
			t.Errorf("expected %s, found %s", expected, read)
		}
	}
}
