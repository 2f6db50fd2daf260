package core

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/jabolina/go-rollback/pkg/rollback/types"
)

// Keeps the checksum of the most recent verified frames, to compare
// against the ones reported by the peer. This is only the detection
// hook, what to do after a mismatch is up to the user.
type checksumLog struct {
	// How many frames are retained.
	history int

	sums map[types.FrameNumber]uint64

	// The latest verified frame hashed.
	latest types.FrameNumber

	// Remote checksums for frames not verified locally yet.
	pending []types.Checksum
}

func newChecksumLog(history int) *checksumLog {
	return &checksumLog{
		history: history,
		sums:    make(map[types.FrameNumber]uint64, history),
	}
}

// Checksum hashes a simulation state.
func Checksum(state types.SimulationState) uint64 {
	return xxhash.Sum64(state)
}

func (c *checksumLog) record(frame types.FrameNumber, state types.SimulationState) {
	c.sums[frame] = Checksum(state)
	c.latest = frame
	if c.history > 0 && int(frame) > c.history {
		delete(c.sums, frame-types.FrameNumber(c.history))
	}
}

// The checksum of the latest verified frame, nil before the first.
func (c *checksumLog) current() *types.Checksum {
	sum, ok := c.sums[c.latest]
	if !ok {
		return nil
	}
	return &types.Checksum{Frame: c.latest, Sum: sum}
}

// Compares the remote checksums with the local ones. Checksums for
// frames not verified yet are kept for a later call, and the ones
// older than the retained history are ignored.
func (c *checksumLog) verify(remote []types.Checksum) error {
	candidates := make([]types.Checksum, 0, len(c.pending)+len(remote))
	candidates = append(candidates, c.pending...)
	candidates = append(candidates, remote...)
	c.pending = nil
	for _, checksum := range candidates {
		if checksum.Frame > c.latest {
			c.pending = append(c.pending, checksum)
			continue
		}
		local, ok := c.sums[checksum.Frame]
		if !ok {
			continue
		}
		if local != checksum.Sum {
			return fmt.Errorf("frame %d local %#x remote %#x: %w", checksum.Frame, local, checksum.Sum, types.ErrDesyncDetected)
		}
	}
	if c.history > 0 && len(c.pending) > c.history {
		c.pending = c.pending[len(c.pending)-c.history:]
	}
	return nil
}
