package types

import "errors"

var (
	// The snapshot allocator is exhausted. This is a configuration
	// error, the arena capacity must bound the worst rollback depth.
	ErrOutOfCapacity = errors.New("snapshot allocator out of capacity")

	// A handle that does not reference a live allocation.
	ErrInvalidHandle = errors.New("invalid snapshot handle")

	// The verified frame is not ready yet. This is not surfaced to
	// the user, it only drives the verified simulation to stall.
	ErrMissingInput = errors.New("missing input for frame")

	// A duplicated frame carried a different payload than the one
	// already recorded. Determinism cannot be guaranteed anymore.
	ErrConflictingInput = errors.New("conflicting input for frame")

	// The link with the peer or relay was dropped.
	ErrConnectionClosed = errors.New("connection closed")

	// The peer reported a different checksum for a verified frame.
	ErrDesyncDetected = errors.New("desync detected")

	// Too many local frames are waiting for the peer acknowledgement.
	ErrWindowOverflow = errors.New("unacknowledged input window overflow")

	// Local input was not submitted in frame order.
	ErrFrameOrder = errors.New("input submitted out of frame order")

	// Datagram that could not be parsed.
	ErrMalformedPacket = errors.New("malformed packet")

	// Relay routing errors.
	ErrUnknownSession = errors.New("unknown session")
	ErrSessionFull    = errors.New("session already has two peers")
)
