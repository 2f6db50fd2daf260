package types

import "bytes"

// InputPayload is the opaque input record of a single player for
// a single frame. The engine never interprets the content, only
// the size is verified against the session configuration.
type InputPayload []byte

// Equal verifies if both payloads hold the exact same bytes.
func (p InputPayload) Equal(other InputPayload) bool {
	return bytes.Equal(p, other)
}

// Clone returns a copy that does not share memory with the receiver.
func (p InputPayload) Clone() InputPayload {
	if p == nil {
		return nil
	}
	c := make(InputPayload, len(p))
	copy(c, p)
	return c
}

// FrameInput is a single player input associated with the frame it
// was produced for. This is the unit carried on the input window.
type FrameInput struct {
	// Frame the input belongs to.
	Frame FrameNumber

	// The input content.
	Payload InputPayload
}

// An InputSet holds the inputs of every player for a frame.
//
// Inputs are indexed by PlayerID, a nil entry means the input for
// that player was not received yet. Only a complete set, where all
// players are present, can be used to advance the verified simulation.
type InputSet struct {
	// Which frame these inputs belong to.
	Frame FrameNumber

	// One entry for each player on the session.
	Inputs []InputPayload
}

// NewInputSet creates an empty set for the given frame.
func NewInputSet(frame FrameNumber, players int) InputSet {
	return InputSet{
		Frame:  frame,
		Inputs: make([]InputPayload, players),
	}
}

// Complete returns `true` if every player input is present.
func (s InputSet) Complete() bool {
	for _, input := range s.Inputs {
		if input == nil {
			return false
		}
	}
	return len(s.Inputs) > 0
}

// Equal compares the inputs of both sets, the frame number is
// ignored so provisional and verified sets can be compared.
func (s InputSet) Equal(other InputSet) bool {
	if len(s.Inputs) != len(other.Inputs) {
		return false
	}
	for i := range s.Inputs {
		if (s.Inputs[i] == nil) != (other.Inputs[i] == nil) {
			return false
		}
		if !s.Inputs[i].Equal(other.Inputs[i]) {
			return false
		}
	}
	return true
}

// Clone creates a deep copy of the set.
func (s InputSet) Clone() InputSet {
	c := InputSet{
		Frame:  s.Frame,
		Inputs: make([]InputPayload, len(s.Inputs)),
	}
	for i, input := range s.Inputs {
		c.Inputs[i] = input.Clone()
	}
	return c
}
