package core

import "github.com/jabolina/go-rollback/pkg/rollback/types"

// Assembles the input sets of each frame, joining the local inputs
// and the remote inputs recorded by the channel.
type timeline struct {
	local     types.PlayerID
	inputSize int
	channel   *InputChannel

	// Local inputs for frames after released.
	inputs map[types.FrameNumber]types.InputPayload

	// The highest local frame submitted.
	frame types.FrameNumber

	// Frames up to this one were verified and dropped.
	released types.FrameNumber

	// The latest verified set, the fallback for missing inputs.
	last types.InputSet
}

func newTimeline(local types.PlayerID, inputSize int, channel *InputChannel) *timeline {
	t := &timeline{
		local:     local,
		inputSize: inputSize,
		channel:   channel,
		inputs:    make(map[types.FrameNumber]types.InputPayload),
		last:      types.NewInputSet(0, types.MaxPlayers),
	}
	// Before anything is known every player holds the neutral input.
	for i := range t.last.Inputs {
		t.last.Inputs[i] = make(types.InputPayload, inputSize)
	}
	return t
}

func (t *timeline) submit(frame types.FrameNumber, payload types.InputPayload) {
	t.inputs[frame] = payload.Clone()
	if frame > t.frame {
		t.frame = frame
	}
}

// The latest local input at or before the frame.
func (t *timeline) latestLocal(frame types.FrameNumber) types.InputPayload {
	for f := frame; f > t.released; f-- {
		if payload, ok := t.inputs[f]; ok {
			return payload
		}
	}
	return t.last.Inputs[t.local]
}

// The latest remote input at or before the frame.
func (t *timeline) latestRemote(frame types.FrameNumber) types.InputPayload {
	if payload, ok := t.channel.Latest(frame); ok {
		return payload
	}
	return t.last.Inputs[t.local.Other()]
}

// The complete set for the frame, if every input is known.
func (t *timeline) verified(frame types.FrameNumber) (types.InputSet, bool) {
	local, ok := t.inputs[frame]
	if !ok {
		return types.InputSet{}, false
	}
	remote, ok := t.channel.Remote(frame)
	if !ok {
		return types.InputSet{}, false
	}
	set := types.NewInputSet(frame, types.MaxPlayers)
	set.Inputs[t.local] = local
	set.Inputs[t.local.Other()] = remote
	return set, true
}

// The best guess for the frame, known inputs are used as they are
// and the missing ones hold the last known value.
func (t *timeline) provisional(frame types.FrameNumber) types.InputSet {
	set := types.NewInputSet(frame, types.MaxPlayers)
	set.Inputs[t.local] = t.latestLocal(frame)
	set.Inputs[t.local.Other()] = t.latestRemote(frame)
	return set
}

// Drops every local input up to the verified frame.
func (t *timeline) release(frame types.FrameNumber, last types.InputSet) {
	for f := t.released + 1; f <= frame; f++ {
		delete(t.inputs, f)
	}
	if frame > t.released {
		t.released = frame
		t.last = last
	}
}
