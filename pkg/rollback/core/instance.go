package core

import "github.com/jabolina/go-rollback/pkg/rollback/types"

// InputPolicy decides which inputs an instance uses to advance.
// This is the only difference between the verified and the
// predicted simulations, both share the same Instance type.
type InputPolicy interface {
	// Inputs returns the set to advance into the given frame, or
	// `false` if the instance must not advance.
	Inputs(frame types.FrameNumber) (types.InputSet, bool)
}

// StrictPolicy only advances when every player input for the frame
// was received.
type StrictPolicy struct {
	timeline *timeline
}

// StrictPolicy implements InputPolicy.
func (s StrictPolicy) Inputs(frame types.FrameNumber) (types.InputSet, bool) {
	return s.timeline.verified(frame)
}

// HoldLastPolicy always advances, the inputs that are missing are
// replaced with the last known input of the same player.
type HoldLastPolicy struct {
	timeline *timeline
}

// HoldLastPolicy implements InputPolicy.
func (h HoldLastPolicy) Inputs(frame types.FrameNumber) (types.InputSet, bool) {
	return h.timeline.provisional(frame), true
}

// Instance is a single simulation advancing through frames.
type Instance struct {
	kind   types.SimulationKind
	policy InputPolicy
	step   types.StepFunc

	frame  types.FrameNumber
	state  types.SimulationState
	status types.SimulationStatus

	// Frame of the verified state a predicted instance branched from.
	branch types.FrameNumber
}

// NewInstance creates an instance at frame zero with the given state.
func NewInstance(kind types.SimulationKind, policy InputPolicy, step types.StepFunc, initial types.SimulationState) *Instance {
	return &Instance{
		kind:   kind,
		policy: policy,
		step:   step,
		state:  initial.Clone(),
		status: types.Idle,
	}
}

// Advance tries to move the instance one frame forward.
// Returns the inputs used and `true` if the instance advanced.
func (i *Instance) Advance() (types.InputSet, bool) {
	inputs, ok := i.policy.Inputs(i.frame.Next())
	if !ok {
		i.status = types.Stalled
		return types.InputSet{}, false
	}
	i.StepWith(inputs)
	return inputs, true
}

// StepWith advances one frame using the given inputs, regardless of
// the instance policy. Used when resimulating.
func (i *Instance) StepWith(inputs types.InputSet) {
	i.state = i.step(i.state, inputs)
	i.frame = i.frame.Next()
	i.status = types.Advancing
}

// Restore replaces the instance state, used to rollback.
// The instance takes ownership of the given state.
func (i *Instance) Restore(frame types.FrameNumber, state types.SimulationState) {
	i.frame = frame
	i.state = state
}

// Kind returns which simulation this is.
func (i *Instance) Kind() types.SimulationKind {
	return i.kind
}

// Frame returns the current frame.
func (i *Instance) Frame() types.FrameNumber {
	return i.frame
}

// State returns the current state. It must not be modified.
func (i *Instance) State() types.SimulationState {
	return i.state
}

// Status returns the status after the last advance attempt.
func (i *Instance) Status() types.SimulationStatus {
	return i.status
}

// Branch returns the verified frame the instance branched from.
func (i *Instance) Branch() types.FrameNumber {
	return i.branch
}

func (i *Instance) setStatus(status types.SimulationStatus) {
	i.status = status
}
