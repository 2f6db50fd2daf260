package types

// SimulationState is the game defined state, serialized as bytes.
// The engine only copies, snapshots and hashes it.
type SimulationState []byte

// Clone returns a copy of the state.
func (s SimulationState) Clone() SimulationState {
	c := make(SimulationState, len(s))
	copy(c, s)
	return c
}

// StepFunc is the deterministic step of the game.
//
// It must be a pure function: for the same state and inputs it must
// always return the same bytes, without any hidden randomness, time
// dependency or reference to memory outside its arguments. The given
// state must not be modified or retained.
type StepFunc func(state SimulationState, inputs InputSet) SimulationState

// Which simulation an instance is running.
type SimulationKind uint8

const (
	// Advances only with the confirmed inputs of every player.
	Verified SimulationKind = iota

	// Advances every tick using the best available inputs.
	Predicted
)

func (k SimulationKind) String() string {
	if k == Verified {
		return "verified"
	}
	return "predicted"
}

// Describes the current status of a simulation instance.
type SimulationStatus uint8

const (
	// The instance did not tried to advance yet.
	Idle SimulationStatus = iota

	// The instance advanced on the last tick.
	Advancing

	// The instance could not advance on the last tick.
	Stalled
)

func (s SimulationStatus) String() string {
	switch s {
	case Idle:
		return "idle"
	case Advancing:
		return "advancing"
	default:
		return "stalled"
	}
}

// PublishedState is the externally visible result of a tick.
type PublishedState struct {
	// The predicted frame, this is the player visible clock.
	Frame FrameNumber

	// The predicted state at Frame.
	State SimulationState

	// Frame of the latest verified state.
	VerifiedFrame FrameNumber

	// Status of the verified simulation on this tick.
	VerifiedStatus SimulationStatus

	// Set when this tick restored a snapshot and resimulated.
	RolledBack bool

	// How many frames were resimulated on this tick.
	Resimulated int
}
