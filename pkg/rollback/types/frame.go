package types

// A FrameNumber identifies a single simulation tick. Frame numbers
// are the shared clock across both simulations and both peers.
//
// Frame 0 is the initial state of the session, the first frame
// that consumes input is frame 1. On the wire a frame number of 0
// means that nothing was acknowledged yet.
type FrameNumber uint32

// Next returns the frame after this one.
func (f FrameNumber) Next() FrameNumber {
	return f + 1
}

// Identifies a participant inside a session.
// On a two peer session the values are 0 and 1, and the
// value is also the index of the player input on an InputSet.
type PlayerID uint8

// Other returns the identifier of the remote player in a two
// player session.
func (p PlayerID) Other() PlayerID {
	return 1 - p
}

// The number of players supported on a single session.
const MaxPlayers = 2
