package demo

import "github.com/jabolina/go-rollback/pkg/rollback/types"

// Bot produces inputs for a player without a human. The inputs only
// depend on the seed and the frame, so a bot replays the same match.
type Bot struct {
	seed uint32

	// Frames each decision holds.
	hold uint32
}

// NewBot creates a bot holding each decision for some frames.
func NewBot(seed uint32, hold uint32) *Bot {
	if hold == 0 {
		hold = 1
	}
	return &Bot{seed: seed, hold: hold}
}

// Input returns the payload for the frame.
func (b *Bot) Input(frame types.FrameNumber) types.InputPayload {
	decision := simpleHash(uint32(frame)/b.hold ^ b.seed)
	var input byte
	switch decision % 3 {
	case 0:
		input = Left
	case 1:
		input = Right
	}
	if decision&0x10 != 0 {
		input |= Shoot
	}
	return types.InputPayload{input}
}
