package demo

import (
	"bytes"
	"testing"

	"github.com/jabolina/go-rollback/pkg/rollback/types"
)

func play(frames int) types.SimulationState {
	bots := []*Bot{NewBot(10, 6), NewBot(20, 9)}
	state := Initial()
	for f := 1; f <= frames; f++ {
		frame := types.FrameNumber(f)
		set := types.NewInputSet(frame, types.MaxPlayers)
		for p := range set.Inputs {
			set.Inputs[p] = bots[p].Input(frame)
		}
		state = Step(state, set)
	}
	return state
}

func Test_ShouldBeDeterministic(t *testing.T) {
	first, second := play(1000), play(1000)
	if !bytes.Equal(first, second) {
		t.Errorf("same inputs produced different states")
	}
	if len(first) != StateSize {
		t.Errorf("expected state with %d bytes, found %d", StateSize, len(first))
	}
}

func Test_ShouldNotModifyGivenState(t *testing.T) {
	state := Initial()
	before := state.Clone()
	set := types.NewInputSet(1, types.MaxPlayers)
	set.Inputs[0] = types.InputPayload{Right | Shoot}
	set.Inputs[1] = types.InputPayload{Left}
	_ = Step(state, set)
	if !bytes.Equal(state, before) {
		t.Errorf("step modified the input state")
	}
}

func Test_ShouldMovePlayersWithinBounds(t *testing.T) {
	state := Initial()
	for f := 1; f <= 500; f++ {
		set := types.NewInputSet(types.FrameNumber(f), types.MaxPlayers)
		set.Inputs[0] = types.InputPayload{Left}
		set.Inputs[1] = types.InputPayload{Right}
		state = Step(state, set)
	}
	w, err := Decode(state)
	if err != nil {
		t.Fatalf("failed decoding. %v", err)
	}
	if w.Frame != 500 {
		t.Errorf("expected frame 500, found %d", w.Frame)
	}
	if w.Players[0].X != playerMargin {
		t.Errorf("expected player at the left margin, found %d", w.Players[0].X)
	}
	if w.Players[1].X != Width-playerMargin {
		t.Errorf("expected player at the right margin, found %d", w.Players[1].X)
	}
}

func Test_ShouldSpawnEnemiesAndScore(t *testing.T) {
	w := NewWorld()
	spawned := false
	for f := 0; f < 2000; f++ {
		set := types.NewInputSet(types.FrameNumber(f+1), types.MaxPlayers)
		// Both players chase the first enemy and keep shooting.
		for p := range w.Players {
			input := Shoot
			if w.Enemies[0].Active {
				if w.Enemies[0].X < w.Players[p].X {
					input |= Left
				} else if w.Enemies[0].X > w.Players[p].X {
					input |= Right
				}
			}
			set.Inputs[p] = types.InputPayload{input}
		}
		w.step(set)
		for _, e := range w.Enemies {
			spawned = spawned || e.Active
		}
	}
	if !spawned {
		t.Fatalf("no enemy spawned")
	}
	if w.Players[0].Score+w.Players[1].Score == 0 {
		t.Errorf("no enemy was ever hit")
	}
}
