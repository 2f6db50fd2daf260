// Package demo is a small two player shooter used to exercise the
// rollback engine. Every value is an integer so the step is exactly
// reproducible on any machine.
package demo

import (
	"bytes"
	"encoding/binary"

	"github.com/jabolina/go-rollback/pkg/rollback/types"
)

const (
	Width  = 800
	Height = 600

	MaxBullets = 4
	MaxEnemies = 8

	playerY      = Height - 50
	playerMargin = 20
	playerSpeed  = 3
	bulletSpeed  = 8
	enemySpeed   = 2
	reloadFrames = 15
	spawnEvery   = 120
	spawnMargin  = 40

	// Bullet size plus enemy size, halved.
	hitRadius = 22
)

// Bits of the single byte input.
const (
	Left  byte = 1 << iota
	Right
	Shoot
)

// InputSize is the size of every payload of the game.
const InputSize = 1

type Bullet struct {
	X, Y   int32
	Active bool
}

type Player struct {
	X        int32
	Cooldown uint16
	Score    uint32
	Bullets  [MaxBullets]Bullet
}

type Enemy struct {
	X, Y   int32
	Active bool
}

// World is the whole game state. The binary encoding of this
// structure is the simulation state handed to the engine.
type World struct {
	Frame   uint32
	Players [types.MaxPlayers]Player
	Enemies [MaxEnemies]Enemy
}

// StateSize is the size of every encoded world.
var StateSize = binary.Size(World{})

// NewWorld creates the world at frame zero.
func NewWorld() World {
	var w World
	w.Players[0].X = 100
	w.Players[1].X = 250
	return w
}

// Initial returns the encoded world at frame zero.
func Initial() types.SimulationState {
	return NewWorld().Encode()
}

// Encode serializes the world.
func (w World) Encode() types.SimulationState {
	var buf bytes.Buffer
	buf.Grow(StateSize)
	// Fixed size values only, the write cannot fail.
	_ = binary.Write(&buf, binary.BigEndian, &w)
	return buf.Bytes()
}

// Decode reads an encoded world.
func Decode(state types.SimulationState) (World, error) {
	var w World
	err := binary.Read(bytes.NewReader(state), binary.BigEndian, &w)
	return w, err
}

// Spread the frame bits, seeds the enemy spawn position.
func simpleHash(frame uint32) uint32 {
	var hash uint32
	for i := 0; i < 4; i++ {
		hash ^= (frame >> (8 * i)) & 0xff
		hash *= 31
	}
	return hash
}

// Step advances the world one frame. It is a types.StepFunc.
func Step(state types.SimulationState, inputs types.InputSet) types.SimulationState {
	w, err := Decode(state)
	if err != nil {
		return state.Clone()
	}
	w.step(inputs)
	return w.Encode()
}

func (w *World) step(inputs types.InputSet) {
	var shooting [types.MaxPlayers]bool
	for i := range w.Players {
		var input byte
		if i < len(inputs.Inputs) && len(inputs.Inputs[i]) > 0 {
			input = inputs.Inputs[i][0]
		}
		w.Players[i].move(input)
		shooting[i] = input&Shoot != 0
	}

	w.updateEnemies()
	for i := range w.Players {
		w.collide(&w.Players[i])
	}
	for i := range w.Players {
		w.Players[i].update(shooting[i])
	}
	w.Frame++
}

func (p *Player) move(input byte) {
	switch {
	case input&Left != 0 && input&Right == 0:
		p.X -= playerSpeed
	case input&Right != 0 && input&Left == 0:
		p.X += playerSpeed
	}
	p.X = min(max(p.X, playerMargin), Width-playerMargin)
}

func (p *Player) update(shoot bool) {
	if p.Cooldown > 0 {
		p.Cooldown--
	}
	if shoot && p.Cooldown == 0 {
		for i := range p.Bullets {
			if !p.Bullets[i].Active {
				p.Bullets[i] = Bullet{X: p.X, Y: playerY, Active: true}
				p.Cooldown = reloadFrames
				break
			}
		}
	}
	for i := range p.Bullets {
		b := &p.Bullets[i]
		if !b.Active {
			continue
		}
		b.Y -= bulletSpeed
		if b.Y <= 0 {
			*b = Bullet{}
		}
	}
}

func (w *World) updateEnemies() {
	active := 0
	for i := range w.Enemies {
		e := &w.Enemies[i]
		if !e.Active {
			continue
		}
		e.Y += enemySpeed
		if e.Y >= Height {
			*e = Enemy{}
			continue
		}
		w.Enemies[active] = *e
		if active != i {
			*e = Enemy{}
		}
		active++
	}

	if w.Frame%spawnEvery == 0 && active < MaxEnemies {
		w.Enemies[active] = Enemy{
			X:      spawnMargin + int32(simpleHash(w.Frame)%(Width-2*spawnMargin)),
			Y:      0,
			Active: true,
		}
	}
}

func (w *World) collide(p *Player) {
	for i := range w.Enemies {
		e := &w.Enemies[i]
		if !e.Active {
			continue
		}
		for j := range p.Bullets {
			b := &p.Bullets[j]
			if !b.Active {
				continue
			}
			dx, dy := e.X-b.X, e.Y-b.Y
			if dx*dx+dy*dy < hitRadius*hitRadius {
				*e = Enemy{}
				*b = Bullet{}
				p.Score++
				break
			}
		}
	}
}
