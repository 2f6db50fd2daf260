package rollback

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/jabolina/go-rollback/pkg/rollback/core"
	"github.com/jabolina/go-rollback/pkg/rollback/types"
	"github.com/jabolina/go-rollback/pkg/rollback/wire"
)

// The version of the wire protocol used between the peers. Use the
// Version member on the config to control the protocol version at
// which the peers will communicate with each other.
//
// 0: Original and first available implementation.
type ProtocolVersion uint

const LatestProtocolVersion = 0

// Config holds everything a peer needs to join a session.
type Config struct {
	// Control for versioning the protocol.
	Version ProtocolVersion

	// User provided logger to be used.
	Logger hclog.Logger

	// LogLevel represents a log level, used when no logger is given.
	LogLevel string

	// The session on the relay.
	Session types.SessionID

	// The local player, 0 or 1.
	Local types.PlayerID

	// Fixed size of every input payload.
	InputSize int

	// The deterministic step of the game.
	Step types.StepFunc

	// State at frame zero, must be equal on both peers. Every state
	// the step returns is expected to have the same size.
	Initial types.SimulationState

	// Interval between ticks when using Peer.Run.
	FrameInterval time.Duration

	// How many frames the predicted simulation can be ahead of the
	// verified simulation.
	MaxPrediction int

	// The most frames carried on a single packet.
	MaxPacketFrames int

	// The most local frames waiting for acknowledgement before the
	// session is considered broken.
	MaxUnacked int

	// Resimulate even when the provisional inputs were right.
	AlwaysResimulate bool

	// Exchange checksums of the verified state.
	DesyncDetection bool

	// How many verified checksums are retained for comparison.
	ChecksumHistory int
}

// DefaultConfiguration creates a configuration ready to be used once
// the session, player, step and initial state are set.
func DefaultConfiguration() *Config {
	return &Config{
		Version:         LatestProtocolVersion,
		Logger:          hclog.New(&hclog.LoggerOptions{Level: hclog.Info, Output: os.Stdout}),
		LogLevel:        "INFO",
		InputSize:       1,
		FrameInterval:   time.Second / 60,
		MaxPrediction:   60,
		MaxPacketFrames: 32,
		MaxUnacked:      240,
		DesyncDetection: true,
		ChecksumHistory: 120,
	}
}

// ValidateConfig verifies if the configuration can be used.
func ValidateConfig(config *Config) error {
	if config.Version > LatestProtocolVersion {
		return fmt.Errorf("invalid protocol version %d, must be in 0 up to %d", config.Version, LatestProtocolVersion)
	}
	if config.Local >= types.MaxPlayers {
		return fmt.Errorf("invalid local player %d, must be lower than %d", config.Local, types.MaxPlayers)
	}
	if config.InputSize <= 0 {
		return fmt.Errorf("invalid input size %d", config.InputSize)
	}
	if config.Step == nil {
		return errors.New("step function is required")
	}
	if len(config.Initial) == 0 {
		return errors.New("initial state is required")
	}
	if config.MaxPrediction <= 0 {
		return fmt.Errorf("invalid max prediction %d", config.MaxPrediction)
	}
	if config.MaxPacketFrames <= 0 {
		return fmt.Errorf("invalid max packet frames %d", config.MaxPacketFrames)
	}
	if err := wire.CheckWindow(config.MaxPacketFrames, config.InputSize); err != nil {
		return fmt.Errorf("packet of %d frames with %d bytes each does not fit a datagram: %w", config.MaxPacketFrames, config.InputSize, err)
	}
	if config.MaxUnacked < config.MaxPrediction {
		return fmt.Errorf("max unacked %d lower than max prediction %d", config.MaxUnacked, config.MaxPrediction)
	}
	// The acknowledged frame stays on the window, so it needs room
	// for at least one more.
	if config.MaxUnacked < 2 {
		return fmt.Errorf("invalid max unacked %d", config.MaxUnacked)
	}
	if config.FrameInterval <= 0 {
		return fmt.Errorf("invalid frame interval %s", config.FrameInterval)
	}

	if config.Logger == nil {
		level := hclog.LevelFromString(config.LogLevel)
		if level == hclog.NoLevel {
			level = hclog.Info
		}
		config.Logger = hclog.New(&hclog.LoggerOptions{Level: level, Output: os.Stdout})
	}
	return nil
}

func (c *Config) driverConfig() core.DriverConfig {
	return core.DriverConfig{
		Channel: core.ChannelConfig{
			Local:           c.Local,
			InputSize:       c.InputSize,
			MaxPacketFrames: c.MaxPacketFrames,
			MaxUnacked:      c.MaxUnacked,
		},
		Step:             c.Step,
		Initial:          c.Initial,
		MaxPrediction:    c.MaxPrediction,
		ArenaCapacity:    (c.MaxPrediction + 1) * len(c.Initial),
		AlwaysResimulate: c.AlwaysResimulate,
		DesyncDetection:  c.DesyncDetection,
		ChecksumHistory:  c.ChecksumHistory,
	}
}
