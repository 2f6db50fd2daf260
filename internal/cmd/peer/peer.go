// Package peer parses the demo peer configuration and plays a match
// with a bot through the relay.
package peer

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/go-hclog"
	"github.com/jabolina/go-rollback/internal/demo"
	"github.com/jabolina/go-rollback/pkg/rollback"
	"github.com/jabolina/go-rollback/pkg/rollback/core"
	"github.com/jabolina/go-rollback/pkg/rollback/types"
	"golang.org/x/sync/errgroup"
)

// Config holds the peer command configuration.
type Config struct {
	Relay         string        `env:"ROLLBACK_PEER_RELAY"          envDefault:"127.0.0.1:7000"`
	Session       string        `env:"ROLLBACK_PEER_SESSION"`
	Player        uint          `env:"ROLLBACK_PEER_PLAYER"         envDefault:"0"`
	Seed          uint          `env:"ROLLBACK_PEER_SEED"           envDefault:"1"`
	Frames        uint          `env:"ROLLBACK_PEER_FRAMES"         envDefault:"3600"`
	MaxPrediction int           `env:"ROLLBACK_PEER_MAX_PREDICTION" envDefault:"60"`
	JoinTimeout   time.Duration `env:"ROLLBACK_PEER_JOIN_TIMEOUT"   envDefault:"30s"`
	LogLevel      string        `env:"ROLLBACK_LOG_LEVEL"           envDefault:"INFO"`
}

// ParseConfig parses environment and flags into a Config. Flags
// override the environment.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	fs.StringVar(&cfg.Relay, "relay", cfg.Relay, "relay address")
	fs.StringVar(&cfg.Session, "session", cfg.Session, "session identifier shared by both peers")
	fs.UintVar(&cfg.Player, "player", cfg.Player, "local player, 0 or 1")
	fs.UintVar(&cfg.Seed, "seed", cfg.Seed, "seed of the bot inputs")
	fs.UintVar(&cfg.Frames, "frames", cfg.Frames, "frames to play, zero plays until interrupted")
	fs.IntVar(&cfg.MaxPrediction, "max-prediction", cfg.MaxPrediction, "frames the prediction can run ahead")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if cfg.Session == "" {
		return Config{}, errors.New("session is required")
	}
	if cfg.Player >= types.MaxPlayers {
		return Config{}, fmt.Errorf("player %d out of range", cfg.Player)
	}
	return cfg, nil
}

var errMatchOver = errors.New("match over")

// Run joins the session and plays until the frames are done, the
// context ends or the session fails.
func Run(ctx context.Context, cfg Config) error {
	session, err := types.ParseSessionID(cfg.Session)
	if err != nil {
		return fmt.Errorf("parse session: %w", err)
	}
	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "peer",
		Level:  hclog.LevelFromString(cfg.LogLevel),
		Output: os.Stderr,
	})

	conf := rollback.DefaultConfiguration()
	conf.Logger = logger
	conf.Session = session
	conf.Local = types.PlayerID(cfg.Player)
	conf.InputSize = demo.InputSize
	conf.Step = demo.Step
	conf.Initial = demo.Initial()
	conf.MaxPrediction = cfg.MaxPrediction
	if conf.MaxUnacked < 4*conf.MaxPrediction {
		conf.MaxUnacked = 4 * conf.MaxPrediction
	}

	transport, err := core.NewUDPTransport(core.UDPConfig{
		Relay:   cfg.Relay,
		Session: session,
		Peer:    conf.Local,
		Ctx:     ctx,
	}, logger.Named("transport"))
	if err != nil {
		return err
	}
	defer transport.Close()

	select {
	case <-transport.Ready():
	case <-time.After(cfg.JoinTimeout):
		return fmt.Errorf("relay did not accept the join in %s", cfg.JoinTimeout)
	case <-ctx.Done():
		return nil
	}

	peer, err := rollback.NewPeer(conf, transport)
	if err != nil {
		return err
	}

	bot := demo.NewBot(uint32(cfg.Seed), 20)
	var verified atomic.Uint32
	var rollbacks atomic.Uint64
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return peer.Run(ctx, func(frame types.FrameNumber, _ types.PublishedState) types.InputPayload {
			return bot.Input(frame)
		}, func(state types.PublishedState) {
			verified.Store(uint32(state.VerifiedFrame))
			if state.RolledBack {
				rollbacks.Add(1)
			}
		})
	})
	group.Go(func() error {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				frame := verified.Load()
				logger.Debug("progress", "verified", frame, "rollbacks", rollbacks.Load())
				if cfg.Frames > 0 && uint(frame) >= cfg.Frames {
					return errMatchOver
				}
			}
		}
	})

	err = group.Wait()
	world, decodeErr := demo.Decode(peer.VerifiedState())
	if decodeErr == nil {
		stats := peer.Stats()
		logger.Info("match finished",
			"verified", peer.CurrentVerifiedFrame(),
			"score", hclog.Fmt("%d x %d", world.Players[0].Score, world.Players[1].Score),
			"rollbacks", stats.Rollbacks,
			"resimulated", stats.Resimulated,
			"sent", stats.PacketsSent)
	}
	if errors.Is(err, errMatchOver) {
		return nil
	}
	return err
}
