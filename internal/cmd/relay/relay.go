// Package relay parses the relay command configuration and runs it.
package relay

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/go-hclog"
	"github.com/jabolina/go-rollback/pkg/rollback/relay"
	"golang.org/x/sync/errgroup"
)

// Config holds the relay command configuration.
type Config struct {
	Addr          string        `env:"ROLLBACK_RELAY_ADDR"           envDefault:":7000"`
	IdleTimeout   time.Duration `env:"ROLLBACK_RELAY_IDLE_TIMEOUT"   envDefault:"10s"`
	ReadTimeout   time.Duration `env:"ROLLBACK_RELAY_READ_TIMEOUT"   envDefault:"100ms"`
	StatsInterval time.Duration `env:"ROLLBACK_RELAY_STATS_INTERVAL" envDefault:"30s"`
	AllowCreate   bool          `env:"ROLLBACK_RELAY_ALLOW_CREATE"   envDefault:"true"`
	LogLevel      string        `env:"ROLLBACK_LOG_LEVEL"            envDefault:"INFO"`
}

// ParseConfig parses environment and flags into a Config. Flags
// override the environment.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "UDP listen address")
	fs.DurationVar(&cfg.IdleTimeout, "idle-timeout", cfg.IdleTimeout, "drop peers silent for this long")
	fs.DurationVar(&cfg.ReadTimeout, "read-timeout", cfg.ReadTimeout, "deadline of each socket read, bounds shutdown")
	fs.DurationVar(&cfg.StatsInterval, "stats-interval", cfg.StatsInterval, "interval between stats logs, zero disables")
	fs.BoolVar(&cfg.AllowCreate, "allow-create", cfg.AllowCreate, "create sessions on the first join")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run serves until the context is done.
func Run(ctx context.Context, cfg Config) error {
	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "relay",
		Level:  hclog.LevelFromString(cfg.LogLevel),
		Output: os.Stderr,
	})
	server, err := relay.NewServer(ctx, &relay.Config{
		Address:     cfg.Addr,
		IdleTimeout: cfg.IdleTimeout,
		ReadTimeout: cfg.ReadTimeout,
		AllowCreate: cfg.AllowCreate,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("init relay: %w", err)
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		<-ctx.Done()
		return server.Close()
	})
	if cfg.StatsInterval > 0 {
		group.Go(func() error {
			ticker := time.NewTicker(cfg.StatsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					c := server.Counters()
					logger.Info("relay stats", "sessions", c.Sessions, "received", c.Received, "forwarded", c.Forwarded, "dropped", c.Dropped)
				}
			}
		})
	}
	return group.Wait()
}
