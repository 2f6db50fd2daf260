package relay

import (
	"errors"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Config holds the relay server configuration.
type Config struct {
	// Address to listen for datagrams, like `:7000`.
	Address string

	// A peer that sends nothing for this long is dropped and the
	// other peer of the session is notified.
	IdleTimeout time.Duration

	// Deadline of each read, bounds how long closing takes.
	ReadTimeout time.Duration

	// When set a Join for an unknown session creates it, otherwise
	// sessions must be opened with Server.Open.
	AllowCreate bool

	// Where the relay writes its logs.
	Logger hclog.Logger
}

// DefaultConfig returns a configuration listening on every interface.
func DefaultConfig() *Config {
	return &Config{
		Address:     ":7000",
		IdleTimeout: 10 * time.Second,
		ReadTimeout: 100 * time.Millisecond,
		AllowCreate: true,
		Logger: hclog.New(&hclog.LoggerOptions{
			Name:  "relay",
			Level: hclog.Info,
		}),
	}
}

// ValidateConfig verifies the configuration values.
func ValidateConfig(config *Config) error {
	if config.Address == "" {
		return errors.New("relay address is required")
	}
	if config.IdleTimeout <= 0 {
		return errors.New("idle timeout must be positive")
	}
	if config.ReadTimeout <= 0 {
		return errors.New("read timeout must be positive")
	}
	return nil
}
