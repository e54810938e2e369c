// Package dispatcher parses dispatcher command flags and launches the
// delivery dispatcher runtime.
package dispatcher

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/louisbranch/neso/internal/platform/cmd"
	dispatcherserver "github.com/louisbranch/neso/internal/services/dispatcher/app"
)

// Config holds dispatcher command configuration.
type Config struct {
	Port         int           `env:"NESO_DISPATCHER_PORT" envDefault:"8091"`
	DBPath       string        `env:"NESO_DISPATCHER_DB_PATH" envDefault:"data/federation.db"`
	PollInterval time.Duration `env:"NESO_DISPATCHER_POLL_INTERVAL" envDefault:"2s"`
	MaxAttempts  int           `env:"NESO_DISPATCHER_MAX_ATTEMPTS" envDefault:"8"`
	SendTimeout  time.Duration `env:"NESO_DISPATCHER_SEND_TIMEOUT" envDefault:"30s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The dispatcher health gRPC server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The federation SQLite database path")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Delivery queue poll interval")
	fs.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "Maximum delivery attempts before dropping")
	fs.DurationVar(&cfg.SendTimeout, "send-timeout", cfg.SendTimeout, "Per-delivery send timeout")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the dispatcher runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceDispatcher, func(context.Context) error {
		return dispatcherserver.Run(ctx, dispatcherserver.RuntimeConfig{
			Port:         cfg.Port,
			DBPath:       cfg.DBPath,
			PollInterval: cfg.PollInterval,
			MaxAttempts:  cfg.MaxAttempts,
			SendTimeout:  cfg.SendTimeout,
		})
	})
}
