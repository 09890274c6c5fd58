// Package events parses events command flags and composes transport entrypoints.
package events

import (
	"context"
	"flag"
	"fmt"

	entrypoint "github.com/gatherpoint/gatherpoint/internal/platform/cmd"
	server "github.com/gatherpoint/gatherpoint/internal/services/events/app"
)

// Config holds events command configuration.
type Config struct {
	HTTPAddr               string `env:"GATHERPOINT_EVENTS_HTTP_ADDR" envDefault:":8080"`
	DBPath                 string `env:"GATHERPOINT_EVENTS_DB_PATH"   envDefault:"events.db"`
	VerifyAttendanceTokens bool   `env:"GATHERPOINT_EVENTS_ATTENDANCE_TOKENS"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "events HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "events SQLite database path")
	fs.BoolVar(&cfg.VerifyAttendanceTokens, "attendance-tokens", cfg.VerifyAttendanceTokens, "verify signed attendance tokens")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the events app and serves it until the context ends.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceEvents, func(context.Context) error {
		if err := server.Run(ctx, server.Config{
			HTTPAddr:               cfg.HTTPAddr,
			DBPath:                 cfg.DBPath,
			VerifyAttendanceTokens: cfg.VerifyAttendanceTokens,
		}); err != nil {
			return fmt.Errorf("serve events: %w", err)
		}
		return nil
	})
}
