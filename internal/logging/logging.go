package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/safar/storefront-api/internal/config"
)

// New builds the root logger. Components receive it (or a child) through their constructors.
func New(cfg config.LogConfig, app config.AppConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = time.RFC3339

	var out io.Writer = os.Stdout
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", app.Name).
		Str("env", app.Env).
		Logger()
}
