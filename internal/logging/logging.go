// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options control the log output
type Options struct {
	Level   string // debug, info, warn, error
	Format  string // console, json
	NoColor bool
	Output  io.Writer
}

// InitDefault sets up a console logger before configuration is loaded
func InitDefault() {
	Init(Options{Level: "info", Format: "console"})
}

// Init replaces the global logger according to opts
func Init(opts Options) zerolog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	if strings.EqualFold(opts.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, NoColor: opts.NoColor, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return log.Logger
}

// Component returns a child of the global logger tagged with name
func Component(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}
