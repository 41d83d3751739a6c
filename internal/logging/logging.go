// Package logging provides the structured logger shared by every bridge
// component, built on zerolog.
package logging

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Level names a logging verbosity, matching the values accepted in configuration.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config controls global logger construction.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer

	// ModuleLevels overrides Level for specific component names (see WithComponent).
	ModuleLevels map[string]Level
}

// Logger is the global base logger, initialized by Init.
var Logger zerolog.Logger

var moduleLevels map[string]zerolog.Level

func zerologLevel(l Level) zerolog.Level {
	switch l {
	case DebugLevel:
		return zerolog.DebugLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Init initializes the global logger from cfg.
func Init(cfg Config) {
	zerolog.SetGlobalLevel(zerologLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{Out: output}).With().Timestamp().Logger()
	}

	moduleLevels = make(map[string]zerolog.Level, len(cfg.ModuleLevels))
	for name, level := range cfg.ModuleLevels {
		moduleLevels[name] = zerologLevel(level)
	}
}

// WithComponent returns a child logger tagged with component, honoring any
// per-module level override configured for that component name.
func WithComponent(component string) zerolog.Logger {
	l := Logger.With().Str("component", component).Logger()
	if level, ok := moduleLevels[component]; ok {
		l = l.Level(level)
	}
	return l
}

type contextKey struct{}

// WithContext returns a child context carrying logger.
func WithContext(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the logger carried by ctx, falling back to the global Logger.
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(contextKey{}).(zerolog.Logger); ok {
		return logger
	}
	return Logger
}
