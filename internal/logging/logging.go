// Package logging centralizes zerolog setup for the controller. All
// packages obtain component-tagged child loggers from here so every
// event carries a "component" field and shares the same sinks.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config controls logger construction.
type Config struct {
	// Level is a zerolog level name ("debug", "info", ...). Invalid or
	// empty values fall back to info.
	Level string

	// Format selects "console" (human-readable, default) or "json".
	Format string

	// File, when non-empty, appends JSON logs to the given path in
	// addition to the console sink.
	File string
}

//nolint:gochecknoglobals // Intentionally global for application-wide structured logging.
var (
	global  = zerolog.New(os.Stderr).With().Timestamp().Logger()
	fileOut *os.File
	mu      sync.RWMutex
)

// Init builds the global logger from cfg. It is safe to call more than
// once; a previously opened log file is closed before reopening.
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		lvl = zerolog.InfoLevel
	}

	var writers []io.Writer
	if strings.EqualFold(cfg.Format, "json") {
		writers = append(writers, os.Stderr)
	} else {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		})
	}

	if fileOut != nil {
		_ = fileOut.Close()
		fileOut = nil
	}

	if cfg.File != "" {
		f, openErr := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if openErr != nil {
			return openErr
		}
		fileOut = f
		writers = append(writers, f)
	}

	global = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(lvl).
		With().
		Timestamp().
		Logger()

	return nil
}

// Close releases the log file handle, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	if fileOut == nil {
		return nil
	}
	err := fileOut.Close()
	fileOut = nil
	return err
}

// L returns the global logger.
func L() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// ComponentLogger returns a child of the global logger tagged with the
// given component name.
func ComponentLogger(component string) zerolog.Logger {
	return L().With().Str("component", component).Logger()
}
