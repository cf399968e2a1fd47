package telemetry

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

var (
	mu     sync.RWMutex
	logger = newLogger(os.Stdout, "info")
)

func newLogger(w io.Writer, level string) zerolog.Logger {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	zerolog.TimestampFieldName = "ts"
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// Configure replaces the process logger. Tests point it at a buffer.
func Configure(w io.Writer, level string) {
	if w == nil {
		w = os.Stdout
	}
	l := newLogger(w, level)
	mu.Lock()
	logger = l
	mu.Unlock()
}

func current() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Info writes an info-level log line with the given fields.
func Info(msg string, fields map[string]any) {
	l := current()
	l.Info().Fields(fields).Msg(msg)
}

// Warn writes a warn-level log line with the given fields.
func Warn(msg string, fields map[string]any) {
	l := current()
	l.Warn().Fields(fields).Msg(msg)
}

// Error writes an error-level log line with the given fields.
func Error(msg string, fields map[string]any) {
	l := current()
	l.Error().Fields(fields).Msg(msg)
}

// ErrorStack logs err together with its stack trace when the error carries one
// (errors built with github.com/pkg/errors).
func ErrorStack(msg string, err error, fields map[string]any) {
	l := current()
	l.Error().Stack().Err(err).Fields(fields).Msg(msg)
}
