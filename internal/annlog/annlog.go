// Package annlog wraps github.com/rs/zerolog for the engine's structured
// diagnostics: build progress, cleanup reachability reports, and
// corrupt-index rejections.
package annlog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the engine's structured logger. The zero value is usable and
// writes nothing (level set above zerolog.Disabled would still write, so
// New should be preferred — Logger exists so callers can embed it as a
// struct field without a pointer).
type Logger struct {
	zerolog.Logger
}

// New builds a Logger writing human-readable console output to w (nil
// defaults to os.Stderr).
func New(w io.Writer, level zerolog.Level) Logger {
	if w == nil {
		w = os.Stderr
	}
	console := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	return Logger{Logger: zerolog.New(console).With().Timestamp().Logger().Level(level)}
}

// Discard returns a Logger that writes nothing, useful as a zero-cost
// default for library code embedding a Logger field.
func Discard() Logger {
	return Logger{Logger: zerolog.Nop()}
}
