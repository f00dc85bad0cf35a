// Package logger provides the structured logger shared by every package in
// this module: a single process-wide zerolog logger configured for
// human-readable console output, with caller information attached.
package logger

import (
	"os"

	"github.com/rs/zerolog"
)

// Log is the package-wide logger. Components should prefer accepting a
// zerolog.Logger via constructor injection (see scheduler.Petal) and fall
// back to this default only for package-level helpers.
var Log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
	With().Timestamp().Caller().Logger()

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
}

// Named returns a child logger tagged with a "component" field, used so that
// scheduler, collider, and positioner logs can be told apart in a single
// petal's console output.
func Named(component string) zerolog.Logger {
	return Log.With().Str("component", component).Logger()
}
