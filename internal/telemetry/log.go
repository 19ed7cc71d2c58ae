// Package telemetry is the structured-logging and metrics surface every
// other package in this module writes through. It keeps the call-site shape
// of the teacher's pkg/logger (a package-level default logger, short verb
// functions) but backs it with zerolog instead of a hand-rolled ANSI wrapper.
package telemetry

import (
	"os"

	"github.com/rs/zerolog"
)

var defaultLogger zerolog.Logger

func init() {
	defaultLogger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		With().Timestamp().Logger()
}

// SetLevel sets the minimum level the default logger emits.
func SetLevel(level zerolog.Level) {
	defaultLogger = defaultLogger.Level(level)
}

// Logger returns the shared logger so packages can attach component fields,
// e.g. telemetry.Logger().With().Str("component", "connection").Logger().
func Logger() zerolog.Logger {
	return defaultLogger
}

func Debug(msg string, fields ...map[string]any) {
	log(defaultLogger.Debug(), msg, fields...)
}

func Info(msg string, fields ...map[string]any) {
	log(defaultLogger.Info(), msg, fields...)
}

func Warn(msg string, fields ...map[string]any) {
	log(defaultLogger.Warn(), msg, fields...)
}

func Error(msg string, err error, fields ...map[string]any) {
	e := defaultLogger.Error()
	if err != nil {
		e = e.Err(err)
	}
	log(e, msg, fields...)
}

func log(e *zerolog.Event, msg string, fields ...map[string]any) {
	for _, f := range fields {
		for k, v := range f {
			e = e.Interface(k, v)
		}
	}
	e.Msg(msg)
}
