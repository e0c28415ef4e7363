package shared

import (
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/rs/zerolog"
)

// SetupLogger builds the application logger. JSON output is meant for
// log collectors; the default is the colored text format.
func SetupLogger(level string, json bool) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	})
	if json {
		logger.SetFormatter(log.JSONFormatter)
		logger.SetTimeFormat(time.RFC3339Nano)
	}

	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}

// SetupAccessLogger configures zerolog for the HTTP access log, with pretty
// console output unless json is set.
func SetupAccessLogger(json bool) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var out io.Writer = os.Stderr
	if !json {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	return zerolog.New(out).
		With().
		Timestamp().
		Str("component", "http").
		Logger()
}
