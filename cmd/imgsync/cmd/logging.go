package cmd

import (
	"io"
	"log/slog"

	"github.com/charmbracelet/log"
)

// newLogger renders slog records with charmbracelet/log. Unknown levels
// fall back to info; debug forces debug level with timestamps.
func newLogger(w io.Writer, level string, debug bool) *slog.Logger {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	if debug {
		lvl = log.DebugLevel
	}

	logger := log.NewWithOptions(w, log.Options{
		Level:           lvl,
		ReportTimestamp: debug,
		TimeFormat:      "15:04:05",
	})
	return slog.New(logger)
}
