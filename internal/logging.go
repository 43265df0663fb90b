package internal

import (
	"io"
	"strings"

	"github.com/charmbracelet/log"
)

// NewLogger builds the process logger from the log section of the config.
// An unknown level falls back to info.
func NewLogger(cfg LogConfig, w io.Writer) *log.Logger {
	level, err := log.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = log.InfoLevel
	}

	opts := log.Options{
		Level:           level,
		ReportTimestamp: true,
		Prefix:          "docchat",
	}
	if strings.EqualFold(cfg.Format, "json") {
		opts.Formatter = log.JSONFormatter
	}
	return log.NewWithOptions(w, opts)
}

// DiscardLogger drops everything; used where no logger was supplied.
func DiscardLogger() *log.Logger {
	return log.New(io.Discard)
}
