// Package logging builds the structured logger shared by every ScribeDrop
// component. Components receive the logger explicitly; there is no package
// level state here.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// Options controls logger construction.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text, json, logfmt
	Prefix string
	Output io.Writer
}

// New returns a logger configured from opts. Unknown levels fall back to info.
func New(opts Options) *log.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	level, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(opts.Level)))
	if err != nil {
		level = log.InfoLevel
	}
	return log.NewWithOptions(out, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "2006-01-02 15:04:05",
		Level:           level,
		Prefix:          opts.Prefix,
		Formatter:       formatter(opts.Format),
	})
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *log.Logger {
	return log.New(io.Discard)
}

// OrDefault returns l, or the package default logger when l is nil.
func OrDefault(l *log.Logger) *log.Logger {
	if l == nil {
		return log.Default()
	}
	return l
}

func formatter(name string) log.Formatter {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "json":
		return log.JSONFormatter
	case "logfmt":
		return log.LogfmtFormatter
	default:
		return log.TextFormatter
	}
}
