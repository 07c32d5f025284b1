// Package logging configures the charmbracelet/log loggers of insert-docs.
//
// The command logger writes to stderr. Every selected package gets a child
// logger from ForPackage, and its diagnostics are buffered in a Sink until
// the package is done so parallel packages do not interleave.
package logging

import (
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

// Prefix starts every line of the command logger.
const Prefix = "insert-docs"

var (
	fallback = New(os.Stderr, "info")
	current  atomic.Pointer[log.Logger]
)

// New returns a logger writing to w. Level is one of "debug", "info",
// "warn" or "error"; anything else means info.
func New(w io.Writer, level string) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		Prefix: Prefix,
		Level:  ParseLevel(level),
	})
}

// ParseLevel is log.ParseLevel that also accepts "warning" and never fails.
func ParseLevel(level string) log.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	l, err := log.ParseLevel(level)
	if err != nil {
		return log.InfoLevel
	}
	return l
}

// LevelFromFlags maps --verbose and --quiet to a level name. Verbose wins.
func LevelFromFlags(verbose, quiet bool) string {
	switch {
	case verbose:
		return "debug"
	case quiet:
		return "error"
	default:
		return "info"
	}
}

// ForPackage returns a child of logger whose lines name the package.
func ForPackage(logger *log.Logger, name string) *log.Logger {
	return logger.WithPrefix(Prefix + " " + name)
}

// Default is the logger installed by SetDefault, or an info logger on
// stderr before the command line has been parsed.
func Default() *log.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	return fallback
}

// SetDefault installs the command logger.
func SetDefault(logger *log.Logger) {
	current.Store(logger)
}
