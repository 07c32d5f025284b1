package logging

import (
	"sync"

	"github.com/charmbracelet/log"
)

// Diagnostic is one buffered message of a Sink.
type Diagnostic struct {
	Level   log.Level
	Message string
	KeyVals []any
}

// Sink collects the diagnostics of one package so they can be printed
// together once the package is done. Strict sinks report warnings as errors.
// A Sink is safe for concurrent use.
type Sink struct {
	mu       sync.Mutex
	strict   bool
	diags    []Diagnostic
	warnings int
	errors   int
}

// NewSink returns an empty sink.
func NewSink(strict bool) *Sink {
	return &Sink{strict: strict}
}

func (s *Sink) add(level log.Level, msg string, keyvals []any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if level == log.WarnLevel && s.strict {
		level = log.ErrorLevel
	}
	switch level {
	case log.WarnLevel:
		s.warnings++
	case log.ErrorLevel:
		s.errors++
	}
	s.diags = append(s.diags, Diagnostic{Level: level, Message: msg, KeyVals: keyvals})
}

// Debug records a debug message.
func (s *Sink) Debug(msg string, keyvals ...any) { s.add(log.DebugLevel, msg, keyvals) }

// Info records an informational message.
func (s *Sink) Info(msg string, keyvals ...any) { s.add(log.InfoLevel, msg, keyvals) }

// Warn records a warning, or an error for strict sinks.
func (s *Sink) Warn(msg string, keyvals ...any) { s.add(log.WarnLevel, msg, keyvals) }

// Error records an error.
func (s *Sink) Error(msg string, keyvals ...any) { s.add(log.ErrorLevel, msg, keyvals) }

// Warnings is the number of warnings recorded so far.
func (s *Sink) Warnings() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.warnings
}

// Errors is the number of errors recorded so far.
func (s *Sink) Errors() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errors
}

// Diagnostics returns a copy of the buffered diagnostics.
func (s *Sink) Diagnostics() []Diagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Diagnostic(nil), s.diags...)
}

// Flush writes the buffered diagnostics to logger and clears the buffer.
// Counts are kept.
func (s *Sink) Flush(logger *log.Logger) {
	s.mu.Lock()
	diags := s.diags
	s.diags = nil
	s.mu.Unlock()

	for _, d := range diags {
		logger.Log(d.Level, d.Message, d.KeyVals...)
	}
}
