// Package telemetry holds the narrow logging and metrics surfaces consumed
// by server components, so packages can report without importing the router.
package telemetry

import "log"

// Logger exposes the logging capability required by server components.
type Logger interface {
	Printf(format string, args ...any)
}

// LoggerFunc adapts functions into the Logger interface.
type LoggerFunc func(format string, args ...any)

// Printf implements Logger for LoggerFunc.
func (f LoggerFunc) Printf(format string, args ...any) {
	if f == nil {
		return
	}
	f(format, args...)
}

// WrapLogger adapts a standard library logger to the Logger interface.
func WrapLogger(logger *log.Logger) Logger {
	return &loggerAdapter{logger: logger}
}

type loggerAdapter struct {
	logger *log.Logger
}

func (l *loggerAdapter) Printf(format string, args ...any) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Printf(format, args...)
}

// Metrics exposes the counter and gauge methods required by server components.
type Metrics interface {
	Add(key string, delta uint64)
	Store(key string, value uint64)
}

// NoopMetrics discards every observation. Useful for tests and tools that do
// not wire a router.
type NoopMetrics struct{}

// Add implements Metrics.
func (NoopMetrics) Add(string, uint64) {}

// Store implements Metrics.
func (NoopMetrics) Store(string, uint64) {}
