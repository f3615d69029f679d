package bvar

import (
	"errors"
	"fmt"
)

var (
	// ErrNameConflict is returned when a name is already claimed by a different live variable.
	ErrNameConflict = errors.New("bvar: name already exposed by another variable")
	// ErrEmptyName is returned when exposing under an empty name.
	ErrEmptyName = errors.New("bvar: empty variable name")
	// ErrSamplerPanic wraps a panic recovered from Sampler.TakeSample.
	ErrSamplerPanic = errors.New("bvar: sampler panicked")
	// ErrNoSeries is returned when describing the series of a reducer that does not keep one.
	ErrNoSeries = errors.New("bvar: reducer has no series")
)

// ErrorHandler receives failures raised while sampling.
// No handler stops the sampling goroutine.
type ErrorHandler interface {
	OnError(err error)
}

// IgnoreErrors drops every sampling error.
type IgnoreErrors struct{}

// OnError implements ErrorHandler.
func (IgnoreErrors) OnError(error) {}

// LogErrors logs every sampling error and lets the sweep continue.
type LogErrors struct {
	Logger Logger
}

// NewLogErrors returns a LogErrors handler writing to l, or to the package logger when l is nil.
func NewLogErrors(l Logger) LogErrors {
	if l == nil {
		l = defaultLogger()
	}
	return LogErrors{Logger: l}
}

// OnError implements ErrorHandler.
func (h LogErrors) OnError(err error) {
	if err == nil {
		return
	}
	l := h.Logger
	if l == nil {
		l = defaultLogger()
	}
	l.Errorf("sampler error: %v", err)
}

// panicError converts a recovered value into an error wrapping ErrSamplerPanic.
func panicError(r interface{}) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("%w: %w", ErrSamplerPanic, err)
	}
	return fmt.Errorf("%w: %v", ErrSamplerPanic, r)
}
