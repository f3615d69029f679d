package bvar

import (
	"fmt"
	"io"
	"time"
)

// samplesFor converts a window in seconds into a number of sampling intervals.
func samplesFor(seconds int, interval time.Duration) int {
	if seconds < 1 {
		seconds = 1
	}
	n := int(time.Duration(seconds) * time.Second / interval)
	return max(n, 1)
}

// Window is a Variable reporting a reducer's value accumulated over the
// last few seconds.
//
// For a reducer with an inverse op (Adder, IntRecorder) the value is the
// difference between the newest sample and the sample taken at the start of
// the window. For one without (Maxer, Miner) the value is the fold of the
// per-interval partials recorded since the window was created; the
// reducer's own Value keeps covering everything added to it.
type Window[T any] struct {
	exposer

	reducer *Reducer[T]
	sampler *ReducerSampler[T]
	seconds int
	samples int
}

// NewWindow constructs a Window over the last seconds of r and starts sampling r.
func NewWindow[T any](r *Reducer[T], seconds int) *Window[T] {
	s := r.windowSampler()
	n := samplesFor(seconds, s.Interval())
	s.SetWindow(n)

	w := &Window[T]{reducer: r, sampler: s, seconds: seconds, samples: n}
	w.exposer.bind(w, r.cfg.vars)
	return w
}

// Seconds returns the window length.
func (w *Window[T]) Seconds() int { return w.seconds }

// Value returns the value accumulated in the window, or the reducer's
// identity until at least one full interval has been sampled.
func (w *Window[T]) Value() T {
	v, _, ok := w.sampler.ValueInWindow(w.samples)
	if !ok {
		return w.reducer.Identity()
	}
	return v
}

// Describe writes the window value.
func (w *Window[T]) Describe(out io.Writer, quoteString bool) bool {
	return describeValue(out, w.Value(), quoteString)
}

// PerSecond is a Variable reporting a numeric reducer's value in the window
// divided by the window's time span.
type PerSecond[T Number] struct {
	exposer

	reducer *Reducer[T]
	sampler *ReducerSampler[T]
	seconds int
	samples int
}

// NewPerSecond constructs a PerSecond over the last seconds of r.
func NewPerSecond[T Number](r *Reducer[T], seconds int) *PerSecond[T] {
	s := r.windowSampler()
	n := samplesFor(seconds, s.Interval())
	s.SetWindow(n)

	p := &PerSecond[T]{reducer: r, sampler: s, seconds: seconds, samples: n}
	p.exposer.bind(p, r.cfg.vars)
	return p
}

// Value returns the rate per second, or 0 until a time span has been sampled.
func (p *PerSecond[T]) Value() float64 {
	v, span, ok := p.sampler.ValueInWindow(p.samples)
	if !ok || span <= 0 {
		return 0
	}
	return float64(v) / span.Seconds()
}

// Seconds returns the window length.
func (p *PerSecond[T]) Seconds() int { return p.seconds }

// Describe writes the rate.
func (p *PerSecond[T]) Describe(w io.Writer, _ bool) bool {
	_, err := fmt.Fprint(w, p.Value())
	return err == nil
}

// WindowType is a standard reporting window.
type WindowType int

const (
	Second10 WindowType = iota
	Minute1
	Minute5
	Minute15
	Hour1
	Hour6
	Hour12
	Day1
	Day7
	Day30
)

var windowTypes = [...]struct {
	name    string
	seconds int64
}{
	Second10: {"10_second", 10},
	Minute1:  {"1_minute", 60},
	Minute5:  {"5_minute", 300},
	Minute15: {"15_minute", 900},
	Hour1:    {"1_hour", 3600},
	Hour6:    {"6_hour", 21600},
	Hour12:   {"12_hour", 43200},
	Day1:     {"1_day", 86400},
	Day7:     {"7_day", 604800},
	Day30:    {"30_day", 2592000},
}

func (t WindowType) valid() bool { return t >= 0 && int(t) < len(windowTypes) }

// Seconds returns the window length in seconds.
func (t WindowType) Seconds() int64 {
	if !t.valid() {
		return 0
	}
	return windowTypes[t].seconds
}

// Duration returns the window length.
func (t WindowType) Duration() time.Duration {
	return time.Duration(t.Seconds()) * time.Second
}

// Contains reports whether at is no later than now and no older than the window.
func (t WindowType) Contains(at, now time.Time) bool {
	if now.Before(at) {
		return false
	}
	return now.Sub(at) <= t.Duration()
}

func (t WindowType) String() string {
	if !t.valid() {
		return fmt.Sprintf("WindowType(%d)", int(t))
	}
	return windowTypes[t].name
}

// CommonWindows returns the windows usually reported: one minute to one day.
func CommonWindows() []WindowType {
	return []WindowType{Minute1, Minute5, Minute15, Hour1, Hour6, Hour12, Day1}
}

// AllWindows returns every WindowType from shortest to longest.
func AllWindows() []WindowType {
	return []WindowType{Second10, Minute1, Minute5, Minute15, Hour1, Hour6, Hour12, Day1, Day7, Day30}
}
