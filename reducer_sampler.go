package bvar

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
	"weak"

	"github.com/benbjohnson/clock"
	"github.com/gammazero/deque"
)

type sample[T any] struct {
	value T
	at    time.Time
}

// ReducerSampler records a reducer's value once per sampling interval into a
// bounded queue, which windows read from.
//
// With an inverse op the sampler records the running value and a window is
// inv(latest, oldest). Without one it records the per-interval partial value,
// taken from a combiner that mirrors the reducer, and a window is the fold of
// the partials. The reducer itself is only read.
//
// The sampler holds its reducer weakly: once the reducer is collected every
// TakeSample is a silent no-op and the registry prunes the sampler.
type ReducerSampler[T any] struct {
	owner    weak.Pointer[Reducer[T]]
	self     WeakSampler
	samplers *SamplerRegistry
	clock    clock.Clock
	identity T
	op       Op[T]
	inv      Op[T]
	partials *Combiner[T]

	destroyed atomic.Bool
	scheduled atomic.Bool

	mu     sync.Mutex
	queue  deque.Deque[sample[T]]
	window int
}

func newReducerSampler[T any](r *Reducer[T]) *ReducerSampler[T] {
	return NewCyclic(func(s *ReducerSampler[T], self weak.Pointer[ReducerSampler[T]]) {
		s.owner = weak.Make(r)
		s.self = weakSampler[ReducerSampler[T], *ReducerSampler[T]]{ptr: self}
		s.samplers = r.cfg.samplers
		s.clock = r.cfg.clock
		s.identity = r.combiner.Identity()
		s.op = r.combiner.Op()
		s.inv = r.cfg.inverse
		s.partials = r.partials
		s.window = 1
	})
}

// Interval returns the interval of the registry driving the sampler.
func (s *ReducerSampler[T]) Interval() time.Duration { return s.samplers.Interval() }

// TakeSample records the owner's value. It does nothing once destroyed or
// once the owner is gone.
func (s *ReducerSampler[T]) TakeSample() {
	if s.destroyed.Load() {
		return
	}
	r := s.owner.Value()
	if r == nil {
		return
	}

	var v T
	if s.partials != nil {
		v = s.partials.Reset()
	} else {
		v = r.Value()
	}
	at := s.clock.Now()

	s.mu.Lock()
	s.queue.PushBack(sample[T]{value: v, at: at})
	for s.queue.Len() > s.window+1 {
		s.queue.PopFront()
	}
	s.mu.Unlock()
}

// Schedule registers the sampler with its registry. Later calls are no-ops.
func (s *ReducerSampler[T]) Schedule() bool {
	if !s.scheduled.CompareAndSwap(false, true) {
		return true
	}
	if !s.samplers.Register(s.self) {
		s.scheduled.Store(false)
		return false
	}
	return true
}

// Destroy turns TakeSample into a no-op permanently.
func (s *ReducerSampler[T]) Destroy() { s.destroyed.Store(true) }

// Destroyed reports whether Destroy has been called.
func (s *ReducerSampler[T]) Destroyed() bool { return s.destroyed.Load() }

// SetWindow grows the number of retained samples to cover n intervals.
// The window never shrinks so windows sharing a sampler keep their history.
func (s *ReducerSampler[T]) SetWindow(n int) {
	s.mu.Lock()
	if n > s.window {
		s.window = n
	}
	s.mu.Unlock()
}

// ValueInWindow returns the value accumulated over the last n intervals and
// the time span it covers. It reports false until enough samples exist.
func (s *ReducerSampler[T]) ValueInWindow(n int) (T, time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	size := s.queue.Len()
	if n < 1 || size == 0 {
		return s.identity, 0, false
	}
	latest := s.queue.Back()

	if s.inv != nil {
		if size < 2 {
			return s.identity, 0, false
		}
		oldest := s.queue.At(max(size-1-n, 0))
		return s.inv.Combine(latest.value, oldest.value), latest.at.Sub(oldest.at), true
	}

	first := max(size-n, 0)
	acc := s.identity
	for i := first; i < size; i++ {
		acc = s.op.Combine(acc, s.queue.At(i).value)
	}
	span := time.Duration(size-first) * s.Interval()
	return acc, span, true
}

// Describe writes the retained samples, oldest first.
func (s *ReducerSampler[T]) Describe(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fmt.Fprint(w, "[")
	for i := 0; i < s.queue.Len(); i++ {
		if i > 0 {
			fmt.Fprint(w, ",")
		}
		fmt.Fprint(w, s.queue.At(i).value)
	}
	fmt.Fprint(w, "]")
}

// SeriesSampler appends a reducer's value to a Series once per interval.
type SeriesSampler[T any] struct {
	owner    weak.Pointer[Reducer[T]]
	self     WeakSampler
	samplers *SamplerRegistry
	series   *Series[T]

	destroyed atomic.Bool
	scheduled atomic.Bool
}

func newSeriesSampler[T any](r *Reducer[T], series *Series[T]) *SeriesSampler[T] {
	return NewCyclic(func(s *SeriesSampler[T], self weak.Pointer[SeriesSampler[T]]) {
		s.owner = weak.Make(r)
		s.self = weakSampler[SeriesSampler[T], *SeriesSampler[T]]{ptr: self}
		s.samplers = r.cfg.samplers
		s.series = series
	})
}

func (s *SeriesSampler[T]) Interval() time.Duration { return s.samplers.Interval() }

// TakeSample appends the owner's current value to the series.
func (s *SeriesSampler[T]) TakeSample() {
	if s.destroyed.Load() {
		return
	}
	r := s.owner.Value()
	if r == nil {
		return
	}
	s.series.Append(r.Value())
}

// Schedule registers the sampler with its registry. Later calls are no-ops.
func (s *SeriesSampler[T]) Schedule() bool {
	if !s.scheduled.CompareAndSwap(false, true) {
		return true
	}
	if !s.samplers.Register(s.self) {
		s.scheduled.Store(false)
		return false
	}
	return true
}

func (s *SeriesSampler[T]) Destroy() { s.destroyed.Store(true) }

// Describe writes the series JSON.
func (s *SeriesSampler[T]) Describe(w io.Writer) {
	_ = s.series.Describe(w, SeriesOptions{})
}
