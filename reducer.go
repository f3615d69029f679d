package bvar

import (
	"cmp"
	"fmt"
	"io"
	"sync"
)

// Reducer is a Variable whose value is the fold of a Combiner.
//
// Workers call Add (or keep an Agent); readers call Value. A reducer built
// WithSeries starts recording a Series once it is exposed. Windows created
// over the reducer share one ReducerSampler.
type Reducer[T any] struct {
	exposer

	combiner *Combiner[T]
	cfg      *reducerConfig[T]

	mu            sync.Mutex
	partials      *Combiner[T]
	sampler       *ReducerSampler[T]
	seriesSampler *SeriesSampler[T]
	series        *Series[T]
}

// NewReducer constructs a Reducer over identity and op.
func NewReducer[T any](identity T, op Op[T], opts ...ReducerOption[T]) *Reducer[T] {
	r := &Reducer[T]{
		combiner: NewCombiner(identity, op, ""),
		cfg:      newReducerConfig(opts),
	}
	r.exposer.bind(r, r.cfg.vars)
	r.exposer.onExpose = r.exposed
	return r
}

func (r *Reducer[T]) exposed(name string) {
	r.combiner.SetName(name)
	if !r.cfg.series {
		return
	}
	r.mu.Lock()
	if r.seriesSampler == nil {
		r.series = NewSeries[T](WithSeriesClock(r.cfg.clock))
		r.seriesSampler = newSeriesSampler(r, r.series)
	}
	s := r.seriesSampler
	r.mu.Unlock()
	s.Schedule()
}

// Add combines v into the shard cached for the calling goroutine's P.
func (r *Reducer[T]) Add(v T) { r.combiner.Add(v) }

// Agent returns a dedicated shard for a long-lived worker.
func (r *Reducer[T]) Agent() *Agent[T] { return r.combiner.Agent() }

// Value returns the fold of every shard.
func (r *Reducer[T]) Value() T { return r.combiner.Value() }

// Reset returns the fold of every shard and sets them back to identity.
func (r *Reducer[T]) Reset() T { return r.combiner.Reset() }

// Op returns the reducer's combine op.
func (r *Reducer[T]) Op() Op[T] { return r.combiner.Op() }

// Identity returns the reducer's identity element.
func (r *Reducer[T]) Identity() T { return r.combiner.Identity() }

// Inverse returns the inverse op, or nil.
func (r *Reducer[T]) Inverse() Op[T] { return r.cfg.inverse }

// Combiner returns the underlying Combiner.
func (r *Reducer[T]) Combiner() *Combiner[T] { return r.combiner }

// Describe writes the current value.
func (r *Reducer[T]) Describe(w io.Writer, quoteString bool) bool {
	return describeValue(w, r.Value(), quoteString)
}

// Series returns the reducer's series. It exists once a reducer built
// WithSeries has been exposed.
func (r *Reducer[T]) Series() (*Series[T], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.series, r.series != nil
}

// DescribeSeries writes the series JSON, or returns ErrNoSeries.
func (r *Reducer[T]) DescribeSeries(w io.Writer, opts SeriesOptions) error {
	s, ok := r.Series()
	if !ok {
		return fmt.Errorf("%s: %w", r.Name(), ErrNoSeries)
	}
	return s.Describe(w, opts)
}

// windowSampler returns the sampler feeding windows, creating and
// scheduling it on first use. Without an inverse op the sampler reads
// per-interval partials from a second combiner mirroring every Add, so the
// reducer itself is never reset by sampling.
func (r *Reducer[T]) windowSampler() *ReducerSampler[T] {
	r.mu.Lock()
	if r.sampler == nil {
		if r.cfg.inverse == nil {
			r.partials = NewCombiner(r.combiner.Identity(), r.combiner.Op(), "")
			r.combiner.Mirror(r.partials)
		}
		r.sampler = newReducerSampler(r)
	}
	s := r.sampler
	r.mu.Unlock()
	s.Schedule()
	return s
}

// Close hides the reducer and destroys its samplers.
func (r *Reducer[T]) Close() {
	r.Hide()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sampler != nil {
		r.sampler.Destroy()
	}
	if r.partials != nil {
		r.combiner.Mirror(nil)
	}
	if r.seriesSampler != nil {
		r.seriesSampler.Destroy()
	}
}

// describeValue writes v, quoting it when it is a string and quoteString is set.
func describeValue(w io.Writer, v any, quoteString bool) bool {
	if s, ok := v.(string); ok && quoteString {
		_, err := io.WriteString(w, quoteJSON(s))
		return err == nil
	}
	_, err := fmt.Fprint(w, v)
	return err == nil
}

// Adder sums values.
type Adder[T Number] struct {
	*Reducer[T]
}

// NewAdder constructs an Adder starting at zero. Its windows subtract
// samples instead of resetting it.
func NewAdder[T Number](opts ...ReducerOption[T]) Adder[T] {
	opts = append([]ReducerOption[T]{WithInverse[T](SubFrom[T]{})}, opts...)
	return Adder[T]{NewReducer[T](0, AddTo[T]{}, opts...)}
}

// Maxer keeps the greatest value added since the last reset.
type Maxer[T cmp.Ordered] struct {
	*Reducer[T]
}

// NewMaxer constructs a Maxer. identity must not be greater than any value
// that will be added, e.g. math.MinInt64.
func NewMaxer[T cmp.Ordered](identity T, opts ...ReducerOption[T]) Maxer[T] {
	return Maxer[T]{NewReducer[T](identity, MaxTo[T]{}, opts...)}
}

// Miner keeps the smallest value added since the last reset.
type Miner[T cmp.Ordered] struct {
	*Reducer[T]
}

// NewMiner constructs a Miner. identity must not be less than any value
// that will be added, e.g. math.MaxInt64.
func NewMiner[T cmp.Ordered](identity T, opts ...ReducerOption[T]) Miner[T] {
	return Miner[T]{NewReducer[T](identity, MinTo[T]{}, opts...)}
}
