package bvar

import (
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

// test helper: read metadata stored under the compound key "typ:name".
func metaLoad(p *Provider, t InstrumentType, name string) (InstrumentConfig, bool) {
	v, ok := p.meta.Load(NewInstrumentKey(t, name))
	if !ok {
		return InstrumentConfig{}, false
	}
	cfg, ok := v.(InstrumentConfig)
	return cfg, ok
}

// newMockSamplers returns a registry driven by a mock clock, closed at test end.
func newMockSamplers(t *testing.T, opts ...SamplerRegistryOption) (*clock.Mock, *SamplerRegistry) {
	t.Helper()
	clk := clock.NewMock()
	opts = append([]SamplerRegistryOption{WithClock(clk), WithLogger(newNoopLogger())}, opts...)
	r := NewSamplerRegistry(opts...)
	t.Cleanup(r.Close)
	return clk, r
}

// advanceUntil moves the mock clock forward one tick at a time until cond holds.
func advanceUntil(t *testing.T, clk *clock.Mock, cond func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		clk.Add(DefaultSampleTick)
		return cond()
	}, defaultEventually, pollInterval)
}

// testReducerOpts isolates a reducer from the process-wide registries.
func testReducerOpts[T any](samplers *SamplerRegistry, vars *VarRegistry) []ReducerOption[T] {
	return []ReducerOption[T]{WithSamplerRegistry[T](samplers), WithVars[T](vars)}
}

type countingSampler struct {
	n       atomic.Int64
	panicOn string
	dead    atomic.Bool
}

func (s *countingSampler) Interval() time.Duration { return DefaultSampleInterval }

func (s *countingSampler) TakeSample() {
	if s.dead.Load() {
		return
	}
	s.n.Add(1)
	if s.panicOn != "" {
		panic(s.panicOn)
	}
}

func (s *countingSampler) Describe(w io.Writer) { _, _ = io.WriteString(w, "counting") }
func (s *countingSampler) Destroy()             { s.dead.Store(true) }

// registerDropped registers a sampler nothing else references.
//
//go:noinline
func registerDropped(r *SamplerRegistry) bool {
	return r.Register(WeakOf(&countingSampler{}))
}

const (
	defaultEventually = 5 * time.Second
	pollInterval      = time.Millisecond
)
