package bvar

import (
	"time"

	"github.com/benbjohnson/clock"
)

const (
	// DefaultSampleInterval is how often the registry sweeps its samplers.
	DefaultSampleInterval = time.Second
	// DefaultSampleTick is how often the driver wakes up to check the interval.
	// It is decoupled from the interval to bound wake-up latency.
	DefaultSampleTick = 100 * time.Millisecond
)

type samplerRegistryConfig struct {
	clock    clock.Clock
	interval time.Duration
	tick     time.Duration
	handler  ErrorHandler
	logger   Logger
}

// SamplerRegistryOption configures a SamplerRegistry constructed by NewSamplerRegistry.
type SamplerRegistryOption func(*samplerRegistryConfig)

// WithClock replaces the wall clock, typically with clock.NewMock() in tests.
func WithClock(c clock.Clock) SamplerRegistryOption {
	return func(cfg *samplerRegistryConfig) { cfg.clock = c }
}

// WithInterval sets the sampling interval. Non-positive values are ignored.
func WithInterval(d time.Duration) SamplerRegistryOption {
	return func(cfg *samplerRegistryConfig) {
		if d > 0 {
			cfg.interval = d
		}
	}
}

// WithTick sets the driver wake-up period. Non-positive values are ignored.
func WithTick(d time.Duration) SamplerRegistryOption {
	return func(cfg *samplerRegistryConfig) {
		if d > 0 {
			cfg.tick = d
		}
	}
}

// WithErrorHandler sets the handler receiving sampler failures.
func WithErrorHandler(h ErrorHandler) SamplerRegistryOption {
	return func(cfg *samplerRegistryConfig) { cfg.handler = h }
}

// WithLogger sets the registry logger.
func WithLogger(l Logger) SamplerRegistryOption {
	return func(cfg *samplerRegistryConfig) { cfg.logger = l }
}

func newSamplerRegistryConfig(opts []SamplerRegistryOption) *samplerRegistryConfig {
	cfg := &samplerRegistryConfig{
		interval: DefaultSampleInterval,
		tick:     DefaultSampleTick,
	}
	for _, o := range opts {
		if o != nil {
			o(cfg)
		}
	}
	if cfg.clock == nil {
		cfg.clock = clock.New()
	}
	if cfg.logger == nil {
		cfg.logger = defaultLogger()
	}
	if cfg.handler == nil {
		cfg.handler = NewLogErrors(cfg.logger)
	}
	return cfg
}

type seriesConfig struct {
	clock clock.Clock
}

// SeriesOption configures a Series constructed by NewSeries.
type SeriesOption func(*seriesConfig)

// WithSeriesClock replaces the wall clock used for timestamps and the watermark.
func WithSeriesClock(c clock.Clock) SeriesOption {
	return func(cfg *seriesConfig) { cfg.clock = c }
}

type reducerConfig[T any] struct {
	inverse  Op[T]
	series   bool
	samplers *SamplerRegistry
	vars     *VarRegistry
	clock    clock.Clock
}

// ReducerOption configures a Reducer constructed by NewReducer.
type ReducerOption[T any] func(*reducerConfig[T])

// WithInverse sets the inverse of the reducer's op, used by windows to
// subtract an old sample from a newer one instead of resetting the reducer.
func WithInverse[T any](inv Op[T]) ReducerOption[T] {
	return func(cfg *reducerConfig[T]) { cfg.inverse = inv }
}

// WithSeries keeps a Series of the reducer's value once it is exposed.
func WithSeries[T any]() ReducerOption[T] {
	return func(cfg *reducerConfig[T]) { cfg.series = true }
}

// WithSamplerRegistry selects the registry driving the reducer's samplers.
func WithSamplerRegistry[T any](r *SamplerRegistry) ReducerOption[T] {
	return func(cfg *reducerConfig[T]) { cfg.samplers = r }
}

// WithVars selects the name table used by Expose and ExposeAs.
func WithVars[T any](v *VarRegistry) ReducerOption[T] {
	return func(cfg *reducerConfig[T]) { cfg.vars = v }
}

// WithReducerClock sets the clock used to timestamp samples and series points.
func WithReducerClock[T any](c clock.Clock) ReducerOption[T] {
	return func(cfg *reducerConfig[T]) { cfg.clock = c }
}

func newReducerConfig[T any](opts []ReducerOption[T]) *reducerConfig[T] {
	cfg := &reducerConfig[T]{}
	for _, o := range opts {
		if o != nil {
			o(cfg)
		}
	}
	if cfg.samplers == nil {
		cfg.samplers = DefaultSamplerRegistry()
	}
	if cfg.vars == nil {
		cfg.vars = DefaultVars()
	}
	if cfg.clock == nil {
		cfg.clock = cfg.samplers.Clock()
	}
	return cfg
}

type providerConfig struct {
	vars     *VarRegistry
	samplers *SamplerRegistry
	logger   Logger
	prefix   string
	// when false, remove per-key mutex entries from `inits` after initialization to
	// allow GC of mutexes for many ephemeral instrument names. Default: false.
	doNotCleanupInits bool
}

// ProviderOption configures a Provider constructed by NewProvider.
type ProviderOption func(*providerConfig)

// WithProviderVars sets the name table instruments are exposed in.
func WithProviderVars(v *VarRegistry) ProviderOption {
	return func(cfg *providerConfig) { cfg.vars = v }
}

// WithProviderSamplers sets the registry driving instrument samplers.
func WithProviderSamplers(r *SamplerRegistry) ProviderOption {
	return func(cfg *providerConfig) { cfg.samplers = r }
}

// WithProviderLogger sets the provider logger.
func WithProviderLogger(l Logger) ProviderOption {
	return func(cfg *providerConfig) { cfg.logger = l }
}

// WithPrefix exposes every instrument as prefix_name.
func WithPrefix(prefix string) ProviderOption {
	return func(cfg *providerConfig) { cfg.prefix = prefix }
}

// WithInitCleanupDisabled keeps per-key init mutex entries after initialization.
// By default they are deleted to allow GC of mutexes for ephemeral instrument names.
func WithInitCleanupDisabled() ProviderOption {
	return func(cfg *providerConfig) { cfg.doNotCleanupInits = true }
}

func newProviderConfig(opts []ProviderOption) *providerConfig {
	cfg := &providerConfig{}
	for _, o := range opts {
		if o != nil {
			o(cfg)
		}
	}
	if cfg.vars == nil {
		cfg.vars = DefaultVars()
	}
	if cfg.samplers == nil {
		cfg.samplers = DefaultSamplerRegistry()
	}
	if cfg.logger == nil {
		cfg.logger = defaultLogger()
	}
	return cfg
}
