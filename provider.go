package bvar

import (
	"math"
	"sync"
)

// InstrumentType names the kind of reducer a Provider builds.
type InstrumentType string

const (
	InstrumentTypeAdder    InstrumentType = "adder"
	InstrumentTypeMaxer    InstrumentType = "maxer"
	InstrumentTypeMiner    InstrumentType = "miner"
	InstrumentTypeRecorder InstrumentType = "recorder"
)

func (t InstrumentType) String() string { return string(t) }

// InstrumentKey identifies an instrument within a Provider.
type InstrumentKey struct {
	Type InstrumentType
	Name string
}

// NewInstrumentKey returns the key for an instrument of type t named name.
func NewInstrumentKey(t InstrumentType, name string) InstrumentKey {
	return InstrumentKey{Type: t, Name: name}
}

func (k InstrumentKey) String() string { return k.Type.String() + ":" + k.Name }

// InstrumentConfig carries optional instrument metadata.
type InstrumentConfig struct {
	Description string
	Unit        string
	// Attributes are static key-value pairs associated with the instrument itself.
	Attributes map[string]string
	// Series makes the instrument keep a Series once exposed.
	Series bool
}

// InstrumentOption mutates InstrumentConfig.
type InstrumentOption func(*InstrumentConfig)

// WithDescription sets an advisory description for the instrument.
func WithDescription(desc string) InstrumentOption {
	return func(c *InstrumentConfig) { c.Description = desc }
}

// WithUnit sets an advisory unit for the instrument (e.g., "1", "ms").
func WithUnit(unit string) InstrumentOption {
	return func(c *InstrumentConfig) { c.Unit = unit }
}

// WithAttributes attaches static attributes to the instrument.
func WithAttributes(attrs map[string]string) InstrumentOption {
	return func(c *InstrumentConfig) {
		if len(attrs) == 0 {
			return
		}
		// copy to avoid external mutation
		if c.Attributes == nil {
			c.Attributes = make(map[string]string, len(attrs))
		}
		for k, v := range attrs {
			c.Attributes[k] = v
		}
	}
}

// WithInstrumentSeries makes the instrument record a Series.
func WithInstrumentSeries() InstrumentOption {
	return func(c *InstrumentConfig) { c.Series = true }
}

// Provider builds named int64 instruments on demand and exposes them.
// Instruments are created once per (type, name) and reused afterwards;
// options only apply on first creation. Instruments are exposed as
// prefix_name in the provider's name table.
// It is safe for concurrent use.
type Provider struct {
	cfg *providerConfig

	instruments sync.Map // map[InstrumentKey]any
	meta        sync.Map // map[InstrumentKey]InstrumentConfig
	// per-key init mutexes: protect concurrent initialization for the same key
	inits sync.Map // map[InstrumentKey]*sync.Mutex

	invariants invariantReporter
}

// NewProvider constructs a Provider.
func NewProvider(opts ...ProviderOption) *Provider {
	return &Provider{cfg: newProviderConfig(opts)}
}

// Vars returns the name table instruments are exposed in.
func (p *Provider) Vars() *VarRegistry { return p.cfg.vars }

// Samplers returns the registry driving instrument samplers.
func (p *Provider) Samplers() *SamplerRegistry { return p.cfg.samplers }

// Adder returns the adder named name, creating it on first use.
func (p *Provider) Adder(name string, opts ...InstrumentOption) Adder[int64] {
	v := p.getOrCreate(NewInstrumentKey(InstrumentTypeAdder, name), opts)
	return v.(Adder[int64])
}

// Maxer returns the maxer named name, creating it on first use.
func (p *Provider) Maxer(name string, opts ...InstrumentOption) Maxer[int64] {
	v := p.getOrCreate(NewInstrumentKey(InstrumentTypeMaxer, name), opts)
	return v.(Maxer[int64])
}

// Miner returns the miner named name, creating it on first use.
func (p *Provider) Miner(name string, opts ...InstrumentOption) Miner[int64] {
	v := p.getOrCreate(NewInstrumentKey(InstrumentTypeMiner, name), opts)
	return v.(Miner[int64])
}

// Recorder returns the recorder named name, creating it on first use.
func (p *Provider) Recorder(name string, opts ...InstrumentOption) IntRecorder {
	v := p.getOrCreate(NewInstrumentKey(InstrumentTypeRecorder, name), opts)
	return v.(IntRecorder)
}

// keyMu returns a per-key mutex for the given key, creating one if necessary.
func (p *Provider) keyMu(key InstrumentKey) *sync.Mutex {
	m, _ := p.inits.LoadOrStore(key, &sync.Mutex{})
	return m.(*sync.Mutex)
}

func applyOptions(opts []InstrumentOption) InstrumentConfig {
	var cfg InstrumentConfig
	for _, o := range opts {
		if o != nil {
			o(&cfg)
		}
	}
	return cfg
}

func reducerOptions[T any](p *Provider, cfg InstrumentConfig) []ReducerOption[T] {
	opts := []ReducerOption[T]{
		WithSamplerRegistry[T](p.cfg.samplers),
		WithVars[T](p.cfg.vars),
	}
	if cfg.Series {
		opts = append(opts, WithSeries[T]())
	}
	return opts
}

// exposable is implemented by every instrument a Provider builds.
type exposable interface {
	ExposeAs(prefix, name string) error
}

// create constructs a new instrument for key.
func (p *Provider) create(key InstrumentKey, cfg InstrumentConfig) exposable {
	switch key.Type {
	case InstrumentTypeAdder:
		return NewAdder(reducerOptions[int64](p, cfg)...)
	case InstrumentTypeMaxer:
		return NewMaxer[int64](math.MinInt64, reducerOptions[int64](p, cfg)...)
	case InstrumentTypeMiner:
		return NewMiner[int64](math.MaxInt64, reducerOptions[int64](p, cfg)...)
	case InstrumentTypeRecorder:
		return NewIntRecorder(reducerOptions[Stat](p, cfg)...)
	default:
		return nil
	}
}

// getOrCreate implements a fast read path, computes options before acquiring
// locks, and uses a per-key mutex to deduplicate concurrent initializations.
func (p *Provider) getOrCreate(key InstrumentKey, opts []InstrumentOption) any {
	// fast read path using sync.Map loads (safe without a global lock)
	if v, ok := p.instruments.Load(key); ok {
		return v
	}

	// compute config off-lock to avoid holding per-key mutex during option application
	cfg := applyOptions(opts)

	km := p.keyMu(key)
	km.Lock()
	defer km.Unlock()

	// re-check after acquiring per-key mutex
	if v, ok := p.instruments.Load(key); ok {
		return v
	}

	inst := p.create(key, cfg)
	if inst == nil {
		p.invariants.report(p.cfg.logger, "unknown_instrument_type", key.String())
		return nil
	}
	if err := inst.ExposeAs(p.cfg.prefix, key.Name); err != nil {
		// the instrument still works, it is just not listed
		p.cfg.logger.Warnf("instrument %s not exposed: %v", key, err)
	}

	p.meta.Store(key, cfg)
	p.instruments.Store(key, inst)
	// optional cleanup: remove the per-key mutex from the inits map to allow GC of mutexes
	if !p.cfg.doNotCleanupInits {
		p.inits.Delete(key)
	}
	return inst
}
