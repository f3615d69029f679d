package bvar

import "sort"

// Inspector provides metadata inspection over the instruments a Provider built.
// WithMeta methods return the instrument (if it exists), a defensive copy of
// its config, and whether it was found.
// Snapshot semantics: best-effort at call time.
type Inspector interface {
	AdderWithMeta(name string) (Adder[int64], InstrumentConfig, bool)
	MaxerWithMeta(name string) (Maxer[int64], InstrumentConfig, bool)
	MinerWithMeta(name string) (Miner[int64], InstrumentConfig, bool)
	RecorderWithMeta(name string) (IntRecorder, InstrumentConfig, bool)

	// ListMetadata returns enumeration for admin/debug UIs.
	ListMetadata() []InstrumentEntry
}

var _ Inspector = (*Provider)(nil)

// InstrumentEntry is one row of Provider.ListMetadata.
type InstrumentEntry struct {
	Type   InstrumentType
	Name   string
	Config InstrumentConfig // defensive copy
}

// copyConfig makes a defensive copy of InstrumentConfig (copies Attributes map).
func copyConfig(in InstrumentConfig) InstrumentConfig {
	out := in
	out.Attributes = nil
	if len(in.Attributes) > 0 {
		out.Attributes = make(map[string]string, len(in.Attributes))
		for k, v := range in.Attributes {
			out.Attributes[k] = v
		}
	}
	return out
}

func (p *Provider) getInstrumentMeta(key InstrumentKey) (InstrumentConfig, bool) {
	m, ok := p.meta.Load(key)
	if !ok {
		p.invariants.report(p.cfg.logger, key.Type.String()+"_meta_missing", key.String())
		return InstrumentConfig{}, false
	}
	c, ok := m.(InstrumentConfig)
	if !ok {
		p.invariants.report(p.cfg.logger, key.Type.String()+"_meta_type", key.String())
		return InstrumentConfig{}, false
	}
	return copyConfig(c), true
}

// lookupWithMeta acquires the per-key init mutex, then reads both the
// instrument and its metadata before unlocking to provide a consistent snapshot.
// It reports true if and only if both were found and valid.
func lookupWithMeta[V any](p *Provider, key InstrumentKey) (V, InstrumentConfig, bool) {
	var zero V
	km := p.keyMu(key)
	km.Lock()
	defer km.Unlock()

	v, ok := p.instruments.Load(key)
	if !ok {
		return zero, InstrumentConfig{}, false
	}
	inst, ok := v.(V)
	if !ok {
		p.invariants.report(p.cfg.logger, key.Type.String()+"_type", key.String())
		return zero, InstrumentConfig{}, false
	}
	cfg, ok := p.getInstrumentMeta(key)
	return inst, cfg, ok
}

// AdderWithMeta implements Inspector.
func (p *Provider) AdderWithMeta(name string) (Adder[int64], InstrumentConfig, bool) {
	return lookupWithMeta[Adder[int64]](p, NewInstrumentKey(InstrumentTypeAdder, name))
}

// MaxerWithMeta implements Inspector.
func (p *Provider) MaxerWithMeta(name string) (Maxer[int64], InstrumentConfig, bool) {
	return lookupWithMeta[Maxer[int64]](p, NewInstrumentKey(InstrumentTypeMaxer, name))
}

// MinerWithMeta implements Inspector.
func (p *Provider) MinerWithMeta(name string) (Miner[int64], InstrumentConfig, bool) {
	return lookupWithMeta[Miner[int64]](p, NewInstrumentKey(InstrumentTypeMiner, name))
}

// RecorderWithMeta implements Inspector.
func (p *Provider) RecorderWithMeta(name string) (IntRecorder, InstrumentConfig, bool) {
	return lookupWithMeta[IntRecorder](p, NewInstrumentKey(InstrumentTypeRecorder, name))
}

// ListMetadata returns a best-effort snapshot of metadata entries sorted by
// name then type. It does not take the per-key init mutexes.
func (p *Provider) ListMetadata() []InstrumentEntry {
	out := make([]InstrumentEntry, 0)
	p.meta.Range(func(k, v interface{}) bool {
		key, ok := k.(InstrumentKey)
		cfg, ok2 := v.(InstrumentConfig)
		if !ok || !ok2 {
			return true // skip invalid entries
		}
		out = append(out, InstrumentEntry{Type: key.Type, Name: key.Name, Config: copyConfig(cfg)})
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Type < out[j].Type
	})
	return out
}
