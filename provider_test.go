package bvar

import (
	"bytes"
	"sync"
	"testing"
)

// newTestProvider builds a provider isolated from the process-wide registries.
func newTestProvider(t *testing.T, opts ...ProviderOption) *Provider {
	t.Helper()
	_, samplers := newMockSamplers(t)
	opts = append([]ProviderOption{
		WithProviderVars(NewVarRegistry()),
		WithProviderSamplers(samplers),
		WithProviderLogger(newNoopLogger()),
	}, opts...)
	return NewProvider(opts...)
}

func TestProvider_InstrumentsWithOptions(t *testing.T) {
	cases := []struct {
		name   string
		typ    InstrumentType
		inst   string
		create func(p *Provider)
		check  func(t *testing.T, p *Provider)
	}{
		{
			name: "adder",
			typ:  InstrumentTypeAdder,
			inst: "requests",
			create: func(p *Provider) {
				p.Adder("requests", WithDescription("served requests"), WithUnit("1"), WithAttributes(map[string]string{"k": "v"}))
			},
			check: func(t *testing.T, p *Provider) {
				a := p.Adder("requests")
				a.Add(5)
				a.Add(-2)
				if got := a.Value(); got != 3 {
					t.Fatalf("unexpected adder value: got %d want %d", got, 3)
				}
			},
		},
		{
			name: "maxer",
			typ:  InstrumentTypeMaxer,
			inst: "peak",
			create: func(p *Provider) {
				p.Maxer("peak", WithDescription("peak queue"), WithUnit("items"), WithAttributes(map[string]string{"a": "b"}))
			},
			check: func(t *testing.T, p *Provider) {
				m := p.Maxer("peak")
				m.Add(-7)
				m.Add(-3)
				if got := m.Value(); got != -3 {
					t.Fatalf("unexpected maxer value: got %d want %d", got, -3)
				}
			},
		},
		{
			name: "miner",
			typ:  InstrumentTypeMiner,
			inst: "floor",
			create: func(p *Provider) {
				p.Miner("floor", WithDescription("lowest"), WithUnit("ms"), WithAttributes(map[string]string{"x": "y"}))
			},
			check: func(t *testing.T, p *Provider) {
				m := p.Miner("floor")
				m.Add(12)
				m.Add(40)
				if got := m.Value(); got != 12 {
					t.Fatalf("unexpected miner value: got %d want %d", got, 12)
				}
			},
		},
		{
			name: "recorder",
			typ:  InstrumentTypeRecorder,
			inst: "latency",
			create: func(p *Provider) {
				p.Recorder("latency", WithDescription("latency"), WithUnit("us"), WithAttributes(map[string]string{"q": "r"}))
			},
			check: func(t *testing.T, p *Provider) {
				r := p.Recorder("latency")
				r.Add(1)
				r.Add(3)
				if got := r.Value(); got != (Stat{Sum: 4, Num: 2}) {
					t.Fatalf("unexpected recorder value: got %+v", got)
				}
				if got := r.Average(); got != 2 {
					t.Fatalf("unexpected average: got %d want %d", got, 2)
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestProvider(t)
			tc.create(p)
			tc.check(t, p)

			cfg, ok := metaLoad(p, tc.typ, tc.inst)
			if !ok {
				t.Fatalf("expected metadata for %s to be present", tc.typ)
			}
			if cfg.Description == "" || cfg.Unit == "" || len(cfg.Attributes) != 1 {
				t.Fatalf("unexpected config: %+v", cfg)
			}
		})
	}
}

func TestProvider_ExposesWithPrefix(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		want   string
	}{
		{"no prefix", "", "qps"},
		{"prefix", "frontend", "frontend_qps"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, WithPrefix(tt.prefix))
			a := p.Adder("qps")
			a.Add(9)

			if got := a.Name(); got != tt.want {
				t.Fatalf("unexpected exposed name: got %q want %q", got, tt.want)
			}
			var buf bytes.Buffer
			if !p.Vars().DescribeVar(&buf, tt.want, true) {
				t.Fatalf("expected %q in the provider's vars", tt.want)
			}
			if buf.String() != "9" {
				t.Fatalf("unexpected description: %q", buf.String())
			}
		})
	}
}

func TestProvider_SameNameDifferentTypes(t *testing.T) {
	p := newTestProvider(t)
	a := p.Adder("dup")
	m := p.Maxer("dup")

	if a.Name() != "dup" {
		t.Fatalf("expected the first instrument to own the name, got %q", a.Name())
	}
	// the second instrument works but is not listed
	if !m.IsHidden() {
		t.Fatalf("expected the conflicting instrument to stay hidden")
	}
	m.Add(4)
	if m.Value() != 4 {
		t.Fatalf("unexpected maxer value: %d", m.Value())
	}
	if got := p.Vars().Count(); got != 1 {
		t.Fatalf("expected 1 exposed variable, got %d", got)
	}
}

func TestProvider_SeriesOption(t *testing.T) {
	p := newTestProvider(t)
	a := p.Adder("with_series", WithInstrumentSeries())
	plain := p.Adder("without_series")

	a.Add(2)
	if err := p.Samplers().SampleNow(); err != nil {
		t.Fatalf("unexpected sampling error: %v", err)
	}
	s, ok := a.Series()
	if !ok {
		t.Fatal("expected a series for an instrument created WithInstrumentSeries")
	}
	if last, ok := s.LastPoint(); !ok || last.Value != 2 {
		t.Fatalf("unexpected last point: %+v %v", last, ok)
	}
	if _, ok := plain.Series(); ok {
		t.Fatal("expected no series without WithInstrumentSeries")
	}
}

func TestWithAttributesCopiesMap(t *testing.T) {
	p := newTestProvider(t)
	attrs := map[string]string{"m": "n"}
	p.Adder("a", WithAttributes(attrs))
	// mutate original
	attrs["m"] = "mutated"
	cfg, _ := metaLoad(p, InstrumentTypeAdder, "a")
	if got := cfg.Attributes["m"]; got != "n" {
		t.Fatalf("expected stored attribute to remain 'n', got %q", got)
	}
}

func TestProvider_OptionsAreOnlyAppliedOnFirstCreation(t *testing.T) {
	p := newTestProvider(t)
	p.Adder("dup", WithDescription("first"))
	p.Adder("dup", WithDescription("second"))
	cfg, _ := metaLoad(p, InstrumentTypeAdder, "dup")
	if cfg.Description != "first" {
		t.Fatalf("expected first description to be kept, got %q", cfg.Description)
	}
	p.Recorder("duprec", WithDescription("rec-first"))
	p.Recorder("duprec", WithDescription("rec-second"))
	cfg, _ = metaLoad(p, InstrumentTypeRecorder, "duprec")
	if cfg.Description != "rec-first" {
		t.Fatalf("expected first recorder description to be kept, got %q", cfg.Description)
	}
}

func TestConcurrentCreationAndInitCleanup(t *testing.T) {
	tests := []struct {
		name        string
		opts        []ProviderOption
		wantMutexes bool
	}{
		{"cleanup enabled", nil, false},
		{"cleanup disabled", []ProviderOption{WithInitCleanupDisabled()}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, tt.opts...)
			const (
				name       = "race_adder"
				goroutines = 50
			)
			var wg sync.WaitGroup
			wg.Add(goroutines)
			for i := 0; i < goroutines; i++ {
				go func() {
					defer wg.Done()
					p.Adder(name).Add(1)
				}()
			}
			wg.Wait()

			key := NewInstrumentKey(InstrumentTypeAdder, name)
			if v, ok := p.instruments.Load(key); !ok || v == nil {
				t.Fatalf("expected instrument created; got ok=%v v=%v", ok, v)
			}
			if _, ok := p.meta.Load(key); !ok {
				t.Fatalf("expected meta stored for instrument; missing")
			}
			if got := p.Adder(name).Value(); got != goroutines {
				t.Fatalf("expected every goroutine to hit one instrument; got %d", got)
			}
			if got := p.Vars().Count(); got != 1 {
				t.Fatalf("expected a single exposed variable; got %d", got)
			}

			v, ok := p.inits.Load(key)
			if ok != tt.wantMutexes {
				t.Fatalf("per-key mutex present=%v, want %v", ok, tt.wantMutexes)
			}
			if ok {
				if _, isMu := v.(*sync.Mutex); !isMu {
					t.Fatalf("unexpected type in inits map: %T", v)
				}
			}
		})
	}
}

func TestInstrumentKey_String(t *testing.T) {
	if got := NewInstrumentKey(InstrumentTypeRecorder, "lat").String(); got != "recorder:lat" {
		t.Fatalf("unexpected key string %q", got)
	}
}
