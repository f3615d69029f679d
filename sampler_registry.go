package bvar

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/go-multierror"
)

// SamplerRegistry holds weak handles to samplers and drives them from a
// single background goroutine.
//
// The driver is started by the first Register call and exits on its own as
// soon as every registered sampler has been garbage collected; the next
// Register starts a fresh one. At most one driver is alive at any time: the
// check-and-spawn in Register and the driver's own exit are serialized by
// the registry mutex.
//
// Samplers are never called while the mutex is held, so a slow or blocking
// sampler delays the rest of its sweep but never Register.
type SamplerRegistry struct {
	cfg *samplerRegistryConfig

	mu       sync.Mutex
	entries  []WeakSampler
	lastFire time.Time
	running  bool
	closed   bool
	stop     chan struct{} // closed by Close to stop the current driver
	done     chan struct{} // closed by the current driver on exit

	drivers atomic.Int32
}

// NewSamplerRegistry constructs an idle SamplerRegistry.
func NewSamplerRegistry(opts ...SamplerRegistryOption) *SamplerRegistry {
	cfg := newSamplerRegistryConfig(opts)
	return &SamplerRegistry{
		cfg:      cfg,
		lastFire: cfg.clock.Now(),
		stop:     make(chan struct{}),
	}
}

var defaultSamplerRegistry = sync.OnceValue(func() *SamplerRegistry {
	return NewSamplerRegistry()
})

// DefaultSamplerRegistry returns the process-wide registry.
// It lives for the whole process and is never closed.
func DefaultSamplerRegistry() *SamplerRegistry {
	return defaultSamplerRegistry()
}

type samplerRegistryKey struct{}

// ContextWithSamplerRegistry returns a copy of ctx carrying r.
func ContextWithSamplerRegistry(ctx context.Context, r *SamplerRegistry) context.Context {
	return context.WithValue(ctx, samplerRegistryKey{}, r)
}

// SamplerRegistryFromContext returns the registry carried by ctx,
// or the process-wide registry when there is none.
func SamplerRegistryFromContext(ctx context.Context) *SamplerRegistry {
	if ctx != nil {
		if r, ok := ctx.Value(samplerRegistryKey{}).(*SamplerRegistry); ok && r != nil {
			return r
		}
	}
	return DefaultSamplerRegistry()
}

// Clock returns the registry's clock.
func (r *SamplerRegistry) Clock() clock.Clock { return r.cfg.clock }

// Interval returns the sampling interval.
func (r *SamplerRegistry) Interval() time.Duration { return r.cfg.interval }

// Register prunes dead entries, adds s and starts the driver if it is idle.
// It reports false when the registry has been closed.
func (r *SamplerRegistry) Register(s WeakSampler) bool {
	if s == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}
	r.pruneLocked()
	r.entries = append(r.entries, s)
	if !r.running {
		r.running = true
		r.done = make(chan struct{})
		r.drivers.Add(1)
		go r.drive(r.stop, r.done)
		r.cfg.logger.Debugf("sampler driver started (entries=%d)", len(r.entries))
	}
	return true
}

// Running reports whether a driver goroutine is alive.
func (r *SamplerRegistry) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Len returns the number of entries. Dead entries are pruned lazily,
// so the count may include samplers that are already gone.
func (r *SamplerRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Drivers returns the number of driver goroutines currently alive (0 or 1).
func (r *SamplerRegistry) Drivers() int {
	return int(r.drivers.Load())
}

// SampleNow runs one sweep synchronously, regardless of the interval.
// Recovered sampler panics are passed to the error handler and also
// returned together as a *multierror.Error.
func (r *SamplerRegistry) SampleNow() error {
	r.mu.Lock()
	live := r.liveLocked()
	r.mu.Unlock()

	err := r.sweep(live)

	r.mu.Lock()
	r.pruneLocked()
	r.mu.Unlock()
	return err
}

// Close stops the driver, drops every entry and waits for the driver to exit.
// Register on a closed registry is rejected.
func (r *SamplerRegistry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.entries = nil
	close(r.stop)
	done := r.done
	r.mu.Unlock()

	if done != nil {
		<-done
	}
}

func (r *SamplerRegistry) drive(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		t := r.cfg.clock.Timer(r.cfg.tick)
		select {
		case <-stop:
			t.Stop()
			r.mu.Lock()
			r.idleLocked()
			r.mu.Unlock()
			return
		case <-t.C:
		}

		if !r.tick() {
			r.cfg.logger.Debugf("sampler driver stopped: no live samplers")
			return
		}
	}
}

// tick runs one driver iteration and reports whether the driver should keep running.
func (r *SamplerRegistry) tick() bool {
	r.mu.Lock()
	now := r.cfg.clock.Now()
	if now.Sub(r.lastFire) < r.cfg.interval {
		r.mu.Unlock()
		return true
	}
	r.lastFire = now
	live := r.liveLocked()
	r.mu.Unlock()

	_ = r.sweep(live)
	live = nil

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked()
	if len(r.entries) == 0 || r.closed {
		r.idleLocked()
		return false
	}
	return true
}

// idleLocked marks the current driver as gone. The driver returns right after.
func (r *SamplerRegistry) idleLocked() {
	r.running = false
	r.drivers.Add(-1)
}

// liveLocked upgrades every entry and returns the strong set.
func (r *SamplerRegistry) liveLocked() []Sampler {
	live := make([]Sampler, 0, len(r.entries))
	for _, e := range r.entries {
		if s, ok := e.Upgrade(); ok {
			live = append(live, s)
		}
	}
	return live
}

func (r *SamplerRegistry) pruneLocked() {
	kept := r.entries[:0]
	for _, e := range r.entries {
		if _, ok := e.Upgrade(); ok {
			kept = append(kept, e)
		}
	}
	for i := len(kept); i < len(r.entries); i++ {
		r.entries[i] = nil
	}
	r.entries = kept
}

func (r *SamplerRegistry) sweep(live []Sampler) error {
	var merr *multierror.Error
	for _, s := range live {
		if err := r.takeSample(s); err != nil {
			r.cfg.handler.OnError(err)
			merr = multierror.Append(merr, err)
		}
	}
	return merr.ErrorOrNil()
}

func (r *SamplerRegistry) takeSample(s Sampler) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = panicError(rec)
		}
	}()
	s.TakeSample()
	return nil
}
