package bvar

import (
	"io"
	"time"
	"weak"
)

// Sampler is an object that can be asked, on a schedule, to record its current state.
// Implementations must be safe for concurrent use.
type Sampler interface {
	Interval() time.Duration
	TakeSample()
	Describe(w io.Writer)
	// Destroy permanently turns TakeSample into a no-op.
	Destroy()
}

// WeakSampler is a non-owning handle to a Sampler.
// Upgrade fails once the sampler has been garbage collected.
type WeakSampler interface {
	Upgrade() (Sampler, bool)
}

type weakSampler[T any, P interface {
	*T
	Sampler
}] struct {
	ptr weak.Pointer[T]
}

func (w weakSampler[T, P]) Upgrade() (Sampler, bool) {
	v := w.ptr.Value()
	if v == nil {
		return nil, false
	}
	return P(v), true
}

// WeakOf returns a weak handle to s. It does not keep s alive.
func WeakOf[T any, P interface {
	*T
	Sampler
}](s P) WeakSampler {
	return weakSampler[T, P]{ptr: weak.Make((*T)(s))}
}

// NewCyclic reserves storage for a T, derives its weak pointer, then runs
// init to populate the object in place. The weak pointer resolves to the
// returned object from the first moment anything else can observe it, so it
// can be handed out (for example to a SamplerRegistry) without a
// construct-then-backfill window. init must not publish obj before it has
// finished populating it.
func NewCyclic[T any](init func(obj *T, self weak.Pointer[T])) *T {
	p := new(T)
	init(p, weak.Make(p))
	return p
}
