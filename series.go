package bvar

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gammazero/deque"

	"github.com/ygrebnov/bvar/internal/jsonx"
)

// Tier is one granularity level of a Series.
type Tier int

const (
	TierSecond Tier = iota
	TierMinute
	TierHour
	TierDay

	numTiers = 4
)

var tierInfo = [numTiers]struct {
	name     string
	capacity int
	period   time.Duration
}{
	TierSecond: {"second", 60, time.Second},
	TierMinute: {"minute", 60, time.Minute},
	TierHour:   {"hour", 24, time.Hour},
	TierDay:    {"day", 30, 24 * time.Hour},
}

// Tiers returns every tier from finest to coarsest.
func Tiers() []Tier {
	return []Tier{TierSecond, TierMinute, TierHour, TierDay}
}

// Capacity returns the number of points the tier retains.
func (t Tier) Capacity() int { return tierInfo[t].capacity }

// Period returns the minimum spacing between two points of the tier.
func (t Tier) Period() time.Duration { return tierInfo[t].period }

func (t Tier) String() string {
	if t < 0 || t >= numTiers {
		return fmt.Sprintf("Tier(%d)", int(t))
	}
	return tierInfo[t].name
}

// DataPoint is one timestamped sample.
type DataPoint[T any] struct {
	Value T
	// Timestamp is in Unix milliseconds.
	Timestamp int64
}

// SeriesOptions are the metadata emitted with a Series description.
type SeriesOptions struct {
	FixedLength bool
}

type tierRing[T any] struct {
	mu     sync.RWMutex
	points deque.Deque[DataPoint[T]]
}

func (r *tierRing[T]) push(p DataPoint[T], capacity int) {
	r.mu.Lock()
	r.points.PushBack(p)
	for r.points.Len() > capacity {
		r.points.PopFront()
	}
	r.mu.Unlock()
}

func (r *tierRing[T]) snapshot() []DataPoint[T] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]DataPoint[T], r.points.Len())
	for i := range out {
		out[i] = r.points.At(i)
	}
	return out
}

// Series keeps recent history of a value at four granularities.
//
// Every tier is gated by one shared watermark: a point reaches the second
// tier when at least a second has passed since the last admitted point, and
// additionally reaches the minute, hour or day tier when that same elapsed
// time is at least a minute, an hour or a day. Coarser tiers therefore only
// fill when appends are sparse; an append cadence under a minute never
// reaches them. The very first append goes to the second tier only.
type Series[T any] struct {
	clock clock.Clock
	tiers [numTiers]tierRing[T]

	lastMu    sync.RWMutex
	lastPoint DataPoint[T]
	hasLast   bool

	fireMu   sync.Mutex
	lastFire time.Time
	armed    bool
}

// NewSeries constructs an empty Series.
func NewSeries[T any](opts ...SeriesOption) *Series[T] {
	cfg := &seriesConfig{}
	for _, o := range opts {
		if o != nil {
			o(cfg)
		}
	}
	if cfg.clock == nil {
		cfg.clock = clock.New()
	}
	return &Series[T]{clock: cfg.clock}
}

// Append timestamps v with the current time and admits it into the tiers
// selected by the shared watermark. The last point is updated unless it is
// newer than v's timestamp.
func (s *Series[T]) Append(v T) {
	now := s.clock.Now()
	p := DataPoint[T]{Value: v, Timestamp: now.UnixMilli()}

	s.lastMu.Lock()
	if !s.hasLast || p.Timestamp >= s.lastPoint.Timestamp {
		s.lastPoint = p
		s.hasLast = true
	}
	s.lastMu.Unlock()

	var admit [numTiers]bool
	s.fireMu.Lock()
	if !s.armed {
		admit[TierSecond] = true
		s.armed = true
	} else {
		elapsed := now.Sub(s.lastFire)
		for _, t := range Tiers() {
			admit[t] = elapsed >= t.Period()
		}
	}
	if admit[TierSecond] {
		s.lastFire = now
	}
	s.fireMu.Unlock()

	for _, t := range Tiers() {
		if admit[t] {
			s.tiers[t].push(p, t.Capacity())
		}
	}
}

// LastPoint returns the most recently appended point.
func (s *Series[T]) LastPoint() (DataPoint[T], bool) {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	return s.lastPoint, s.hasLast
}

// Points returns a copy of the tier's points, oldest first.
func (s *Series[T]) Points(t Tier) []DataPoint[T] {
	if t < 0 || t >= numTiers {
		return nil
	}
	return s.tiers[t].snapshot()
}

type seriesMetaJSON struct {
	Name        string `json:"name"`
	FixedLength bool   `json:"fixed_length"`
}

type tierJSON[T any] struct {
	Timestamps []int64 `json:"timestamps"`
	Values     []T     `json:"values"`
}

type seriesDataJSON[T any] struct {
	Second tierJSON[T] `json:"second"`
	Minute tierJSON[T] `json:"minute"`
	Hour   tierJSON[T] `json:"hour"`
	Day    tierJSON[T] `json:"day"`
}

type seriesJSON[T any] struct {
	Meta seriesMetaJSON    `json:"meta"`
	Data seriesDataJSON[T] `json:"data"`
}

func newTierJSON[T any](points []DataPoint[T]) tierJSON[T] {
	out := tierJSON[T]{
		Timestamps: make([]int64, 0, len(points)),
		Values:     make([]T, 0, len(points)),
	}
	for _, p := range points {
		out.Timestamps = append(out.Timestamps, p.Timestamp)
		out.Values = append(out.Values, p.Value)
	}
	return out
}

// Describe writes a JSON snapshot of all four tiers to w:
//
//	{"meta":{"name":"time_series","fixed_length":false},
//	 "data":{"second":{"timestamps":[...],"values":[...]}, "minute":..., "hour":..., "day":...}}
//
// Arrays are ordered oldest to newest; empty tiers produce empty arrays.
// Tier locks are held only while copying.
func (s *Series[T]) Describe(w io.Writer, opts SeriesOptions) error {
	doc := seriesJSON[T]{
		Meta: seriesMetaJSON{Name: "time_series", FixedLength: opts.FixedLength},
		Data: seriesDataJSON[T]{
			Second: newTierJSON(s.tiers[TierSecond].snapshot()),
			Minute: newTierJSON(s.tiers[TierMinute].snapshot()),
			Hour:   newTierJSON(s.tiers[TierHour].snapshot()),
			Day:    newTierJSON(s.tiers[TierDay].snapshot()),
		},
	}
	b, err := jsonx.Marshal(doc)
	if err != nil {
		return fmt.Errorf("describe series: %w", err)
	}
	_, err = w.Write(b)
	return err
}

// String returns the Describe output with default options.
func (s *Series[T]) String() string {
	var buf bytes.Buffer
	if err := s.Describe(&buf, SeriesOptions{}); err != nil {
		return ""
	}
	return buf.String()
}
