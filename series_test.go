package bvar

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockSeries[T any]() (*clock.Mock, *Series[T]) {
	clk := clock.NewMock()
	clk.Set(time.Unix(1_700_000_000, 0))
	return clk, NewSeries[T](WithSeriesClock(clk))
}

func values[T any](points []DataPoint[T]) []T {
	out := make([]T, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}

func TestTier_Properties(t *testing.T) {
	tests := []struct {
		tier     Tier
		name     string
		capacity int
		period   time.Duration
	}{
		{TierSecond, "second", 60, time.Second},
		{TierMinute, "minute", 60, time.Minute},
		{TierHour, "hour", 24, time.Hour},
		{TierDay, "day", 30, 24 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.tier.String())
			assert.Equal(t, tt.capacity, tt.tier.Capacity())
			assert.Equal(t, tt.period, tt.tier.Period())
		})
	}
	assert.Equal(t, "Tier(7)", Tier(7).String())
}

func TestSeries_RingEviction(t *testing.T) {
	const extra = 5
	for _, tier := range Tiers() {
		t.Run(tier.String(), func(t *testing.T) {
			clk, s := newMockSeries[int]()
			// the first append only reaches the second tier, so append one more
			n := tier.Capacity() + extra + 1
			for i := 1; i <= n; i++ {
				s.Append(i)
				clk.Add(tier.Period())
			}

			got := s.Points(tier)
			require.Len(t, got, tier.Capacity())
			want := make([]int, 0, tier.Capacity())
			for i := n - tier.Capacity() + 1; i <= n; i++ {
				want = append(want, i)
			}
			assert.Equal(t, want, values(got))
			for i := 1; i < len(got); i++ {
				assert.Less(t, got[i-1].Timestamp, got[i].Timestamp)
			}
		})
	}
}

func TestSeries_TierCoupling(t *testing.T) {
	clk, s := newMockSeries[int]()
	// once every 30 seconds for 10 minutes
	for i := 0; i <= 20; i++ {
		s.Append(i)
		clk.Add(30 * time.Second)
	}

	assert.Len(t, s.Points(TierSecond), 21)
	assert.Empty(t, s.Points(TierMinute))
	assert.Empty(t, s.Points(TierHour))
	assert.Empty(t, s.Points(TierDay))
}

func TestSeries_SharedWatermark(t *testing.T) {
	tests := []struct {
		name string
		gap  time.Duration
		want map[Tier]int
	}{
		{name: "sub_second", gap: 500 * time.Millisecond, want: map[Tier]int{TierSecond: 1}},
		{name: "one_second", gap: time.Second, want: map[Tier]int{TierSecond: 2}},
		{name: "one_minute", gap: time.Minute, want: map[Tier]int{TierSecond: 2, TierMinute: 1}},
		{name: "two_hours", gap: 2 * time.Hour, want: map[Tier]int{TierSecond: 2, TierMinute: 1, TierHour: 1}},
		{name: "two_days", gap: 48 * time.Hour, want: map[Tier]int{TierSecond: 2, TierMinute: 1, TierHour: 1, TierDay: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk, s := newMockSeries[int]()
			s.Append(1)
			clk.Add(tt.gap)
			s.Append(2)

			for _, tier := range Tiers() {
				assert.Len(t, s.Points(tier), tt.want[tier], tier.String())
			}
			last, ok := s.LastPoint()
			require.True(t, ok)
			assert.Equal(t, 2, last.Value)
			assert.Equal(t, clk.Now().UnixMilli(), last.Timestamp)
		})
	}
}

func TestSeries_WatermarkFollowsSecondTier(t *testing.T) {
	clk, s := newMockSeries[int]()
	s.Append(1)
	// 40s + 40s: neither gap alone reaches a minute, and the watermark moved at 40s
	clk.Add(40 * time.Second)
	s.Append(2)
	clk.Add(40 * time.Second)
	s.Append(3)

	assert.Equal(t, []int{1, 2, 3}, values(s.Points(TierSecond)))
	assert.Empty(t, s.Points(TierMinute))
}

func TestSeries_LastPointEmpty(t *testing.T) {
	_, s := newMockSeries[float64]()
	_, ok := s.LastPoint()
	assert.False(t, ok)
	assert.Nil(t, s.Points(Tier(-1)))
}

func TestSeries_DescribeEmpty(t *testing.T) {
	_, s := newMockSeries[int64]()
	var buf bytes.Buffer
	require.NoError(t, s.Describe(&buf, SeriesOptions{}))

	want := `{"meta":{"name":"time_series","fixed_length":false},"data":{` +
		`"second":{"timestamps":[],"values":[]},` +
		`"minute":{"timestamps":[],"values":[]},` +
		`"hour":{"timestamps":[],"values":[]},` +
		`"day":{"timestamps":[],"values":[]}}}`
	assert.JSONEq(t, want, buf.String())
	assert.NotContains(t, buf.String(), "null")
}

func TestSeries_DescribeParallelArrays(t *testing.T) {
	clk, s := newMockSeries[int64]()
	start := clk.Now().UnixMilli()
	s.Append(10)
	clk.Add(time.Second)
	s.Append(20)

	var buf bytes.Buffer
	require.NoError(t, s.Describe(&buf, SeriesOptions{FixedLength: true}))

	var doc struct {
		Meta struct {
			Name        string `json:"name"`
			FixedLength bool   `json:"fixed_length"`
		} `json:"meta"`
		Data map[string]struct {
			Timestamps []int64 `json:"timestamps"`
			Values     []int64 `json:"values"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "time_series", doc.Meta.Name)
	assert.True(t, doc.Meta.FixedLength)
	require.Len(t, doc.Data, 4)
	assert.Equal(t, []int64{start, start + 1000}, doc.Data["second"].Timestamps)
	assert.Equal(t, []int64{10, 20}, doc.Data["second"].Values)
	assert.Empty(t, doc.Data["day"].Values)
	assert.JSONEq(t, mustDescribe(t, s, false), s.String())
}

func mustDescribe[T any](t *testing.T, s *Series[T], fixed bool) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, s.Describe(&buf, SeriesOptions{FixedLength: fixed}))
	return buf.String()
}

func TestSeries_LastPointNeverMovesBack(t *testing.T) {
	clk, s := newMockSeries[int64]()
	clk.Add(5 * time.Second)
	s.Append(1)
	newest := clk.Now().UnixMilli()

	// an append stamped earlier loses against the newer point
	clk.Set(clk.Now().Add(-2 * time.Second))
	s.Append(2)

	last, ok := s.LastPoint()
	require.True(t, ok)
	assert.Equal(t, int64(1), last.Value)
	assert.Equal(t, newest, last.Timestamp)

	clk.Add(3 * time.Second)
	s.Append(3)
	last, _ = s.LastPoint()
	assert.Equal(t, int64(3), last.Value)
}
