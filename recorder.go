package bvar

import "strconv"

// Stat is a running sum and count.
type Stat struct {
	Sum int64
	Num int64
}

// Average returns the integer average, or 0 when empty.
func (s Stat) Average() int64 {
	if s.Num == 0 {
		return 0
	}
	return s.Sum / s.Num
}

// AverageFloat returns the average as a float64, or 0 when empty.
func (s Stat) AverageFloat() float64 {
	if s.Num == 0 {
		return 0
	}
	return float64(s.Sum) / float64(s.Num)
}

// String prints the integer average, falling back to the float average
// when the integer one truncates to 0.
func (s Stat) String() string {
	if v := s.Average(); v != 0 {
		return strconv.FormatInt(v, 10)
	}
	return strconv.FormatFloat(s.AverageFloat(), 'g', -1, 64)
}

// StatOp adds stats field by field.
type StatOp struct{}

func (StatOp) Combine(a, b Stat) Stat { return Stat{Sum: a.Sum + b.Sum, Num: a.Num + b.Num} }
func (StatOp) Modify(v Stat) Stat     { return v }
func (StatOp) Name() string           { return "stat" }

// StatSubOp is the inverse of StatOp.
type StatSubOp struct{}

func (StatSubOp) Combine(a, b Stat) Stat { return Stat{Sum: a.Sum - b.Sum, Num: a.Num - b.Num} }
func (StatSubOp) Modify(v Stat) Stat     { return v }
func (StatSubOp) Name() string           { return "stat_minus" }

// IntRecorder tracks the running average of int64 samples.
type IntRecorder struct {
	*Reducer[Stat]
}

// NewIntRecorder constructs an empty IntRecorder.
func NewIntRecorder(opts ...ReducerOption[Stat]) IntRecorder {
	opts = append([]ReducerOption[Stat]{WithInverse[Stat](StatSubOp{})}, opts...)
	return IntRecorder{NewReducer(Stat{}, Op[Stat](StatOp{}), opts...)}
}

// Add records one sample.
func (r IntRecorder) Add(v int64) {
	r.Reducer.Add(Stat{Sum: v, Num: 1})
}

// Average returns the integer average of every recorded sample.
func (r IntRecorder) Average() int64 { return r.Value().Average() }

// AverageFloat returns the average of every recorded sample.
func (r IntRecorder) AverageFloat() float64 { return r.Value().AverageFloat() }

// RecorderAgent is a dedicated shard of an IntRecorder.
type RecorderAgent struct {
	*Agent[Stat]
}

// Agent returns a dedicated shard for a long-lived worker.
func (r IntRecorder) Agent() RecorderAgent {
	return RecorderAgent{r.Reducer.Agent()}
}

// Add records one sample.
func (a RecorderAgent) Add(v int64) {
	a.Agent.Add(Stat{Sum: v, Num: 1})
}
