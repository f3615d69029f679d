package bvar

import (
	"io"
	"strconv"
	"sync"

	"github.com/ygrebnov/bvar/internal/jsonx"
)

// Status is a Variable holding a value that is set rather than accumulated.
type Status[T any] struct {
	exposer

	mu    sync.RWMutex
	value T
}

// NewStatus constructs a Status holding v, exposable in the process-wide name table.
func NewStatus[T any](v T) *Status[T] {
	return NewStatusIn(DefaultVars(), v)
}

// NewStatusIn constructs a Status holding v, exposable in vars.
func NewStatusIn[T any](vars *VarRegistry, v T) *Status[T] {
	s := &Status[T]{value: v}
	s.exposer.bind(s, vars)
	return s
}

// Get returns the current value.
func (s *Status[T]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Set replaces the current value.
func (s *Status[T]) Set(v T) {
	s.mu.Lock()
	s.value = v
	s.mu.Unlock()
}

// Describe writes the value, quoting strings when quoteString is set.
func (s *Status[T]) Describe(w io.Writer, quoteString bool) bool {
	return describeValue(w, s.Get(), quoteString)
}

func quoteJSON(s string) string {
	b, err := jsonx.Marshal(s)
	if err != nil {
		return strconv.Quote(s)
	}
	return string(b)
}
