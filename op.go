package bvar

import (
	"cmp"

	"golang.org/x/exp/constraints"
)

// Op combines two values of T into one.
//
// Combine must be associative, commutative and free of side effects:
//
//	a Op (b Op c) == (a Op b) Op c
//	a Op b == b Op a
//
// Violating this is a caller error and cannot be detected at runtime.
// Modify is applied to every incoming value before it is combined into a shard.
type Op[T any] interface {
	Combine(a, b T) T
	Modify(v T) T
	Name() string
}

// Number is any integer or floating point type.
type Number interface {
	constraints.Integer | constraints.Float
}

// AddTo sums values.
type AddTo[T Number] struct{}

func (AddTo[T]) Combine(a, b T) T { return a + b }
func (AddTo[T]) Modify(v T) T     { return v }
func (AddTo[T]) Name() string     { return "add" }

// SubFrom is the inverse of AddTo. It is not commutative and must only be used as an inverse op.
type SubFrom[T Number] struct{}

func (SubFrom[T]) Combine(a, b T) T { return a - b }
func (SubFrom[T]) Modify(v T) T     { return v }
func (SubFrom[T]) Name() string     { return "minus" }

// MaxTo keeps the greatest value.
type MaxTo[T cmp.Ordered] struct{}

func (MaxTo[T]) Combine(a, b T) T { return max(a, b) }
func (MaxTo[T]) Modify(v T) T     { return v }
func (MaxTo[T]) Name() string     { return "max" }

// MinTo keeps the smallest value.
type MinTo[T cmp.Ordered] struct{}

func (MinTo[T]) Combine(a, b T) T { return min(a, b) }
func (MinTo[T]) Modify(v T) T     { return v }
func (MinTo[T]) Name() string     { return "min" }
