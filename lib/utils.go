package lib

import (
	"golang.org/x/exp/constraints"
)

func PtrOf[T any](value T) *T {
	return &value
}

func Min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

func Max[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// Clamp limits value to the closed interval [lower, upper].
func Clamp[T constraints.Ordered](value, lower, upper T) T {
	return Min(Max(value, lower), upper)
}
