// numeric.go - Small generic numeric helpers
//
// Priority values are plain ints, but several call sites below just want
// "the more urgent (numerically lower) of these two" without committing to
// int specifically, so this uses the same constraints.Ordered generic the
// rest of the ecosystem reaches for instead of hand-rolling a type switch.
package tinykernel

import "golang.org/x/exp/constraints"

// minOrdered returns the lesser of a and b.
func minOrdered[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}
