package catalog

import "golang.org/x/exp/constraints"

// Bit returns a value with only bit n set.
func Bit[T constraints.Unsigned](n uint) T {
	return T(1) << n
}

// Merge replaces the bits of old selected by mask with those of val.
func Merge[T constraints.Unsigned](old, val, mask T) T {
	return old&^mask | val&mask
}
