package gen

// Delete the first occurrence of v from the slice, preserving order.
// If v is not found, the slice is returned unchanged.
func DeleteFirst[T comparable](s []T, v T) []T {
	for i := range s {
		if s[i] == v {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

// Delete element i by moving the last element into its place.
func DeleteFromSliceUnordered[T any](s []T, i int) []T {
	last := len(s) - 1
	s[i] = s[last]
	var zero T
	s[last] = zero
	return s[:last]
}
