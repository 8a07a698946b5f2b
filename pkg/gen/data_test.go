package gen

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeleteFirst(t *testing.T) {
	a := []int{1, 2, 3}
	b := DeleteFirst(a, -1)
	require.Equal(t, a, b)

	a = []int{1, 2, 3}
	b = DeleteFirst(a, 1)
	require.ElementsMatch(t, []int{2, 3}, b)

	a = []int{1, 2, 3}
	b = DeleteFirst(a, 2)
	require.ElementsMatch(t, []int{1, 3}, b)

	a = []int{1, 2, 3}
	b = DeleteFirst(a, 3)
	require.ElementsMatch(t, []int{1, 2}, b)

	a = []int{1, 2}
	b = DeleteFirst(a, 1)
	require.ElementsMatch(t, []int{2}, b)

	a = []int{1}
	b = DeleteFirst(a, 1)
	require.ElementsMatch(t, []int{}, b)
}

func TestDeleteFromSliceUnordered(t *testing.T) {
	a := []int{1, 2, 3, 4}
	a = DeleteFromSliceUnordered(a, 1)
	require.ElementsMatch(t, []int{1, 3, 4}, a)

	a = DeleteFromSliceUnordered(a, 2)
	require.ElementsMatch(t, []int{1, 3}, a)

	a = DeleteFromSliceUnordered(a, 0)
	a = DeleteFromSliceUnordered(a, 0)
	require.Empty(t, a)
}

func TestClamp(t *testing.T) {
	require.Equal(t, 0, Clamp(-5, 0, 10))
	require.Equal(t, 10, Clamp(15, 0, 10))
	require.Equal(t, 7, Clamp(7, 0, 10))
	require.Equal(t, 2.5, Abs(-2.5))
}
