package nn

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSuppressDuplicates(t *testing.T) {
	boxes := []Rect{
		{X: 0, Y: 0, Width: 100, Height: 100},   // 0
		{X: 5, Y: 5, Width: 100, Height: 100},   // 1 heavy overlap with 0
		{X: 300, Y: 300, Width: 50, Height: 50}, // 2 isolated
		{X: 60, Y: 0, Width: 100, Height: 100},  // 3 small overlap with 0
		{X: 400, Y: 0, Width: 20, Height: 20},   // 4 below score threshold
	}
	scores := []float32{0.8, 0.9, 0.6, 0.7, 0.3}
	keep := SuppressDuplicates(boxes, scores, 0.5, 0.4)
	// 1 is the strongest, and suppresses 0. 3 overlaps 1 only moderately.
	require.Equal(t, []int{1, 3, 2}, keep)
}

func TestSuppressDuplicatesEmpty(t *testing.T) {
	require.Equal(t, []int{}, SuppressDuplicates(nil, nil, 0.5, 0.4))
	boxes := []Rect{{X: 0, Y: 0, Width: 10, Height: 10}}
	// Strictly greater than the score threshold
	require.Equal(t, []int{}, SuppressDuplicates(boxes, []float32{0.5}, 0.5, 0.4))
	require.Equal(t, []int{0}, SuppressDuplicates(boxes, []float32{0.51}, 0.5, 0.4))
}

func TestSuppressDuplicatesTies(t *testing.T) {
	boxes := []Rect{
		{X: 0, Y: 0, Width: 10, Height: 10},
		{X: 0, Y: 0, Width: 10, Height: 10},
		{X: 50, Y: 50, Width: 10, Height: 10},
	}
	scores := []float32{0.7, 0.7, 0.7}
	require.Equal(t, []int{0, 2}, SuppressDuplicates(boxes, scores, 0.5, 0.4))
}
