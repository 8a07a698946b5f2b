package nn

import (
	"sort"

	flatbush "github.com/bmharper/flatbush-go"
)

// SuppressDuplicates performs greedy non-maximum suppression.
// Boxes with a score at or below scoreThreshold are discarded. The remaining
// boxes are visited from highest to lowest score, and any box that overlaps an
// already retained box with an IoU above iouThreshold is suppressed.
// Returns the indices (into boxes) of the retained boxes, in order of descending score.
// Ties in score are broken by the original index, so the output is deterministic.
func SuppressDuplicates(boxes []Rect, scores []float32, scoreThreshold, iouThreshold float32) []int {
	if len(boxes) != len(scores) {
		panic("SuppressDuplicates: boxes and scores have different lengths")
	}
	order := make([]int, 0, len(boxes))
	for i, s := range scores {
		if s > scoreThreshold {
			order = append(order, i)
		}
	}
	if len(order) == 0 {
		return []int{}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})

	// Create spatial index to avoid O(N^2) comparisons
	fb := flatbush.NewFlatbush[int32]()
	fb.Reserve(len(boxes))
	for _, b := range boxes {
		fb.Add(int32(b.X), int32(b.Y), int32(b.X2()), int32(b.Y2()))
	}
	fb.Finish()

	// visited[i] is true once box i has been either kept or suppressed
	visited := make([]bool, len(boxes))
	keep := make([]int, 0, len(order))
	nearby := []int{}
	for _, i := range order {
		if visited[i] {
			continue
		}
		visited[i] = true
		keep = append(keep, i)
		b := boxes[i]
		nearby = fb.SearchFast(int32(b.X), int32(b.Y), int32(b.X2()), int32(b.Y2()), nearby)
		for _, j := range nearby {
			if visited[j] || scores[j] <= scoreThreshold {
				continue
			}
			if b.IOU(boxes[j]) > iouThreshold {
				visited[j] = true
			}
		}
	}
	return keep
}
