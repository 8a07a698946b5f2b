package track

import (
	"fmt"
	"math"

	flatbush "github.com/bmharper/flatbush-go"
)

// Matcher associates detections in the current frame with detections in the previous frame.
// order is the kept order of the current frame. The result maps a current Detection Index
// to a previous Detection Index. A previous entry may be used at most once.
type Matcher interface {
	Name() string
	Match(previous, current PositionTable, order []int) map[int]int
}

// Names of the built-in matchers
const (
	MatcherIndex     = "index"
	MatcherCentroid  = "centroid"
	MatcherIoU       = "iou"
	MatcherHungarian = "hungarian"
)

// MatcherNames lists the names accepted by NewMatcher
var MatcherNames = []string{MatcherIndex, MatcherCentroid, MatcherIoU, MatcherHungarian}

// Create a matcher by name.
// maxDistance (pixels) gates the centroid and hungarian matchers (0 = no limit).
// minIoU is the lowest overlap that the iou matcher accepts.
func NewMatcher(name string, maxDistance, minIoU float32) (Matcher, error) {
	switch name {
	case "", MatcherIndex:
		return IndexMatcher{}, nil
	case MatcherCentroid:
		return &CentroidMatcher{MaxDistance: maxDistance}, nil
	case MatcherIoU:
		return &IoUMatcher{MinIoU: minIoU}, nil
	case MatcherHungarian:
		return &HungarianMatcher{MaxDistance: maxDistance}, nil
	}
	return nil, fmt.Errorf("unknown matcher '%v' (valid matchers are %v)", name, MatcherNames)
}

// IndexMatcher treats index i in this frame as a continuation of index i in the
// previous frame. Detection indices are re-derived every frame, so if the number or
// order of detections changes, index i may refer to an unrelated object.
// This is the default association rule.
type IndexMatcher struct{}

func (IndexMatcher) Name() string {
	return MatcherIndex
}

func (IndexMatcher) Match(previous, current PositionTable, order []int) map[int]int {
	m := map[int]int{}
	for _, i := range order {
		if _, ok := previous[i]; ok {
			m[i] = i
		}
	}
	return m
}

// CentroidMatcher greedily associates each current detection (in kept order) with
// the nearest unused previous centroid.
type CentroidMatcher struct {
	MaxDistance float32 // Maximum centroid displacement in pixels. Zero means unlimited.
}

func (c *CentroidMatcher) Name() string {
	return MatcherCentroid
}

func (c *CentroidMatcher) Match(previous, current PositionTable, order []int) map[int]int {
	prevIdx := previous.Indices()
	used := make([]bool, len(prevIdx))
	m := map[int]int{}

	if c.MaxDistance <= 0 {
		for _, i := range order {
			cur := current[i].Centroid
			best := -1
			bestDistance := float32(math.MaxFloat32)
			for k, j := range prevIdx {
				if used[k] {
					continue
				}
				if d := previous[j].Centroid.Distance(cur); d < bestDistance {
					bestDistance = d
					best = k
				}
			}
			if best != -1 {
				used[best] = true
				m[i] = prevIdx[best]
			}
		}
		return m
	}

	// Spatial index over the previous centroids
	fb := flatbush.NewFlatbush[int32]()
	fb.Reserve(len(prevIdx))
	for _, j := range prevIdx {
		p := previous[j].Centroid
		fb.Add(int32(math.Floor(float64(p.X))), int32(math.Floor(float64(p.Y))), int32(math.Ceil(float64(p.X))), int32(math.Ceil(float64(p.Y))))
	}
	fb.Finish()

	nearby := []int{}
	r := float64(c.MaxDistance)
	for _, i := range order {
		cur := current[i].Centroid
		x, y := float64(cur.X), float64(cur.Y)
		nearby = fb.SearchFast(int32(math.Floor(x-r)), int32(math.Floor(y-r)), int32(math.Ceil(x+r)), int32(math.Ceil(y+r)), nearby)
		best := -1
		bestDistance := c.MaxDistance
		for _, k := range nearby {
			if used[k] {
				continue
			}
			d := previous[prevIdx[k]].Centroid.Distance(cur)
			// Ties go to the lowest previous index
			if d < bestDistance || (d == bestDistance && (best == -1 || k < best)) {
				bestDistance = d
				best = k
			}
		}
		if best != -1 {
			used[best] = true
			m[i] = prevIdx[best]
		}
	}
	return m
}

// IoUMatcher greedily associates each current detection (in kept order) with the
// unused previous box that it overlaps the most.
type IoUMatcher struct {
	MinIoU float32 // Minimum overlap required for a match. Boxes that don't overlap never match.
}

func (c *IoUMatcher) Name() string {
	return MatcherIoU
}

func (c *IoUMatcher) Match(previous, current PositionTable, order []int) map[int]int {
	prevIdx := previous.Indices()
	used := make([]bool, len(prevIdx))
	m := map[int]int{}
	for _, i := range order {
		box := current[i].Box
		best := -1
		bestIOU := float32(0)
		for k, j := range prevIdx {
			if used[k] {
				continue
			}
			iou := box.IOU(previous[j].Box)
			if iou > bestIOU && iou >= c.MinIoU {
				bestIOU = iou
				best = k
			}
		}
		if best != -1 {
			used[best] = true
			m[i] = prevIdx[best]
		}
	}
	return m
}

// HungarianMatcher finds the assignment that minimizes the total centroid
// displacement, instead of greedily taking the closest pair first.
type HungarianMatcher struct {
	MaxDistance float32 // Pairs further apart than this are never matched. Zero means unlimited.
}

func (c *HungarianMatcher) Name() string {
	return MatcherHungarian
}

func (c *HungarianMatcher) Match(previous, current PositionTable, order []int) map[int]int {
	prevIdx := previous.Indices()
	cost := make([][]float32, len(order))
	for r, i := range order {
		cost[r] = make([]float32, len(prevIdx))
		for k, j := range prevIdx {
			d := current[i].Centroid.Distance(previous[j].Centroid)
			if c.MaxDistance > 0 && d > c.MaxDistance {
				cost[r][k] = hungarianForbidden
			} else {
				cost[r][k] = d
			}
		}
	}
	m := map[int]int{}
	for r, k := range hungarianAssign(cost) {
		if k >= 0 {
			m[order[r]] = prevIdx[k]
		}
	}
	return m
}
