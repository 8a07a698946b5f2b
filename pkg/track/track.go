// Package track correlates kept detections from one frame with those of the
// previous frame, so that a displacement can be measured.
package track

import (
	"sort"

	"github.com/cyclopcam/speedtrap/pkg/detect"
	"github.com/cyclopcam/speedtrap/pkg/nn"
)

// Position of a kept detection in a single frame
type Position struct {
	Centroid nn.PointF `json:"centroid"`
	Box      nn.Rect   `json:"box"`
}

// PositionTable maps a Detection Index (scoped to one frame) to its position.
type PositionTable map[int]Position

// Indices returns the keys of the table in ascending order
func (t PositionTable) Indices() []int {
	keys := make([]int, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// Continuation is a detection in the current frame that was associated with
// a detection in the previous frame.
type Continuation struct {
	Index            int       `json:"index"`            // Detection Index in the current frame
	PreviousIndex    int       `json:"previousIndex"`    // Detection Index in the previous frame
	PreviousCentroid nn.PointF `json:"previousCentroid"` // Centroid in the previous frame
	Centroid         nn.PointF `json:"centroid"`         // Centroid in the current frame
}

// Result of tracking one frame
type Result struct {
	Table     PositionTable  // Every kept detection of this frame
	Continued []Continuation // Subset of Table that has a predecessor, in kept order
}

// Tracker owns the position table of the previous frame.
// It is not safe for concurrent use.
type Tracker struct {
	matcher  Matcher
	previous PositionTable
}

// Create a new tracker. If matcher is nil, detections are associated by raw index.
func NewTracker(matcher Matcher) *Tracker {
	if matcher == nil {
		matcher = IndexMatcher{}
	}
	return &Tracker{
		matcher:  matcher,
		previous: PositionTable{},
	}
}

func (t *Tracker) Matcher() Matcher {
	return t.matcher
}

// Previous returns the position table of the last frame passed to Update
func (t *Tracker) Previous() PositionTable {
	return t.previous
}

// Update consumes the kept detections of the current frame.
// The new position table becomes the 'previous' table for the next call.
func (t *Tracker) Update(frame *detect.Frame) *Result {
	current := make(PositionTable, len(frame.Kept))
	for _, i := range frame.Kept {
		box := frame.Detections[i].Box
		current[i] = Position{
			Centroid: box.Centroid(),
			Box:      box,
		}
	}

	result := &Result{
		Table: current,
	}
	if len(t.previous) != 0 && len(current) != 0 {
		matches := t.matcher.Match(t.previous, current, frame.Kept)
		for _, i := range frame.Kept {
			j, ok := matches[i]
			if !ok {
				continue
			}
			result.Continued = append(result.Continued, Continuation{
				Index:            i,
				PreviousIndex:    j,
				PreviousCentroid: t.previous[j].Centroid,
				Centroid:         current[i].Centroid,
			})
		}
	}

	t.previous = current
	return result
}

// Reset forgets the previous frame
func (t *Tracker) Reset() {
	t.previous = PositionTable{}
}
