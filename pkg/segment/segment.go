// Package segment extracts contiguous runs of speeding frames.
package segment

import (
	"errors"
	"fmt"
)

var ErrFrameOutOfOrder = errors.New("frames must be delivered in strictly increasing order")

// Segment is an inclusive range of frame numbers
type Segment struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Number of frames in the segment
func (s Segment) Len() int {
	return s.End - s.Start + 1
}

func (s Segment) String() string {
	return fmt.Sprintf("[%v, %v]", s.Start, s.End)
}

// Extractor is a two-state machine (idle, active) fed with one speeding flag per frame.
// It is not safe for concurrent use.
type Extractor struct {
	active    bool
	start     int
	lastFrame int
	haveFrame bool
	finished  bool
	segments  []Segment
}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Update delivers the speeding flag of the next frame.
// A segment that is open when a non-speeding frame arrives is closed at the
// previous delivered frame.
func (e *Extractor) Update(frame int, speeding bool) error {
	if e.finished {
		return errors.New("segment extractor is finished")
	}
	if e.haveFrame && frame <= e.lastFrame {
		return fmt.Errorf("%w: frame %v after frame %v", ErrFrameOutOfOrder, frame, e.lastFrame)
	}
	if speeding && !e.active {
		e.active = true
		e.start = frame
	} else if !speeding && e.active {
		e.active = false
		e.segments = append(e.segments, Segment{Start: e.start, End: e.lastFrame})
	}
	e.lastFrame = frame
	e.haveFrame = true
	return nil
}

// Finish closes any open segment at the last delivered frame, and returns all segments.
// Calling Finish more than once has no further effect.
func (e *Extractor) Finish() []Segment {
	if !e.finished {
		e.finished = true
		if e.active {
			e.active = false
			e.segments = append(e.segments, Segment{Start: e.start, End: e.lastFrame})
		}
	}
	return e.Segments()
}

// Segments returns a copy of the segments closed so far
func (e *Extractor) Segments() []Segment {
	return append([]Segment{}, e.segments...)
}

// Active is true while a segment is open
func (e *Extractor) Active() bool {
	return e.active
}

// Open returns the start of the open segment, and the last frame delivered to it
func (e *Extractor) Open() (Segment, bool) {
	if !e.active {
		return Segment{}, false
	}
	return Segment{Start: e.start, End: e.lastFrame}, true
}

func (e *Extractor) IsFinished() bool {
	return e.finished
}

// FromFlags runs an extractor over flags, where flags[i] is the speeding state of frame i
func FromFlags(flags []bool) []Segment {
	e := NewExtractor()
	for i, f := range flags {
		e.Update(i, f)
	}
	return e.Finish()
}
