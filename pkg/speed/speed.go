// Package speed turns the centroid displacement of a continued detection into
// an instantaneous speed.
package speed

import (
	"errors"
	"fmt"
	"math"

	"github.com/cyclopcam/speedtrap/pkg/nn"
	"github.com/cyclopcam/speedtrap/pkg/track"
)

// ErrInvalidFrameRate is returned when the frame rate would produce a zero,
// negative, or undefined time delta between frames.
var ErrInvalidFrameRate = errors.New("frame rate must be a finite number greater than zero")

// Record maps a Detection Index of the current frame to its speed in pixels per second.
// Detections without a predecessor have no entry.
type Record map[int]float64

// Max returns the highest speed in the record, or zero if the record is empty
func (r Record) Max() float64 {
	m := 0.0
	for _, v := range r {
		m = max(m, v)
	}
	return m
}

// Estimator converts per-frame displacement into speed
type Estimator struct {
	frameRate float64
	dt        float64
}

func NewEstimator(frameRate float64) (*Estimator, error) {
	if err := ValidateFrameRate(frameRate); err != nil {
		return nil, err
	}
	return &Estimator{
		frameRate: frameRate,
		dt:        1 / frameRate,
	}, nil
}

func ValidateFrameRate(frameRate float64) error {
	if math.IsNaN(frameRate) || math.IsInf(frameRate, 0) || frameRate <= 0 {
		return fmt.Errorf("%w (got %v)", ErrInvalidFrameRate, frameRate)
	}
	return nil
}

func (e *Estimator) FrameRate() float64 {
	return e.frameRate
}

// TimeDelta is the time between consecutive frames, in seconds
func (e *Estimator) TimeDelta() float64 {
	return e.dt
}

// Speed in pixels per second of an object that moved from prev to cur in one frame
func (e *Estimator) Speed(prev, cur nn.PointF) float64 {
	return float64(prev.Distance(cur)) / e.dt
}

// Estimate computes the speed of every continued detection
func (e *Estimator) Estimate(continued []track.Continuation) Record {
	r := make(Record, len(continued))
	for _, c := range continued {
		r[c.Index] = e.Speed(c.PreviousCentroid, c.Centroid)
	}
	return r
}

// Exceeds is true if v is strictly above the limit. A speed equal to the limit is not speeding.
func Exceeds(v, limit float64) bool {
	return v > limit
}
