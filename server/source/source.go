// Package source produces frames of detector output, in frame order.
package source

import (
	"context"
	"errors"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/speedtrap/pkg/nn"
)

// ErrEndOfStream is returned by Next once every frame has been delivered
var ErrEndOfStream = errors.New("end of stream")

// Frame is the raw detector output for one frame.
type Frame struct {
	Number  int
	Objects []nn.ObjectDetection
	Image   *cimg.Image // Only present if the source decodes images
}

// Info describes a source. Zero values are unknown.
type Info struct {
	FrameRate float64  `json:"frameRate"`
	NumFrames int      `json:"numFrames"`
	Width     int      `json:"width"`
	Height    int      `json:"height"`
	Classes   []string `json:"classes"`
}

// Source delivers frames in strictly increasing frame order
type Source interface {
	Info() Info
	// Next returns the next frame, or ErrEndOfStream
	Next(ctx context.Context) (*Frame, error)
	Close() error
}

type classOverride struct {
	Source
	classes []string
}

func (c *classOverride) Info() Info {
	inf := c.Source.Info()
	inf.Classes = c.classes
	return inf
}

// WithClasses replaces the class names declared by src
func WithClasses(src Source, classes []string) Source {
	return &classOverride{
		Source:  src,
		classes: classes,
	}
}
