package source

import (
	"context"

	"github.com/cyclopcam/speedtrap/pkg/nn"
)

// LabelSource replays a labels file that was produced by an earlier detector run.
// Every frame number from zero to the end of the video is delivered, and frames
// that are absent from the file have no detections.
type LabelSource struct {
	labels *nn.VideoLabels
	next   int // next frame number
	pos    int // position in labels.Frames
}

func NewLabelSource(labels *nn.VideoLabels) *LabelSource {
	return &LabelSource{
		labels: labels,
	}
}

func OpenLabelFile(filename string) (*LabelSource, error) {
	labels, err := nn.LoadVideoLabels(filename)
	if err != nil {
		return nil, err
	}
	return NewLabelSource(labels), nil
}

func (s *LabelSource) Info() Info {
	return Info{
		FrameRate: s.labels.FrameRate,
		NumFrames: s.labels.NumFrames(),
		Width:     s.labels.Width,
		Height:    s.labels.Height,
		Classes:   s.labels.Classes,
	}
}

func (s *LabelSource) Next(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= s.labels.NumFrames() {
		return nil, ErrEndOfStream
	}
	// Skip labelled frames with negative numbers
	for s.pos < len(s.labels.Frames) && s.labels.Frames[s.pos].Frame < s.next {
		s.pos++
	}
	f := &Frame{
		Number: s.next,
	}
	if s.pos < len(s.labels.Frames) && s.labels.Frames[s.pos].Frame == s.next {
		f.Objects = s.labels.Frames[s.pos].Objects
		s.pos++
	}
	s.next++
	return f, nil
}

func (s *LabelSource) Close() error {
	return nil
}
