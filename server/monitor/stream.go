package monitor

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bmharper/cimg/v2"
	"github.com/bmharper/ringbuffer"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/speedtrap/pkg/analysis"
	"github.com/cyclopcam/speedtrap/pkg/heatmap"
	"github.com/cyclopcam/speedtrap/pkg/segment"
	"github.com/cyclopcam/speedtrap/server/source"
)

type StreamState int32

const (
	StatePending StreamState = iota
	StateRunning
	StateFinished
	StateFailed
)

func (s StreamState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

func (s StreamState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *StreamState) UnmarshalText(b []byte) error {
	for st := StatePending; st <= StateFailed; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown stream state '%s'", b)
}

// Stream is a single source of frames, and the pipeline that analyzes it.
// The pipeline is only touched by the stream's goroutine, and by readers holding lock.
type Stream struct {
	ID     int64
	Name   string
	Log    logs.Log
	Info   source.Info
	Config analysis.Config // After frame rate resolution

	source   source.Source
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	state    atomic.Int32

	lock            sync.Mutex // Guards everything below
	pipeline        *analysis.Pipeline
	recent          ringbuffer.RingP[*analysis.FrameResult]
	lastImage       *cimg.Image
	lastImageResult *analysis.FrameResult
	err             error
}

// StreamStatus is a point-in-time view of a stream, for the API
type StreamStatus struct {
	ID       int64             `json:"id"`
	Name     string            `json:"name"`
	State    StreamState       `json:"state"`
	Error    string            `json:"error,omitempty"`
	Info     source.Info       `json:"info"`
	Config   analysis.Config   `json:"config"`
	Summary  analysis.Summary  `json:"summary"`
	Segments []segment.Segment `json:"segments"`
}

func (s *Stream) State() StreamState {
	return StreamState(s.state.Load())
}

func (s *Stream) setState(state StreamState, err error) {
	s.lock.Lock()
	s.err = err
	s.lock.Unlock()
	s.state.Store(int32(state))
}

func (s *Stream) isStopped() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// Done is closed when the stream's goroutine exits
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

func (s *Stream) Err() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.err
}

func (s *Stream) setFrameSize(width, height int) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.pipeline.SetFrameSize(width, height)
}

func (s *Stream) Status() StreamStatus {
	s.lock.Lock()
	defer s.lock.Unlock()
	st := StreamStatus{
		ID:       s.ID,
		Name:     s.Name,
		State:    s.State(),
		Info:     s.Info,
		Config:   s.Config,
		Summary:  s.pipeline.Summary(),
		Segments: s.pipeline.Segments(),
	}
	if s.err != nil {
		st.Error = s.err.Error()
	}
	return st
}

// Segments returns the speeding segments closed so far. Once the stream has finished,
// this includes the segment that was open at the end.
func (s *Stream) Segments() []segment.Segment {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.pipeline.Segments()
}

func (s *Stream) Summary() analysis.Summary {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.pipeline.Summary()
}

// Heatmap returns a copy of the heatmap, or nil if the frame size is not yet known
func (s *Stream) Heatmap() *heatmap.Plane {
	s.lock.Lock()
	defer s.lock.Unlock()
	if h := s.pipeline.Heatmap(); h != nil {
		return h.Clone()
	}
	return nil
}

// Recent returns up to n of the most recent frame results, oldest first
func (s *Stream) Recent(n int) []*analysis.FrameResult {
	s.lock.Lock()
	defer s.lock.Unlock()
	total := s.recent.Len()
	if n <= 0 || n > total {
		n = total
	}
	out := make([]*analysis.FrameResult, 0, n)
	for i := total - n; i < total; i++ {
		out = append(out, s.recent.Peek(i))
	}
	return out
}

// LastImage returns the most recent decoded frame, and its analysis.
// Returns nil if the source does not decode images.
func (s *Stream) LastImage() (*cimg.Image, *analysis.FrameResult) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.lastImage, s.lastImageResult
}
