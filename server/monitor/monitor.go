package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bmharper/ringbuffer"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/speedtrap/pkg/analysis"
	"github.com/cyclopcam/speedtrap/pkg/category"
	"github.com/cyclopcam/speedtrap/pkg/gen"
	"github.com/cyclopcam/speedtrap/server/log"
	"github.com/cyclopcam/speedtrap/server/source"
)

// monitor runs one analysis pipeline per stream, each on its own goroutine.
// Streams share nothing except the watcher registry and the metrics.

// Number of frame results kept per stream, if not specified
const DefaultRecentFrames = 256

// StreamConfig is what the monitor needs to start analyzing a stream
type StreamConfig struct {
	Name      string
	Source    source.Source // Owned by the monitor from here on, and closed when the stream ends
	Analysis  analysis.Config
	FrameRate float64 // If non-zero, overrides both the source's declared frame rate and Analysis.FrameRate
}

// Called on the stream's goroutine, after its pipeline has been flushed
type FinishedFunc func(s *Stream)

type Monitor struct {
	Log          logs.Log
	RecentFrames int          // Must be a power of 2. Set before adding streams.
	OnFinished   FinishedFunc // Optional. Set before Start.

	streamsLock sync.RWMutex
	streams     []*Stream
	nextID      int64
	wg          sync.WaitGroup
	started     bool
	ctx         context.Context
	cancel      context.CancelFunc

	watchersLock      sync.RWMutex
	watchers          map[int64][]chan *FrameEvent
	watchersAllStream []chan *FrameEvent
}

func NewMonitor(logger logs.Log) *Monitor {
	return &Monitor{
		Log:          log.NewPrefixLogger(logger, "Monitor:"),
		RecentFrames: DefaultRecentFrames,
		nextID:       1,
		watchers:     map[int64][]chan *FrameEvent{},
	}
}

// AddStream creates a pipeline for the stream. If the monitor is already running,
// the stream starts immediately.
func (m *Monitor) AddStream(cfg StreamConfig) (*Stream, error) {
	info := cfg.Source.Info()
	acfg := cfg.Analysis
	if cfg.FrameRate > 0 {
		acfg.FrameRate = cfg.FrameRate
	} else if info.FrameRate > 0 {
		acfg.FrameRate = info.FrameRate
	}

	m.streamsLock.Lock()
	defer m.streamsLock.Unlock()

	for _, s := range m.streams {
		if s.Name == cfg.Name {
			return nil, fmt.Errorf("Stream '%v' already exists", cfg.Name)
		}
	}

	id := m.nextID
	logger := log.NewPrefixLogger(m.Log, fmt.Sprintf("Stream %v (%v):", id, cfg.Name))
	pipeline, err := analysis.New(logger, acfg, info.Classes, info.Width, info.Height)
	if err != nil {
		return nil, fmt.Errorf("Stream '%v': %w", cfg.Name, err)
	}
	m.nextID++

	recentSize := m.RecentFrames
	if recentSize <= 0 {
		recentSize = DefaultRecentFrames
	}
	s := &Stream{
		ID:       id,
		Name:     cfg.Name,
		Log:      logger,
		Info:     info,
		Config:   acfg,
		source:   cfg.Source,
		pipeline: pipeline,
		recent:   ringbuffer.NewRingP[*analysis.FrameResult](recentSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	m.streams = append(m.streams, s)
	if m.started {
		m.launch(s)
	}
	return s, nil
}

// Start analyzing every stream. Cancelling ctx stops all streams, and each of them flushes its final segment.
func (m *Monitor) Start(ctx context.Context) {
	m.streamsLock.Lock()
	defer m.streamsLock.Unlock()
	if m.started {
		return
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	for _, s := range m.streams {
		m.launch(s)
	}
}

// Must be called with streamsLock held
func (m *Monitor) launch(s *Stream) {
	m.wg.Add(1)
	activeStreams.Inc()
	go func() {
		defer m.wg.Done()
		defer activeStreams.Dec()
		m.runStream(m.ctx, s)
	}()
}

// Wait until every stream has finished
func (m *Monitor) Wait() {
	m.wg.Wait()
}

// Close stops every stream, and waits for them to finish
func (m *Monitor) Close() {
	m.Log.Infof("Shutting down")
	m.streamsLock.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	m.streamsLock.Unlock()
	m.wg.Wait()
	m.Log.Infof("Closed")
}

// Stop feeding frames into a stream. The stream still flushes its open segment.
func (m *Monitor) Stop(streamID int64) error {
	s := m.StreamByID(streamID)
	if s == nil {
		return fmt.Errorf("Stream %v not found", streamID)
	}
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	return nil
}

func (m *Monitor) Streams() []*Stream {
	m.streamsLock.RLock()
	defer m.streamsLock.RUnlock()
	return append([]*Stream{}, m.streams...)
}

func (m *Monitor) StreamByID(id int64) *Stream {
	m.streamsLock.RLock()
	defer m.streamsLock.RUnlock()
	for _, s := range m.streams {
		if s.ID == id {
			return s
		}
	}
	return nil
}

func (m *Monitor) StreamByName(name string) *Stream {
	m.streamsLock.RLock()
	defer m.streamsLock.RUnlock()
	for _, s := range m.streams {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Remove a stream that has finished
func (m *Monitor) RemoveStream(id int64) error {
	m.streamsLock.Lock()
	defer m.streamsLock.Unlock()
	for _, s := range m.streams {
		if s.ID == id {
			if s.State() == StateRunning {
				return fmt.Errorf("Stream %v is still running", id)
			}
			m.streams = gen.DeleteFirst(m.streams, s)
			return nil
		}
	}
	return fmt.Errorf("Stream %v not found", id)
}

// runStream pulls frames from the source and pushes them through the pipeline, until
// the source is exhausted, the stream is stopped, or ctx is cancelled.
func (m *Monitor) runStream(ctx context.Context, s *Stream) {
	defer close(s.done)
	s.setState(StateRunning, nil)
	s.Log.Infof("Starting (%v frames at %.2f fps)", s.Info.NumFrames, s.Config.FrameRate)

	var runErr error
	nSegments := 0

	for {
		if s.isStopped() {
			s.Log.Infof("Stopped")
			break
		}
		if ctx.Err() != nil {
			s.Log.Infof("Cancelled")
			break
		}

		frame, err := s.source.Next(ctx)
		if errors.Is(err, source.ErrEndOfStream) {
			break
		} else if err != nil {
			if ctx.Err() == nil {
				runErr = err
			}
			break
		}

		if frame.Image != nil {
			if err := s.setFrameSize(frame.Image.Width, frame.Image.Height); err != nil {
				runErr = err
				break
			}
		}

		s.lock.Lock()
		result, err := s.pipeline.ProcessFrame(frame.Number, frame.Objects)
		if err == nil {
			s.recent.Add(result)
			if frame.Image != nil {
				s.lastImage = frame.Image
				s.lastImageResult = result
			}
		}
		segments := s.pipeline.Segments()
		s.lock.Unlock()
		if err != nil {
			runErr = err
			break
		}

		m.recordMetrics(s, result)
		if len(segments) > nSegments {
			segmentsTotal.WithLabelValues(s.Name).Add(float64(len(segments) - nSegments))
			for _, seg := range segments[nSegments:] {
				s.Log.Infof("Speeding from frame %v to %v", seg.Start, seg.End)
			}
			nSegments = len(segments)
		}
		m.sendToWatchers(&FrameEvent{StreamID: s.ID, Result: result})
	}

	// Terminal flush
	s.lock.Lock()
	final := s.pipeline.Finish()
	summary := s.pipeline.Summary()
	s.lock.Unlock()
	if len(final) > nSegments {
		segmentsTotal.WithLabelValues(s.Name).Add(float64(len(final) - nSegments))
	}

	if err := s.source.Close(); err != nil {
		s.Log.Warnf("Failed to close source: %v", err)
	}

	if runErr != nil {
		s.Log.Errorf("Failed: %v", runErr)
		s.setState(StateFailed, runErr)
	} else {
		s.Log.Infof("Finished. %v frames, %v speeding frames, %v segments", summary.Frames, summary.SpeedingFrames, len(final))
		s.setState(StateFinished, nil)
	}

	m.sendToWatchers(&FrameEvent{StreamID: s.ID, Finished: true, Segments: final})

	if m.OnFinished != nil {
		m.OnFinished(s)
	}
}

func (m *Monitor) recordMetrics(s *Stream, r *analysis.FrameResult) {
	framesProcessedTotal.WithLabelValues(s.Name).Inc()
	if r.Speeding {
		speedingFramesTotal.WithLabelValues(s.Name).Inc()
	}
	for c, boxes := range r.Movements {
		if len(boxes) != 0 {
			detectionsTotal.WithLabelValues(s.Name, category.Category(c).String()).Add(float64(len(boxes)))
		}
	}
	frameDuration.WithLabelValues(s.Name).Observe(r.Elapsed.Seconds())
}
