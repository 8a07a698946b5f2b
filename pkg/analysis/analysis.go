// Package analysis runs the per-frame speed analytics for a single stream.
// Frames flow through the detection adapter, tracker, speed estimator,
// categorizer, segment extractor and heatmap, strictly in frame order.
package analysis

import (
	"errors"
	"fmt"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/speedtrap/pkg/category"
	"github.com/cyclopcam/speedtrap/pkg/detect"
	"github.com/cyclopcam/speedtrap/pkg/heatmap"
	"github.com/cyclopcam/speedtrap/pkg/nn"
	"github.com/cyclopcam/speedtrap/pkg/perfstats"
	"github.com/cyclopcam/speedtrap/pkg/segment"
	"github.com/cyclopcam/speedtrap/pkg/speed"
	"github.com/cyclopcam/speedtrap/pkg/track"
)

var ErrFinished = errors.New("pipeline is finished")
var ErrFrameSizeUnknown = errors.New("frame size is unknown, so the heatmap cannot be allocated")

// FrameResult is everything the pipeline derived from one frame
type FrameResult struct {
	Frame      int                `json:"frame"`
	Detections []detect.Detection `json:"detections"`
	Kept       []int              `json:"kept"`
	Speeds     speed.Record       `json:"speeds"` // px/s, keyed by Detection Index
	Speeding   bool               `json:"speeding"`
	Movements  category.Movements `json:"movements"`
	MaxSpeed   float64            `json:"maxSpeed"` // px/s
	Elapsed    time.Duration      `json:"-"`
}

// SpeedOf returns the speed of the detection at index i, if it has one
func (r *FrameResult) SpeedOf(i int) (float64, bool) {
	v, ok := r.Speeds[i]
	return v, ok
}

// Summary of everything a pipeline has seen so far
type Summary struct {
	Frames           int                       `json:"frames"`
	EmptyFrames      int                       `json:"emptyFrames"`
	SpeedingFrames   int                       `json:"speedingFrames"`
	Detections       int                       `json:"detections"` // Kept detections, summed over all frames
	Categories       map[category.Category]int `json:"categories"` // Categorized boxes, summed over all frames
	Speeds           perfstats.Accumulator     `json:"speeds"`     // Every computed speed, px/s
	MaxSpeedFrame    int                       `json:"maxSpeedFrame"`
	Segments         int                       `json:"segments"`
	AverageFrameTime time.Duration             `json:"averageFrameTime"`
}

// Pipeline owns every accumulator for one stream.
// It is not safe for concurrent use.
type Pipeline struct {
	Log    logs.Log
	Config Config

	adapter     *detect.Adapter
	tracker     *track.Tracker
	estimator   *speed.Estimator
	categorizer *category.Categorizer
	extractor   *segment.Extractor
	heat        *heatmap.Plane
	limit       float64 // px/s

	haveFrame     bool
	lastFrame     int
	lastSpeeds    speed.Record
	lastMovements category.Movements
	summary       Summary
	frameTime     perfstats.TimeAccumulator
}

// Create a new pipeline. The config is validated before anything else happens.
// If width or height is zero, then SetFrameSize must be called before the first frame with detections.
func New(log logs.Log, cfg Config, classes []string, width, height int) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("Invalid analysis config: %w", err)
	}
	matcher, err := track.NewMatcher(cfg.Matcher, cfg.MatcherMaxDistance, cfg.MatcherMinIoU)
	if err != nil {
		return nil, err
	}
	estimator, err := speed.NewEstimator(cfg.FrameRate)
	if err != nil {
		return nil, err
	}
	if classes == nil {
		classes = nn.COCOClasses
	}
	p := &Pipeline{
		Log:         log,
		Config:      cfg,
		adapter:     detect.NewAdapter(cfg.DetectionParams(), classes),
		tracker:     track.NewTracker(matcher),
		estimator:   estimator,
		categorizer: category.New(nil),
		extractor:   segment.NewExtractor(),
		limit:       cfg.SpeedLimitPixels(),
		lastSpeeds:  speed.Record{},
		summary: Summary{
			Categories: map[category.Category]int{},
		},
	}
	if width > 0 && height > 0 {
		p.heat = heatmap.New(width, height)
	}
	log.Infof("Analysis pipeline: %.1f fps, speed limit %.2f %v (%.2f px/s), matcher '%v'", cfg.FrameRate, cfg.SpeedLimit, cfg.Calibration().UnitLabel(cfg.Unit), p.limit, matcher.Name())
	return p, nil
}

// SetFrameSize allocates the heatmap, if it has not been allocated yet
func (p *Pipeline) SetFrameSize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("Invalid frame size %v x %v", width, height)
	}
	if p.heat != nil {
		if p.heat.Width != width || p.heat.Height != height {
			return fmt.Errorf("Frame size changed from %v x %v to %v x %v", p.heat.Width, p.heat.Height, width, height)
		}
		return nil
	}
	p.heat = heatmap.New(width, height)
	return nil
}

// SpeedLimit returns the speed limit in pixels per second
func (p *Pipeline) SpeedLimit() float64 {
	return p.limit
}

// ProcessFrame runs the raw detector output of one frame through the analysis.
// Frame numbers must be strictly increasing, but may have gaps.
func (p *Pipeline) ProcessFrame(frame int, raw []nn.ObjectDetection) (*FrameResult, error) {
	if p.extractor.IsFinished() {
		return nil, ErrFinished
	}
	if p.haveFrame && frame <= p.lastFrame {
		return nil, fmt.Errorf("%w: frame %v after frame %v", segment.ErrFrameOutOfOrder, frame, p.lastFrame)
	}
	start := time.Now()

	f := p.adapter.Adapt(raw)
	if !f.IsEmpty() && p.heat == nil {
		return nil, ErrFrameSizeUnknown
	}

	// The tracker must see empty frames too, so that nothing continues across them
	tracked := p.tracker.Update(f)
	speeds := p.estimator.Estimate(tracked.Continued)
	movements := p.categorizer.Categorize(f)

	result := &FrameResult{
		Frame:      frame,
		Detections: f.Detections,
		Kept:       f.Kept,
		Speeds:     speeds,
		Movements:  movements,
		MaxSpeed:   speeds.Max(),
	}
	for _, v := range speeds {
		if speed.Exceeds(v, p.limit) {
			result.Speeding = true
		}
		p.summary.Speeds.AddSample(v)
	}

	if err := p.extractor.Update(frame, result.Speeding); err != nil {
		return nil, err
	}

	for _, i := range f.Kept {
		p.heat.Add(f.Detections[i].Box)
	}

	p.haveFrame = true
	p.lastFrame = frame
	p.lastSpeeds = speeds
	p.lastMovements = movements

	p.summary.Frames++
	if f.IsEmpty() {
		p.summary.EmptyFrames++
	}
	if result.Speeding {
		p.summary.SpeedingFrames++
	}
	if len(speeds) != 0 && result.MaxSpeed >= p.summary.Speeds.Max {
		p.summary.MaxSpeedFrame = frame
	}
	p.summary.Detections += len(f.Kept)
	for _, c := range category.All {
		p.summary.Categories[c] += len(movements.Get(c))
	}

	result.Elapsed = time.Since(start)
	p.frameTime.AddSample(result.Elapsed)
	return result, nil
}

// Finish closes any open segment at the last delivered frame, and returns all segments.
// No more frames may be processed after calling Finish. Calling Finish again is harmless.
func (p *Pipeline) Finish() []segment.Segment {
	wasFinished := p.extractor.IsFinished()
	segments := p.extractor.Finish()
	if !wasFinished {
		p.Log.Infof("Analysis finished after %v frames, %v speeding segments", p.summary.Frames, len(segments))
	}
	return segments
}

func (p *Pipeline) IsFinished() bool {
	return p.extractor.IsFinished()
}

// Segments returns the segments that have been closed so far
func (p *Pipeline) Segments() []segment.Segment {
	return p.extractor.Segments()
}

// OpenSegment returns the segment that is currently in progress, if any
func (p *Pipeline) OpenSegment() (segment.Segment, bool) {
	return p.extractor.Open()
}

// Heatmap returns the live heatmap plane, which must not be modified.
// Returns nil if the frame size is not yet known.
func (p *Pipeline) Heatmap() *heatmap.Plane {
	return p.heat
}

// HeatmapImage renders the heatmap accumulated so far
func (p *Pipeline) HeatmapImage() (*cimg.Image, error) {
	if p.heat == nil {
		return nil, ErrFrameSizeUnknown
	}
	return p.heat.Colorize(), nil
}

// LastSpeeds returns the speed record of the most recent frame
func (p *Pipeline) LastSpeeds() speed.Record {
	return p.lastSpeeds
}

// LastMovements returns the categorized movements of the most recent frame
func (p *Pipeline) LastMovements() category.Movements {
	return p.lastMovements
}

func (p *Pipeline) Summary() Summary {
	s := p.summary
	s.Categories = make(map[category.Category]int, len(p.summary.Categories))
	for k, v := range p.summary.Categories {
		s.Categories[k] = v
	}
	s.Segments = len(p.extractor.Segments())
	s.AverageFrameTime = p.frameTime.Average()
	return s
}
