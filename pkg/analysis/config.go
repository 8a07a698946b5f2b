package analysis

import (
	"fmt"
	"math"

	"github.com/cyclopcam/speedtrap/pkg/nn"
	"github.com/cyclopcam/speedtrap/pkg/speed"
	"github.com/cyclopcam/speedtrap/pkg/track"
)

// Default speed limit, in pixels per second
const DefaultSpeedLimit = 5.0

const DefaultFrameRate = 30.0

// Config is everything that a pipeline needs in order to analyze a single stream
type Config struct {
	ConfidenceThreshold float32 `json:"confidenceThreshold" env:"CONFIDENCE_THRESHOLD"` // Candidates at or below this confidence are discarded
	NmsOverlapThreshold float32 `json:"nmsOverlapThreshold" env:"NMS_OVERLAP_THRESHOLD"` // Candidates overlapping a stronger one by more than this IoU are suppressed
	SpeedLimit          float64 `json:"speedLimit" env:"SPEED_LIMIT"`                     // Expressed in Unit. A speed strictly above the limit is speeding.
	FrameRate           float64 `json:"frameRate" env:"FRAME_RATE"`                       // Frames per second of the source
	Matcher             string  `json:"matcher" env:"MATCHER"`                            // index, centroid, iou, hungarian
	MatcherMaxDistance  float32 `json:"matcherMaxDistance" env:"MATCHER_MAX_DISTANCE"`    // Pixels. Zero means unlimited.
	MatcherMinIoU       float32 `json:"matcherMinIoU" env:"MATCHER_MIN_IOU"`
	PixelsPerMetre      float64 `json:"pixelsPerMetre" env:"PIXELS_PER_METRE"` // Zero means uncalibrated, in which case all speeds are px/s
	Unit                string  `json:"unit" env:"UNIT"`                       // Unit of SpeedLimit and reported speeds, if calibrated
}

func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: nn.DefaultProbabilityThreshold,
		NmsOverlapThreshold: nn.DefaultNmsIouThreshold,
		SpeedLimit:          DefaultSpeedLimit,
		FrameRate:           DefaultFrameRate,
		Matcher:             track.MatcherIndex,
		MatcherMinIoU:       0.3,
		Unit:                speed.PixelsPerSecond,
	}
}

func (c *Config) DetectionParams() nn.DetectionParams {
	return nn.DetectionParams{
		ProbabilityThreshold: c.ConfidenceThreshold,
		NmsIouThreshold:      c.NmsOverlapThreshold,
	}
}

func (c *Config) Calibration() speed.Calibration {
	return speed.Calibration{PixelsPerMetre: c.PixelsPerMetre}
}

// SpeedLimitPixels returns the speed limit in pixels per second
func (c *Config) SpeedLimitPixels() float64 {
	return c.Calibration().FromUnit(c.SpeedLimit, c.Unit)
}

func (c *Config) Validate() error {
	if c.ConfidenceThreshold <= 0 || c.ConfidenceThreshold >= 1 {
		return fmt.Errorf("confidence threshold %v must be between 0 and 1", c.ConfidenceThreshold)
	}
	if c.NmsOverlapThreshold <= 0 || c.NmsOverlapThreshold > 1 {
		return fmt.Errorf("NMS overlap threshold %v must be between 0 and 1", c.NmsOverlapThreshold)
	}
	if math.IsNaN(c.SpeedLimit) || math.IsInf(c.SpeedLimit, 0) || c.SpeedLimit < 0 {
		return fmt.Errorf("speed limit %v must be a finite number, zero or greater", c.SpeedLimit)
	}
	if err := speed.ValidateFrameRate(c.FrameRate); err != nil {
		return err
	}
	if _, err := track.NewMatcher(c.Matcher, c.MatcherMaxDistance, c.MatcherMinIoU); err != nil {
		return err
	}
	if c.MatcherMaxDistance < 0 {
		return fmt.Errorf("matcher max distance %v may not be negative", c.MatcherMaxDistance)
	}
	if c.MatcherMinIoU < 0 || c.MatcherMinIoU > 1 {
		return fmt.Errorf("matcher min IoU %v must be between 0 and 1", c.MatcherMinIoU)
	}
	if math.IsNaN(c.PixelsPerMetre) || math.IsInf(c.PixelsPerMetre, 0) || c.PixelsPerMetre < 0 {
		return fmt.Errorf("pixels per metre %v must be a finite, non-negative number", c.PixelsPerMetre)
	}
	if err := speed.ValidateUnit(c.Unit); err != nil {
		return err
	}
	return nil
}
