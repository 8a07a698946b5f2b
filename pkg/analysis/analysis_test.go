package analysis

import (
	"errors"
	"math"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/speedtrap/pkg/category"
	"github.com/cyclopcam/speedtrap/pkg/nn"
	"github.com/cyclopcam/speedtrap/pkg/segment"
	"github.com/cyclopcam/speedtrap/pkg/speed"
	"github.com/stretchr/testify/require"
)

func car(x, y int) nn.ObjectDetection {
	return nn.ObjectDetection{Class: nn.COCOCar, Confidence: 0.9, Box: nn.MakeRect(x, y, 20, 10)}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.FrameRate = 10
	cfg.SpeedLimit = 5
	return cfg
}

func newPipeline(t *testing.T, cfg Config) *Pipeline {
	p, err := New(logs.NewTestingLog(t), cfg, nil, 100, 100)
	require.NoError(t, err)
	return p
}

func TestSpeedingSegments(t *testing.T) {
	p := newPipeline(t, testConfig())
	frames := [][]nn.ObjectDetection{
		{car(0, 0)},  // no predecessor
		{car(0, 0)},  // stationary
		{car(10, 0)}, // 100 px/s
		{car(20, 0)},
		{car(30, 0)},
		{car(30, 0)},
		{car(40, 0)},
		nil,
	}
	expect := []bool{false, false, true, true, true, false, true, false}
	for i, raw := range frames {
		r, err := p.ProcessFrame(i, raw)
		require.NoError(t, err)
		require.Equal(t, expect[i], r.Speeding, "frame %v", i)
	}
	require.Equal(t, []segment.Segment{{Start: 2, End: 4}, {Start: 6, End: 6}}, p.Finish())
	require.Equal(t, []segment.Segment{{Start: 2, End: 4}, {Start: 6, End: 6}}, p.Finish())

	_, err := p.ProcessFrame(8, nil)
	require.ErrorIs(t, err, ErrFinished)
}

func TestTerminalFlush(t *testing.T) {
	p := newPipeline(t, testConfig())
	for i := 0; i < 3; i++ {
		_, err := p.ProcessFrame(i, []nn.ObjectDetection{car(i*10, 0)})
		require.NoError(t, err)
	}
	require.Empty(t, p.Segments())
	open, ok := p.OpenSegment()
	require.True(t, ok)
	require.Equal(t, 1, open.Start)
	require.Equal(t, []segment.Segment{{Start: 1, End: 2}}, p.Finish())
}

func TestSpeedAtLimitIsNotSpeeding(t *testing.T) {
	cfg := testConfig()
	cfg.FrameRate = 8
	cfg.SpeedLimit = 8
	p := newPipeline(t, cfg)
	_, err := p.ProcessFrame(0, []nn.ObjectDetection{car(0, 0)})
	require.NoError(t, err)
	r, err := p.ProcessFrame(1, []nn.ObjectDetection{car(1, 0)})
	require.NoError(t, err)
	v, ok := r.SpeedOf(0)
	require.True(t, ok)
	require.Equal(t, 8.0, v)
	require.False(t, r.Speeding)
}

func TestCalibratedLimit(t *testing.T) {
	cfg := testConfig()
	cfg.PixelsPerMetre = 10
	cfg.Unit = speed.KPH
	cfg.SpeedLimit = 36 // 10 m/s = 100 px/s
	p := newPipeline(t, cfg)
	require.InDelta(t, 100, p.SpeedLimit(), 1e-9)
	p.ProcessFrame(0, []nn.ObjectDetection{car(0, 0)})
	r, _ := p.ProcessFrame(1, []nn.ObjectDetection{car(9, 0)})
	require.False(t, r.Speeding)
	r, _ = p.ProcessFrame(2, []nn.ObjectDetection{car(20, 0)})
	require.True(t, r.Speeding)
}

func TestHeatmapAndCategories(t *testing.T) {
	p := newPipeline(t, testConfig())
	n := 7
	for i := 0; i < n; i++ {
		r, err := p.ProcessFrame(i, []nn.ObjectDetection{
			{Class: nn.COCODog, Confidence: 0.8, Box: nn.MakeRect(3, 4, 1, 1)},
			{Class: nn.COCOCar, Confidence: 0.3, Box: nn.MakeRect(50, 50, 10, 10)}, // below threshold
		})
		require.NoError(t, err)
		require.Len(t, r.Kept, 1)
		require.Equal(t, 0, r.Movements.Count())
	}
	require.Equal(t, uint32(n), p.Heatmap().At(3, 4))
	require.Equal(t, uint32(0), p.Heatmap().At(55, 55))
	img, err := p.HeatmapImage()
	require.NoError(t, err)
	require.Equal(t, 100, img.Width)

	r, err := p.ProcessFrame(n, []nn.ObjectDetection{car(60, 60)})
	require.NoError(t, err)
	require.Len(t, r.Movements.Get(category.Vehicle), 1)

	s := p.Summary()
	require.Equal(t, n+1, s.Frames)
	require.Equal(t, n+1, s.Detections)
	require.Equal(t, 1, s.Categories[category.Vehicle])
	require.Equal(t, 0, s.Categories[category.Human])
	// The dog was stationary for n-1 frames, and the car took over the dog's index
	require.Equal(t, int64(n), s.Speeds.Samples)
}

func TestEmptyFrameBreaksTracking(t *testing.T) {
	p := newPipeline(t, testConfig())
	p.ProcessFrame(0, []nn.ObjectDetection{car(0, 0)})
	r, _ := p.ProcessFrame(1, nil)
	require.Empty(t, r.Speeds)
	r, _ = p.ProcessFrame(2, []nn.ObjectDetection{car(50, 0)})
	require.Empty(t, r.Speeds)
	require.False(t, r.Speeding)
	require.Empty(t, p.LastSpeeds())
	require.Equal(t, 1, p.Summary().EmptyFrames)
}

func TestInvalidConfig(t *testing.T) {
	log := logs.NewTestingLog(t)
	cfg := testConfig()
	cfg.FrameRate = 0
	_, err := New(log, cfg, nil, 10, 10)
	require.True(t, errors.Is(err, speed.ErrInvalidFrameRate))

	cfg = testConfig()
	cfg.Matcher = "psychic"
	_, err = New(log, cfg, nil, 10, 10)
	require.Error(t, err)

	cfg = testConfig()
	cfg.Unit = "furlongs"
	require.Error(t, cfg.Validate())

	cfg = testConfig()
	cfg.ConfidenceThreshold = 0
	require.Error(t, cfg.Validate())

	for _, ppm := range []float64{-1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		cfg = testConfig()
		cfg.PixelsPerMetre = ppm
		require.Error(t, cfg.Validate(), "pixels per metre %v", ppm)
	}

	require.NoError(t, DefaultConfig().Validate())
}

func TestFrameOrder(t *testing.T) {
	p := newPipeline(t, testConfig())
	_, err := p.ProcessFrame(5, nil)
	require.NoError(t, err)
	_, err = p.ProcessFrame(5, nil)
	require.ErrorIs(t, err, segment.ErrFrameOutOfOrder)
	_, err = p.ProcessFrame(9, nil)
	require.NoError(t, err)
}

func TestLazyFrameSize(t *testing.T) {
	p, err := New(logs.NewTestingLog(t), testConfig(), nil, 0, 0)
	require.NoError(t, err)
	_, err = p.HeatmapImage()
	require.ErrorIs(t, err, ErrFrameSizeUnknown)
	// Empty frames don't need a heatmap
	_, err = p.ProcessFrame(0, nil)
	require.NoError(t, err)
	_, err = p.ProcessFrame(1, []nn.ObjectDetection{car(0, 0)})
	require.ErrorIs(t, err, ErrFrameSizeUnknown)

	require.NoError(t, p.SetFrameSize(40, 30))
	require.NoError(t, p.SetFrameSize(40, 30))
	require.Error(t, p.SetFrameSize(41, 30))
	_, err = p.ProcessFrame(2, []nn.ObjectDetection{car(0, 0)})
	require.NoError(t, err)
	require.Equal(t, uint32(1), p.Heatmap().At(0, 0))
}
