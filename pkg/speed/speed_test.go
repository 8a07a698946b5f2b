package speed

import (
	"errors"
	"math"
	"testing"

	"github.com/cyclopcam/speedtrap/pkg/nn"
	"github.com/cyclopcam/speedtrap/pkg/track"
	"github.com/stretchr/testify/require"
)

func TestInvalidFrameRate(t *testing.T) {
	for _, fps := range []float64{0, -1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := NewEstimator(fps)
		require.Error(t, err)
		require.True(t, errors.Is(err, ErrInvalidFrameRate))
	}
	e, err := NewEstimator(25)
	require.NoError(t, err)
	require.InDelta(t, 0.04, e.TimeDelta(), 1e-12)
}

func TestConstantDisplacement(t *testing.T) {
	e, err := NewEstimator(30)
	require.NoError(t, err)

	// An object moving 3 pixels right and 4 pixels down per frame, for 6 frames
	k := 6
	var prev nn.PointF
	speeds := []float64{}
	for i := 0; i < k; i++ {
		cur := nn.PointF{X: 10 + 3*float32(i), Y: 20 + 4*float32(i)}
		if i > 0 {
			r := e.Estimate([]track.Continuation{{Index: 0, PreviousIndex: 0, PreviousCentroid: prev, Centroid: cur}})
			speeds = append(speeds, r[0])
		}
		prev = cur
	}
	require.Len(t, speeds, k-1)
	for _, s := range speeds {
		require.InDelta(t, 150, s, 1e-3)
	}
}

func TestZeroDisplacement(t *testing.T) {
	e, _ := NewEstimator(10)
	p := nn.PointF{X: 7, Y: 7}
	require.Equal(t, 0.0, e.Speed(p, p))
	require.False(t, Exceeds(0, 0))
}

func TestEstimateOnlyContinued(t *testing.T) {
	e, _ := NewEstimator(10)
	r := e.Estimate([]track.Continuation{
		{Index: 2, PreviousIndex: 2, PreviousCentroid: nn.PointF{X: 0, Y: 0}, Centroid: nn.PointF{X: 1, Y: 0}},
		{Index: 5, PreviousIndex: 5, PreviousCentroid: nn.PointF{X: 0, Y: 0}, Centroid: nn.PointF{X: 0, Y: 3}},
	})
	require.Len(t, r, 2)
	require.InDelta(t, 10, r[2], 1e-9)
	require.InDelta(t, 30, r[5], 1e-9)
	require.InDelta(t, 30, r.Max(), 1e-9)
	require.Equal(t, 0.0, Record{}.Max())
	require.Empty(t, e.Estimate(nil))
}

func TestExceedsIsStrict(t *testing.T) {
	require.False(t, Exceeds(100, 100))
	require.True(t, Exceeds(100.0001, 100))
	require.False(t, Exceeds(99, 100))
}

func TestUnits(t *testing.T) {
	require.NoError(t, ValidateUnit(""))
	require.NoError(t, ValidateUnit(KMPH))
	require.Error(t, ValidateUnit("knots"))

	none := Calibration{}
	require.Equal(t, 42.0, none.ToUnit(42, KPH))
	require.Equal(t, PixelsPerSecond, none.UnitLabel(KPH))

	c := Calibration{PixelsPerMetre: 20}
	require.InDelta(t, 5, c.ToUnit(100, MPS), 1e-9)
	require.InDelta(t, 18, c.ToUnit(100, KPH), 1e-9)
	require.InDelta(t, 18, c.ToUnit(100, KMPH), 1e-9)
	require.InDelta(t, 11.184681460272, c.ToUnit(100, MPH), 1e-9)
	require.Equal(t, 100.0, c.ToUnit(100, PixelsPerSecond))
	require.Equal(t, KPH, c.UnitLabel(KPH))
	for _, u := range validUnits {
		require.InDelta(t, 123.0, c.FromUnit(c.ToUnit(123, u), u), 1e-9)
	}
}
