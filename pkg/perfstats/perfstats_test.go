package perfstats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAccumulator(t *testing.T) {
	a := Accumulator{}
	require.Equal(t, 0.0, a.Average())
	a.AddSample(-2)
	require.Equal(t, -2.0, a.Max)
	a.AddSample(6)
	a.AddSample(2)
	require.Equal(t, int64(3), a.Samples)
	require.Equal(t, 2.0, a.Average())
	require.Equal(t, 6.0, a.Max)
	a.Reset()
	require.Equal(t, Accumulator{}, a)
}

func TestTimeAccumulator(t *testing.T) {
	a := TimeAccumulator{}
	a.AddSample(10 * time.Millisecond)
	a.AddSample(30 * time.Millisecond)
	require.Equal(t, 20*time.Millisecond, a.Average())
	require.Equal(t, 30*time.Millisecond, a.Max)
	a.Measure(func() {})
	require.Equal(t, int64(3), a.Samples)
}
