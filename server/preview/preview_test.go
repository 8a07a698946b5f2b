package preview

import (
	"testing"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/speedtrap/pkg/analysis"
	"github.com/cyclopcam/speedtrap/pkg/detect"
	"github.com/cyclopcam/speedtrap/pkg/heatmap"
	"github.com/cyclopcam/speedtrap/pkg/nn"
	"github.com/cyclopcam/speedtrap/pkg/speed"
	"github.com/stretchr/testify/require"
)

func pixel(img *cimg.Image, x, y int) [3]uint8 {
	p := img.Pixels[y*img.Stride+x*3:]
	return [3]uint8{p[0], p[1], p[2]}
}

func testResult() *analysis.FrameResult {
	return &analysis.FrameResult{
		Frame: 1,
		Detections: []detect.Detection{
			{Box: nn.Rect{X: 10, Y: 20, Width: 30, Height: 30}, Label: "car", Confidence: 0.9},
			{Box: nn.Rect{X: 60, Y: 20, Width: 30, Height: 30}, Label: "person", Confidence: 0.9},
		},
		Kept:   []int{0, 1},
		Speeds: speed.Record{0: 20, 1: 2},
	}
}

func TestLabel(t *testing.T) {
	o := Options{}
	require.Equal(t, "car", o.Label("car", 0, false))
	require.Equal(t, "car 12.0 px/s", o.Label("car", 12, true))

	o = Options{Calibration: speed.Calibration{PixelsPerMetre: 10}, Unit: speed.KPH}
	require.Equal(t, "car 36.0 kph", o.Label("car", 100, true))
}

func TestRGBAConversion(t *testing.T) {
	img := cimg.NewImage(4, 3, cimg.PixelFormatRGB)
	for i := range img.Pixels {
		img.Pixels[i] = uint8(i)
	}
	rgba, err := ToRGBA(img)
	require.NoError(t, err)
	require.Equal(t, uint8(255), rgba.Pix[3])
	back := FromRGBA(rgba)
	require.Equal(t, img.Width, back.Width)
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			require.Equal(t, pixel(img, x, y), pixel(back, x, y))
		}
	}
}

func TestAnnotate(t *testing.T) {
	img := cimg.NewImage(100, 100, cimg.PixelFormatRGB)
	out, err := Annotate(img, testResult(), Options{SpeedLimit: 5})
	require.NoError(t, err)

	// Left edge of each box
	require.Equal(t, [3]uint8{255, 0, 0}, pixel(out, 10, 35))
	require.Equal(t, [3]uint8{0, 255, 0}, pixel(out, 60, 35))
	// Inside the boxes is untouched
	require.Equal(t, [3]uint8{0, 0, 0}, pixel(out, 25, 35))
	// The source image is not modified
	require.Equal(t, [3]uint8{0, 0, 0}, pixel(img, 10, 35))
}

func TestRenderWithHeatmap(t *testing.T) {
	img := cimg.NewImage(100, 100, cimg.PixelFormatRGB)
	r := testResult()
	heat := heatmap.New(100, 100)
	heat.Add(nn.Rect{X: 0, Y: 0, Width: 5, Height: 5})

	out, err := Render(img, r, heat, Options{SpeedLimit: 5})
	require.NoError(t, err)
	// Heat in the corner tints the black frame
	plain, err := Annotate(img, r, Options{SpeedLimit: 5})
	require.NoError(t, err)
	require.NotEqual(t, pixel(plain, 2, 2), pixel(out, 2, 2))

	_, err = Render(img, r, heatmap.New(50, 50), Options{SpeedLimit: 5})
	require.Error(t, err)
}
