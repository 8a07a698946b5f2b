// Package heatmap accumulates detection boxes over a whole clip, and renders
// the result as a false colour image.
package heatmap

import (
	"fmt"
	"math"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/speedtrap/pkg/nn"
)

// Default weight of the heatmap when blended over a video frame (the frame gets 1 - alpha)
const DefaultBlendAlpha = 0.3

// Plane is a grid of counters, one per pixel of the source frame.
// Counters only grow. A plane is not safe for concurrent use.
type Plane struct {
	Width  int      `json:"width"`
	Height int      `json:"height"`
	Counts []uint32 `json:"-"`
}

func New(width, height int) *Plane {
	return &Plane{
		Width:  width,
		Height: height,
		Counts: make([]uint32, width*height),
	}
}

// Add increments every cell covered by r. The box is clipped to the plane.
func (p *Plane) Add(r nn.Rect) {
	r = r.Intersection(nn.MakeRect(0, 0, p.Width, p.Height))
	if r.IsEmpty() {
		return
	}
	for y := r.Y; y < r.Y2(); y++ {
		row := p.Counts[y*p.Width : (y+1)*p.Width]
		for x := r.X; x < r.X2(); x++ {
			row[x]++
		}
	}
}

// At returns the counter at (x, y), or zero if the point is outside the plane
func (p *Plane) At(x, y int) uint32 {
	if x < 0 || y < 0 || x >= p.Width || y >= p.Height {
		return 0
	}
	return p.Counts[y*p.Width+x]
}

func (p *Plane) Max() uint32 {
	m := uint32(0)
	for _, c := range p.Counts {
		m = max(m, c)
	}
	return m
}

func (p *Plane) Min() uint32 {
	if len(p.Counts) == 0 {
		return 0
	}
	m := uint32(math.MaxUint32)
	for _, c := range p.Counts {
		m = min(m, c)
	}
	return m
}

// Clone returns a deep copy of the plane
func (p *Plane) Clone() *Plane {
	c := *p
	c.Counts = append([]uint32(nil), p.Counts...)
	return &c
}

// Normalize rescales the counters linearly so that the minimum maps to 0 and the maximum to 255.
// A flat plane (including an empty one) maps to all zeros.
// The plane itself is not modified.
func (p *Plane) Normalize() []uint8 {
	out := make([]uint8, len(p.Counts))
	lo, hi := p.Min(), p.Max()
	if hi == lo {
		return out
	}
	scale := 255 / float64(hi-lo)
	for i, c := range p.Counts {
		out[i] = uint8(math.Round(float64(c-lo) * scale))
	}
	return out
}

// Colorize renders the normalized plane through the jet colour ramp, as an RGB image.
func (p *Plane) Colorize() *cimg.Image {
	norm := p.Normalize()
	img := cimg.NewImage(p.Width, p.Height, cimg.PixelFormatRGB)
	for y := 0; y < p.Height; y++ {
		src := norm[y*p.Width : (y+1)*p.Width]
		dst := img.Pixels[y*img.Stride : y*img.Stride+p.Width*3]
		for x, v := range src {
			c := jetTable[v]
			dst[x*3] = c[0]
			dst[x*3+1] = c[1]
			dst[x*3+2] = c[2]
		}
	}
	return img
}

// Blend mixes heat over frame, with weights (1 - alpha) for the frame and alpha for the heatmap.
// Both images must have the same dimensions, and at least 3 channels (RGB first).
// The result is a new RGB image.
func Blend(frame, heat *cimg.Image, alpha float32) (*cimg.Image, error) {
	if frame.Width != heat.Width || frame.Height != heat.Height {
		return nil, fmt.Errorf("cannot blend a %vx%v heatmap over a %vx%v frame", heat.Width, heat.Height, frame.Width, frame.Height)
	}
	if frame.NChan() < 3 || heat.NChan() < 3 {
		return nil, fmt.Errorf("blend requires RGB images")
	}
	if alpha < 0 || alpha > 1 {
		return nil, fmt.Errorf("blend alpha %v is outside [0, 1]", alpha)
	}
	out := cimg.NewImage(frame.Width, frame.Height, cimg.PixelFormatRGB)
	fn := frame.NChan()
	hn := heat.NChan()
	wf := 1 - alpha
	for y := 0; y < frame.Height; y++ {
		f := frame.Pixels[y*frame.Stride:]
		h := heat.Pixels[y*heat.Stride:]
		o := out.Pixels[y*out.Stride:]
		for x := 0; x < frame.Width; x++ {
			for c := 0; c < 3; c++ {
				v := wf*float32(f[x*fn+c]) + alpha*float32(h[x*hn+c])
				o[x*3+c] = uint8(min(255, v+0.5))
			}
		}
	}
	return out, nil
}

// EncodeJPEG compresses an image to JPEG with 4:2:0 chroma sampling
func EncodeJPEG(img *cimg.Image, quality int) ([]byte, error) {
	return cimg.Compress(img, cimg.MakeCompressParams(cimg.Sampling420, quality, 0))
}
