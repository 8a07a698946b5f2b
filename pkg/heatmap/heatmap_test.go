package heatmap

import (
	"testing"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/speedtrap/pkg/nn"
	"github.com/stretchr/testify/require"
)

func TestUnitBox(t *testing.T) {
	p := New(8, 6)
	n := 17
	for i := 0; i < n; i++ {
		p.Add(nn.MakeRect(3, 4, 1, 1))
	}
	require.Equal(t, uint32(n), p.At(3, 4))
	require.Equal(t, uint32(n), p.Max())
	total := uint32(0)
	for _, c := range p.Counts {
		total += c
	}
	require.Equal(t, uint32(n), total)
}

func TestAddClipsToPlane(t *testing.T) {
	p := New(10, 10)
	p.Add(nn.MakeRect(-5, -5, 8, 8))
	p.Add(nn.MakeRect(8, 8, 100, 100))
	p.Add(nn.MakeRect(50, 50, 10, 10))
	require.Equal(t, uint32(1), p.At(0, 0))
	require.Equal(t, uint32(1), p.At(2, 2))
	require.Equal(t, uint32(0), p.At(3, 3))
	require.Equal(t, uint32(1), p.At(9, 9))
	require.Equal(t, uint32(0), p.At(10, 10))
	require.Equal(t, uint32(0), p.At(-1, 0))
}

func TestNormalizeFlatPlane(t *testing.T) {
	p := New(4, 3)
	norm := p.Normalize()
	require.Len(t, norm, 12)
	for _, v := range norm {
		require.Equal(t, uint8(0), v)
	}
	// A uniformly covered plane is also flat
	p.Add(nn.MakeRect(0, 0, 4, 3))
	for _, v := range p.Normalize() {
		require.Equal(t, uint8(0), v)
	}
	require.Empty(t, New(0, 0).Normalize())
}

func TestNormalize(t *testing.T) {
	p := New(4, 1)
	p.Add(nn.MakeRect(1, 0, 3, 1))
	p.Add(nn.MakeRect(2, 0, 2, 1))
	p.Add(nn.MakeRect(3, 0, 1, 1))
	p.Add(nn.MakeRect(3, 0, 1, 1))
	// counts are 0,1,2,4
	require.Equal(t, []uint8{0, 64, 128, 255}, p.Normalize())
}

func TestIdempotent(t *testing.T) {
	p := New(16, 16)
	p.Add(nn.MakeRect(2, 2, 5, 5))
	p.Add(nn.MakeRect(4, 4, 8, 8))
	require.Equal(t, p.Normalize(), p.Normalize())
	a := p.Colorize()
	b := p.Colorize()
	require.Equal(t, a.Pixels, b.Pixels)
	require.Equal(t, uint32(2), p.Max())
}

func TestJet(t *testing.T) {
	// Lowest value is blue, highest is red
	require.Equal(t, uint8(0), jetTable[0][0])
	require.Greater(t, jetTable[0][2], uint8(100))
	require.Greater(t, jetTable[255][0], uint8(100))
	require.Equal(t, uint8(0), jetTable[255][2])
	// Middle is green-ish
	require.Equal(t, uint8(255), jetTable[128][1])

	p := New(2, 1)
	p.Add(nn.MakeRect(1, 0, 1, 1))
	img := p.Colorize()
	require.Equal(t, []uint8{jetTable[0][0], jetTable[0][1], jetTable[0][2]}, img.Pixels[0:3])
	require.Equal(t, []uint8{jetTable[255][0], jetTable[255][1], jetTable[255][2]}, img.Pixels[3:6])
}

func fill(img *cimg.Image, v uint8) {
	for i := range img.Pixels {
		img.Pixels[i] = v
	}
}

func TestBlend(t *testing.T) {
	frame := cimg.NewImage(4, 4, cimg.PixelFormatRGB)
	heat := cimg.NewImage(4, 4, cimg.PixelFormatRGB)
	fill(frame, 100)
	fill(heat, 200)
	out, err := Blend(frame, heat, DefaultBlendAlpha)
	require.NoError(t, err)
	require.Equal(t, 4, out.Width)
	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width*3; x++ {
			require.Equal(t, uint8(130), out.Pixels[y*out.Stride+x])
		}
	}

	_, err = Blend(frame, cimg.NewImage(2, 2, cimg.PixelFormatRGB), DefaultBlendAlpha)
	require.Error(t, err)
	_, err = Blend(frame, heat, 2)
	require.Error(t, err)
}

func TestClone(t *testing.T) {
	p := New(2, 2)
	p.Add(nn.MakeRect(0, 0, 1, 1))
	c := p.Clone()
	p.Add(nn.MakeRect(0, 0, 1, 1))
	require.Equal(t, uint32(1), c.At(0, 0))
	require.Equal(t, uint32(2), p.At(0, 0))
}
