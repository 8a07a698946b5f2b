// Package preview draws annotated frames for the live view.
package preview

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/speedtrap/pkg/analysis"
	"github.com/cyclopcam/speedtrap/pkg/heatmap"
	"github.com/cyclopcam/speedtrap/pkg/speed"
	"github.com/fogleman/gg"
)

var (
	SpeedingColor = color.RGBA{255, 0, 0, 255}
	NormalColor   = color.RGBA{0, 255, 0, 255}
)

// Options control how a frame is annotated
type Options struct {
	SpeedLimit  float64 // px/s
	Calibration speed.Calibration
	Unit        string
	LineWidth   float64
	HeatAlpha   float32 // Weight of the heatmap when blending. Zero means heatmap.DefaultBlendAlpha.
}

// Label returns the text drawn above a box, which includes the speed only if it was computed
func (o *Options) Label(label string, pxPerSecond float64, haveSpeed bool) string {
	if !haveSpeed {
		return label
	}
	return fmt.Sprintf("%v %.1f %v", label, o.Calibration.ToUnit(pxPerSecond, o.Unit), o.Calibration.UnitLabel(o.Unit))
}

// Annotate draws the kept detections of r onto a copy of img.
// A box is red when its speed exceeds the limit, and green otherwise.
func Annotate(img *cimg.Image, r *analysis.FrameResult, o Options) (*cimg.Image, error) {
	rgba, err := ToRGBA(img)
	if err != nil {
		return nil, err
	}
	lineWidth := o.LineWidth
	if lineWidth <= 0 {
		lineWidth = 2
	}

	dc := gg.NewContextForRGBA(rgba)
	dc.SetLineWidth(lineWidth)
	for _, i := range r.Kept {
		det := r.Detections[i]
		v, haveSpeed := r.SpeedOf(i)
		if haveSpeed && speed.Exceeds(v, o.SpeedLimit) {
			dc.SetColor(SpeedingColor)
		} else {
			dc.SetColor(NormalColor)
		}
		b := det.Box
		dc.DrawRectangle(float64(b.X), float64(b.Y), float64(b.Width), float64(b.Height))
		dc.Stroke()

		text := o.Label(det.Label, v, haveSpeed)
		ty := float64(b.Y) - 4
		if ty < 12 {
			ty = float64(b.Y2()) + 12
		}
		dc.DrawString(text, float64(b.X), ty)
	}
	return FromRGBA(rgba), nil
}

// Render annotates img, and then blends the heatmap over it, if heat is not nil
func Render(img *cimg.Image, r *analysis.FrameResult, heat *heatmap.Plane, o Options) (*cimg.Image, error) {
	out, err := Annotate(img, r, o)
	if err != nil {
		return nil, err
	}
	if heat == nil {
		return out, nil
	}
	alpha := o.HeatAlpha
	if alpha == 0 {
		alpha = heatmap.DefaultBlendAlpha
	}
	return heatmap.Blend(out, heat.Colorize(), alpha)
}

// ToRGBA copies an RGB or RGBA cimg image into a new image.RGBA
func ToRGBA(img *cimg.Image) (*image.RGBA, error) {
	nchan := img.NChan()
	if nchan != 3 && nchan != 4 {
		return nil, errors.New("preview requires an RGB or RGBA image")
	}
	out := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	for y := 0; y < img.Height; y++ {
		src := img.Pixels[y*img.Stride:]
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < img.Width; x++ {
			dst[x*4] = src[x*nchan]
			dst[x*4+1] = src[x*nchan+1]
			dst[x*4+2] = src[x*nchan+2]
			dst[x*4+3] = 255
		}
	}
	return out, nil
}

// FromRGBA copies an image.RGBA into a new RGB cimg image, discarding alpha
func FromRGBA(src *image.RGBA) *cimg.Image {
	w := src.Rect.Dx()
	h := src.Rect.Dy()
	out := cimg.NewImage(w, h, cimg.PixelFormatRGB)
	for y := 0; y < h; y++ {
		s := src.Pix[src.PixOffset(src.Rect.Min.X, src.Rect.Min.Y+y):]
		d := out.Pixels[y*out.Stride:]
		for x := 0; x < w; x++ {
			d[x*3] = s[x*4]
			d[x*3+1] = s[x*4+1]
			d[x*3+2] = s[x*4+2]
		}
	}
	return out
}
