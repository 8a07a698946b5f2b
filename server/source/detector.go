package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/speedtrap/pkg/nn"
)

// DetectorSource runs an object detector over a directory of frame images.
// Frames are ordered by file name, and numbered from zero.
// The detector is owned by the caller, and is not closed by the source.
type DetectorSource struct {
	detector  nn.ObjectDetector
	params    nn.DetectionParams
	files     []string
	next      int
	frameRate float64
	width     int
	height    int
}

// Open a directory of JPEG or PNG frames.
// The thresholds in params are passed to the detector, which may use them to discard weak candidates early.
func NewDetectorSource(detector nn.ObjectDetector, params nn.DetectionParams, dir string, frameRate float64) (*DetectorSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := []string{}
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.IsDir() && (ext == ".jpg" || ext == ".jpeg" || ext == ".png") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("No frame images found in %v", dir)
	}
	sort.Strings(files)

	first, err := cimg.ReadFile(files[0])
	if err != nil {
		return nil, fmt.Errorf("Failed to read first frame %v: %w", files[0], err)
	}

	return &DetectorSource{
		detector:  detector,
		params:    params.WithDefaults(),
		files:     files,
		frameRate: frameRate,
		width:     first.Width,
		height:    first.Height,
	}, nil
}

func (s *DetectorSource) Info() Info {
	return Info{
		FrameRate: s.frameRate,
		NumFrames: len(s.files),
		Width:     s.width,
		Height:    s.height,
		Classes:   s.detector.Config().Classes,
	}
}

func (s *DetectorSource) Next(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.files) {
		return nil, ErrEndOfStream
	}
	fn := s.files[s.next]
	img, err := cimg.ReadFile(fn)
	if err != nil {
		return nil, fmt.Errorf("Failed to read frame %v: %w", fn, err)
	}
	if img.Width != s.width || img.Height != s.height {
		return nil, fmt.Errorf("Frame %v is %v x %v, but the first frame was %v x %v", fn, img.Width, img.Height, s.width, s.height)
	}
	img = packRGB(img)
	objects, err := nn.TiledInference(s.detector, nn.WholeImage(img.NChan(), img.Pixels, img.Width, img.Height), &s.params)
	if err != nil {
		return nil, fmt.Errorf("Detector failed on frame %v: %w", fn, err)
	}
	f := &Frame{
		Number:  s.next,
		Objects: objects,
		Image:   img,
	}
	s.next++
	return f, nil
}

func (s *DetectorSource) Close() error {
	return nil
}

// packRGB returns img if it is already tightly packed RGB, otherwise an RGB copy of it
func packRGB(img *cimg.Image) *cimg.Image {
	nchan := img.NChan()
	if nchan == 3 && img.Stride == img.Width*3 {
		return img
	}
	rgb := cimg.NewImage(img.Width, img.Height, cimg.PixelFormatRGB)
	for y := 0; y < img.Height; y++ {
		src := img.Pixels[y*img.Stride:]
		dst := rgb.Pixels[y*rgb.Stride:]
		for x := 0; x < img.Width; x++ {
			if nchan < 3 {
				v := src[x*nchan]
				dst[x*3], dst[x*3+1], dst[x*3+2] = v, v, v
			} else {
				copy(dst[x*3:x*3+3], src[x*nchan:x*nchan+3])
			}
		}
	}
	return rgb
}
