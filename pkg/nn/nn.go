package nn

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Package nn is the interface layer between the speed analytics and an object
// detection neural network. The network itself lives outside of this module.

const DefaultProbabilityThreshold = 0.5
const DefaultNmsIouThreshold = 0.4

// NN object detection parameters
type DetectionParams struct {
	ProbabilityThreshold float32 `json:"probabilityThreshold"` // Value between 0 and 1. Lower values will find more objects. Zero value will use the default.
	NmsIouThreshold      float32 `json:"nmsIouThreshold"`      // Value between 0 and 1. Lower values will merge more objects together into one. Zero value will use the default.
	Unclipped            bool    `json:"-"`                    // If true, don't clip boxes to the neural network boundaries
}

// Create a default DetectionParams object
func NewDetectionParams() *DetectionParams {
	return &DetectionParams{
		ProbabilityThreshold: DefaultProbabilityThreshold,
		NmsIouThreshold:      DefaultNmsIouThreshold,
		Unclipped:            false,
	}
}

// Returns a copy of the params, with zero values replaced by defaults
func (p DetectionParams) WithDefaults() DetectionParams {
	if p.ProbabilityThreshold == 0 {
		p.ProbabilityThreshold = DefaultProbabilityThreshold
	}
	if p.NmsIouThreshold == 0 {
		p.NmsIouThreshold = DefaultNmsIouThreshold
	}
	return p
}

func (p DetectionParams) Validate() error {
	if p.ProbabilityThreshold < 0 || p.ProbabilityThreshold > 1 {
		return fmt.Errorf("probability threshold %v is outside of [0,1]", p.ProbabilityThreshold)
	}
	if p.NmsIouThreshold < 0 || p.NmsIouThreshold > 1 {
		return fmt.Errorf("NMS IoU threshold %v is outside of [0,1]", p.NmsIouThreshold)
	}
	return nil
}

// ImageCrop is a crop of an image.
// To create an ImageCrop, start with WholeImage(), and then use Crop() to get a sub-crop.
type ImageCrop struct {
	NChan       int    // Number of channels (eg 3 for RGB)
	Pixels      []byte // The whole image
	ImageWidth  int    // The width of the original image, held in Pixels
	ImageHeight int    // The height of the original image, held in Pixels
	CropX       int    // Origin of crop X
	CropY       int    // Origin of crop Y
	CropWidth   int    // The width of this crop
	CropHeight  int    // The height of this crop
}

func (c ImageCrop) Stride() int {
	return c.ImageWidth * c.NChan
}

// Return a crop of the crop (new crop is relative to existing).
// If any parameter is out of bounds, we panic
func (c ImageCrop) Crop(x1, y1, x2, y2 int) ImageCrop {
	nc := ImageCrop{
		NChan:       c.NChan,
		Pixels:      c.Pixels,
		ImageWidth:  c.ImageWidth,
		ImageHeight: c.ImageHeight,
		CropX:       c.CropX + x1,
		CropY:       c.CropY + y1,
		CropWidth:   x2 - x1,
		CropHeight:  y2 - y1,
	}
	if nc.CropX < 0 || nc.CropY < 0 || nc.CropWidth < 0 || nc.CropHeight < 0 || nc.CropX+nc.CropWidth > c.ImageWidth || nc.CropY+nc.CropHeight > c.ImageHeight {
		panic("Crop out of bounds")
	}
	return nc
}

// Return a 'crop' of the entire image
func WholeImage(nchan int, pixels []byte, width, height int) ImageCrop {
	return ImageCrop{
		NChan:       nchan,
		Pixels:      pixels,
		ImageWidth:  width,
		ImageHeight: height,
		CropX:       0,
		CropY:       0,
		CropWidth:   width,
		CropHeight:  height,
	}
}

// ObjectDetector is given an image, and returns zero or more detected objects.
// A detector is expensive to create (it loads weights and the class table), so
// the caller creates one up front and hands it to whoever needs it.
type ObjectDetector interface {
	// Close closes the detector (you MUST call this when finished)
	Close()

	// DetectObjects returns a list of candidate objects detected in the image.
	// Boxes are in pixel coordinates of the crop.
	// The detector does not need to perform duplicate suppression.
	DetectObjects(img ImageCrop, params *DetectionParams) ([]ObjectDetection, error)

	// Model Config.
	// Callers assume that ModelConfig will remain constant, so don't change it
	// once the detector has been created.
	Config() *ModelConfig
}

// ModelConfig is saved in a JSON file along with the weights of the NN model
type ModelConfig struct {
	Architecture string   `json:"architecture"` // eg "yolov3"
	Width        int      `json:"width"`        // eg 416
	Height       int      `json:"height"`       // eg 416
	Classes      []string `json:"classes"`      // eg ["person", "bicycle", "car", ...]
}

// Load model config from a JSON file
func LoadModelConfig(filename string) (*ModelConfig, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	config := &ModelConfig{}
	err = json.Unmarshal(b, config)
	if err != nil {
		return nil, err
	}
	return config, nil
}

// Load a text file with class names on each line (eg coco.names)
func LoadClassFile(filename string) ([]string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	classes := []string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			classes = append(classes, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return classes, nil
}

// ClassName returns the name of class 'cls', or a placeholder if the class table is too short
func ClassName(classes []string, cls int) string {
	if cls >= 0 && cls < len(classes) {
		return classes[cls]
	}
	return fmt.Sprintf("class%v", cls)
}
