package nn

import (
	"encoding/json"
	"fmt"
	"os"
)

// VideoLabels contains the detector output for each frame of a video.
// Frames with no detections may be omitted from Frames.
type VideoLabels struct {
	Classes    []string       `json:"classes"`
	FrameRate  float64        `json:"frameRate,omitempty"`  // Declared frame rate of the source video
	FrameCount int            `json:"frameCount,omitempty"` // Total number of frames in the source video (0 = last labelled frame + 1)
	Width      int            `json:"width,omitempty"`
	Height     int            `json:"height,omitempty"`
	Frames     []*ImageLabels `json:"frames"`
}

type ImageLabels struct {
	Frame   int               `json:"frame,omitempty"` // For video, this is the frame number
	Objects []ObjectDetection `json:"objects"`
}

// ObjectDetection is an object that a neural network has found in an image
type ObjectDetection struct {
	Class      int     `json:"class"`
	Confidence float32 `json:"confidence"`
	Box        Rect    `json:"box"`
}

// Load a labels file, as written by a labelling run over a video
func LoadVideoLabels(filename string) (*VideoLabels, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	labels := &VideoLabels{}
	if err := json.Unmarshal(raw, labels); err != nil {
		return nil, fmt.Errorf("Error decoding labels file %v: %w", filename, err)
	}
	for i := 1; i < len(labels.Frames); i++ {
		if labels.Frames[i].Frame <= labels.Frames[i-1].Frame {
			return nil, fmt.Errorf("Labels file %v is not in frame order at frame %v", filename, labels.Frames[i].Frame)
		}
	}
	return labels, nil
}

// NumFrames returns the number of frames in the video, which is FrameCount if
// it was recorded, otherwise the last labelled frame + 1.
func (v *VideoLabels) NumFrames() int {
	n := v.FrameCount
	if len(v.Frames) != 0 {
		n = max(n, v.Frames[len(v.Frames)-1].Frame+1)
	}
	return n
}
