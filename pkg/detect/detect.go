// Package detect turns one frame of raw detector output into the candidate
// list and the set of kept indices that the rest of the analysis consumes.
package detect

import (
	"github.com/cyclopcam/speedtrap/pkg/nn"
)

// Detection is a single candidate object in a frame
type Detection struct {
	Box        nn.Rect `json:"box"`
	Label      string  `json:"label"`
	Confidence float32 `json:"confidence"`
}

// Frame is the normalized detector output for one frame.
// A Detection Index is a position in Detections. It is only meaningful within
// this frame, and says nothing about object identity across frames.
type Frame struct {
	Detections []Detection `json:"detections"` // Every candidate that passed the confidence threshold
	Kept       []int       `json:"kept"`       // Indices into Detections that survived duplicate suppression
}

// KeptDetection returns the detection at position i of the Kept list
func (f *Frame) KeptDetection(i int) Detection {
	return f.Detections[f.Kept[i]]
}

func (f *Frame) IsEmpty() bool {
	return len(f.Kept) == 0
}

// Adapter converts raw detector output into a Frame
type Adapter struct {
	Params  nn.DetectionParams
	Classes []string // Class index to label
}

// Create an adapter. Zero thresholds in params are replaced by the defaults (0.5 and 0.4).
func NewAdapter(params nn.DetectionParams, classes []string) *Adapter {
	return &Adapter{
		Params:  params.WithDefaults(),
		Classes: classes,
	}
}

// Adapt filters candidates by confidence, labels them, and runs duplicate suppression.
// Candidates with a confidence at or below the threshold never receive a Detection Index.
func (a *Adapter) Adapt(raw []nn.ObjectDetection) *Frame {
	frame := &Frame{
		Detections: make([]Detection, 0, len(raw)),
	}
	for _, obj := range raw {
		if obj.Confidence <= a.Params.ProbabilityThreshold {
			continue
		}
		frame.Detections = append(frame.Detections, Detection{
			Box:        obj.Box,
			Label:      nn.ClassName(a.Classes, obj.Class),
			Confidence: obj.Confidence,
		})
	}

	boxes := make([]nn.Rect, len(frame.Detections))
	scores := make([]float32, len(frame.Detections))
	for i, d := range frame.Detections {
		boxes[i] = d.Box
		scores[i] = d.Confidence
	}
	frame.Kept = nn.SuppressDuplicates(boxes, scores, a.Params.ProbabilityThreshold, a.Params.NmsIouThreshold)
	return frame
}
