package rundb

import (
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/speedtrap/pkg/analysis"
)

// BaseModel is our base class for a GORM model.
// The default GORM Model uses int, but we prefer int64
type BaseModel struct {
	ID int64 `gorm:"primaryKey" json:"id"`
}

type RunState string

const (
	RunStateRunning  RunState = "running"
	RunStateFinished RunState = "finished"
	RunStateFailed   RunState = "failed"
)

// Run is one pass of the analysis over a stream
type Run struct {
	BaseModel
	UUID           string                           `json:"uuid"` // Unique across databases
	Stream         string                           `json:"stream"`
	StartedAt      dbh.IntTime                      `json:"startedAt"`
	FinishedAt     dbh.IntTime                      `json:"finishedAt" gorm:"default:null"`
	FrameRate      float64                          `json:"frameRate"`
	Frames         int                              `json:"frames"`
	SpeedingFrames int                              `json:"speedingFrames"`
	MaxSpeed       float64                          `json:"maxSpeed"` // px/s
	State          RunState                         `json:"state"`
	Error          string                           `json:"error,omitempty"`
	Config         *dbh.JSONField[analysis.Config]  `json:"config"`
	Summary        *dbh.JSONField[analysis.Summary] `json:"summary"`
	Segments       []Segment                        `json:"segments,omitempty" gorm:"-"`
}

// Segment is a contiguous range of speeding frames
type Segment struct {
	BaseModel
	RunID      int64  `json:"runID"`
	StartFrame int    `json:"startFrame"`
	EndFrame   int    `json:"endFrame"`
	Clip       string `json:"clip,omitempty"` // Path of the exported video clip, if any
}
