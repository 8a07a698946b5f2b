// Package rundb records every analysis run, and the speeding segments it found.
package rundb

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/speedtrap/pkg/analysis"
	"github.com/cyclopcam/speedtrap/pkg/segment"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RunDB struct {
	Log logs.Log
	DB  *gorm.DB
}

// Open or create a run database
func NewRunDB(logger logs.Log, dbFilename string) (*RunDB, error) {
	os.MkdirAll(filepath.Dir(dbFilename), 0777)
	db, err := dbh.OpenDB(logger, dbh.MakeSqliteConfig(dbFilename), Migrations(logger), 0)
	if err != nil {
		return nil, fmt.Errorf("Failed to open database %v: %w", dbFilename, err)
	}
	return &RunDB{
		Log: logger,
		DB:  db,
	}, nil
}

func (r *RunDB) Close() {
	if sqlDB, err := r.DB.DB(); err == nil {
		sqlDB.Close()
	}
}

// Record the start of a run
func (r *RunDB) StartRun(stream string, cfg analysis.Config) (*Run, error) {
	run := &Run{
		UUID:      uuid.NewString(),
		Stream:    stream,
		StartedAt: dbh.MakeIntTime(time.Now()),
		FrameRate: cfg.FrameRate,
		State:     RunStateRunning,
		Config:    &dbh.JSONField[analysis.Config]{Data: cfg},
	}
	if err := r.DB.Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

// Record the outcome of a run, and its segments.
// If runErr is not nil, the run is marked as failed, but segments are still saved.
func (r *RunDB) FinishRun(run *Run, summary analysis.Summary, segments []segment.Segment, runErr error) error {
	run.FinishedAt = dbh.MakeIntTime(time.Now())
	run.Frames = summary.Frames
	run.SpeedingFrames = summary.SpeedingFrames
	run.MaxSpeed = summary.Speeds.Max
	run.Summary = &dbh.JSONField[analysis.Summary]{Data: summary}
	run.State = RunStateFinished
	run.Error = ""
	if runErr != nil {
		run.State = RunStateFailed
		run.Error = runErr.Error()
	}
	run.Segments = nil
	for _, s := range segments {
		run.Segments = append(run.Segments, Segment{
			RunID:      run.ID,
			StartFrame: s.Start,
			EndFrame:   s.End,
		})
	}
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(run).Error; err != nil {
			return err
		}
		if err := tx.Where("run_id = ?", run.ID).Delete(&Segment{}).Error; err != nil {
			return err
		}
		for i := range run.Segments {
			if err := tx.Create(&run.Segments[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Record the path of an exported clip
func (r *RunDB) SetClip(segmentID int64, clip string) error {
	return r.DB.Model(&Segment{}).Where("id = ?", segmentID).Update("clip", clip).Error
}

// Fetch a run, including its segments
func (r *RunDB) GetRun(id int64) (*Run, error) {
	run := &Run{}
	if err := r.DB.First(run, id).Error; err != nil {
		return nil, err
	}
	if err := r.DB.Where("run_id = ?", id).Order("start_frame").Find(&run.Segments).Error; err != nil {
		return nil, err
	}
	return run, nil
}

// List the most recent runs, newest first, without their segments
func (r *RunDB) ListRuns(stream string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 100
	}
	q := r.DB.Order("started_at DESC, id DESC").Limit(limit)
	if stream != "" {
		q = q.Where("stream = ?", stream)
	}
	runs := []Run{}
	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
