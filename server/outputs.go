package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cyclopcam/speedtrap/pkg/heatmap"
	"github.com/cyclopcam/speedtrap/server/monitor"
	"github.com/cyclopcam/speedtrap/server/report"
)

// Output files written for each stream, under OutputDir/<stream name>
const (
	HeatmapFile        = "heatmap.jpg"
	HeatmapOverlayFile = "heatmap_overlay.jpg"
	SegmentsFile       = "segments.json"
	SummaryFile        = "summary.json"
	ReportFile         = "report.html"
	ClipsDir           = "clips"
)

// StreamOutputDir is where the outputs of a stream are written
func (s *Server) StreamOutputDir(streamName string) string {
	return filepath.Join(s.Config.OutputDir, streamName)
}

// Called by the monitor once a stream has flushed its final segment
func (s *Server) onStreamFinished(st *monitor.Stream) {
	extra := s.extraFor(st.ID)
	segments := st.Segments()
	summary := st.Summary()

	var clipPaths []string
	if s.Config.OutputDir != "" {
		if err := s.writeOutputs(st); err != nil {
			st.Log.Errorf("Failed to write outputs: %v", err)
		}
		if extra != nil && extra.config.Video != "" && len(segments) != 0 {
			dir := filepath.Join(s.StreamOutputDir(st.Name), ClipsDir)
			// The monitor's context may already be cancelled, but a clip that we've started is worth finishing
			paths, err := s.Clips.WriteSegments(context.Background(), extra.config.Video, segments, st.Config.FrameRate, dir)
			if err != nil {
				st.Log.Errorf("Failed to write clips: %v", err)
			}
			clipPaths = paths
		}
	}

	if s.RunDB != nil && extra != nil && extra.run != nil {
		run := extra.run
		if err := s.RunDB.FinishRun(run, summary, segments, st.Err()); err != nil {
			st.Log.Errorf("Failed to record run: %v", err)
			return
		}
		for i, p := range clipPaths {
			if err := s.RunDB.SetClip(run.Segments[i].ID, p); err != nil {
				st.Log.Errorf("Failed to record clip %v: %v", p, err)
			}
		}
		st.Log.Infof("Recorded run %v", run.UUID)
	}
}

func (s *Server) writeOutputs(st *monitor.Stream) error {
	dir := s.StreamOutputDir(st.Name)
	if err := os.MkdirAll(dir, 0777); err != nil {
		return err
	}

	if err := writeJSON(filepath.Join(dir, SegmentsFile), st.Segments()); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, SummaryFile), st.Summary()); err != nil {
		return err
	}

	var html bytes.Buffer
	if err := report.Render(&html, s.reportInput(st)); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, ReportFile), html.Bytes(), 0666); err != nil {
		return err
	}

	heat := st.Heatmap()
	if heat == nil {
		// No frame size, so no detections either
		st.Log.Infof("No heatmap, because the frame size is unknown")
		return nil
	}
	heatImg := heat.Colorize()
	jpg, err := heatmap.EncodeJPEG(heatImg, s.Config.JPEGQuality)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, HeatmapFile), jpg, 0666); err != nil {
		return err
	}

	if frame, _ := st.LastImage(); frame != nil {
		blended, err := heatmap.Blend(frame, heatImg, heatmap.DefaultBlendAlpha)
		if err != nil {
			return err
		}
		jpg, err := heatmap.EncodeJPEG(blended, s.Config.JPEGQuality)
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, HeatmapOverlayFile), jpg, 0666); err != nil {
			return err
		}
	}

	st.Log.Infof("Wrote outputs to %v", dir)
	return nil
}

func (s *Server) reportInput(st *monitor.Stream) *report.Input {
	return &report.Input{
		Stream:      st.Name,
		Results:     st.Recent(0),
		Segments:    st.Segments(),
		Summary:     st.Summary(),
		SpeedLimit:  st.Config.SpeedLimitPixels(),
		Calibration: st.Config.Calibration(),
		Unit:        st.Config.Unit,
	}
}

func writeJSON(filename string, obj any) error {
	j, err := json.MarshalIndent(obj, "", "\t")
	if err != nil {
		return fmt.Errorf("Failed to encode %v: %w", filepath.Base(filename), err)
	}
	return os.WriteFile(filename, j, 0666)
}
