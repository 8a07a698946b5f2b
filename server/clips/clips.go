// Package clips cuts the frames of each speeding segment out of the source video.
package clips

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/speedtrap/pkg/segment"
	"github.com/cyclopcam/speedtrap/pkg/speed"
)

// CommandRunner runs an external program, and returns its combined output
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Writer writes one clip per segment, using ffmpeg
type Writer struct {
	Log    logs.Log
	FFmpeg string        // Path to the ffmpeg executable
	Run    CommandRunner // Defaults to executing the command
}

func NewWriter(log logs.Log, ffmpeg string) *Writer {
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	return &Writer{
		Log:    log,
		FFmpeg: ffmpeg,
		Run:    execRunner,
	}
}

// ClipName is the file name of the clip for segment i
func ClipName(i int) string {
	return fmt.Sprintf("segment_%d.mp4", i)
}

// Args returns the ffmpeg arguments that copy the inclusive frame range of seg from input to output.
// The trim filter counts decoded frames, so the cut is frame accurate.
func Args(input string, seg segment.Segment, frameRate float64, output string) []string {
	trim := fmt.Sprintf("trim=start_frame=%d:end_frame=%d,setpts=PTS-STARTPTS", seg.Start, seg.End+1)
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", input,
		"-vf", trim,
		"-r", strconv.FormatFloat(frameRate, 'f', -1, 64),
		"-an",
		"-y",
		output,
	}
}

// WriteSegments writes segment_<i>.mp4 into outDir for each segment, and returns the paths of the clips.
// If ctx is cancelled, the clips written so far are returned along with the error.
func (w *Writer) WriteSegments(ctx context.Context, input string, segments []segment.Segment, frameRate float64, outDir string) ([]string, error) {
	if err := speed.ValidateFrameRate(frameRate); err != nil {
		return nil, err
	}
	if _, err := os.Stat(input); err != nil {
		return nil, fmt.Errorf("Source video: %w", err)
	}
	if err := os.MkdirAll(outDir, 0777); err != nil {
		return nil, fmt.Errorf("Failed to create clip directory '%v': %w", outDir, err)
	}
	run := w.Run
	if run == nil {
		run = execRunner
	}
	paths := []string{}
	for i, seg := range segments {
		if seg.End < seg.Start {
			return paths, fmt.Errorf("Invalid segment %v", seg)
		}
		out := filepath.Join(outDir, ClipName(i))
		if output, err := run(ctx, w.FFmpeg, Args(input, seg, frameRate, out)...); err != nil {
			return paths, fmt.Errorf("ffmpeg error on segment %v: %w, output: %s", seg, err, string(output))
		}
		w.Log.Infof("Wrote %v (frames %v to %v)", out, seg.Start, seg.End)
		paths = append(paths, out)
	}
	return paths, nil
}
