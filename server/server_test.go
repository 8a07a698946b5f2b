package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/speedtrap/pkg/nn"
	"github.com/cyclopcam/speedtrap/pkg/segment"
	"github.com/cyclopcam/speedtrap/server/config"
	"github.com/cyclopcam/speedtrap/server/monitor"
	"github.com/cyclopcam/speedtrap/server/rundb"
	"github.com/cyclopcam/speedtrap/server/source"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// Writes a labels file that produces the speeding pattern F,F,T,T,T,F,T,F at 10 fps with a limit of 5 px/s
func writeSpeedingLabels(t *testing.T, dir string) string {
	t.Helper()
	xs := []int{0, 0, 10, 20, 30, 30, 40}
	labels := &nn.VideoLabels{
		Classes:    nn.COCOClasses,
		FrameRate:  10,
		FrameCount: 8,
		Width:      200,
		Height:     100,
	}
	for i, x := range xs {
		labels.Frames = append(labels.Frames, &nn.ImageLabels{
			Frame:   i,
			Objects: []nn.ObjectDetection{{Class: nn.COCOCar, Confidence: 0.9, Box: nn.MakeRect(x, 10, 20, 10)}},
		})
	}
	j, err := json.Marshal(labels)
	require.NoError(t, err)
	fn := filepath.Join(dir, "labels.json")
	require.NoError(t, os.WriteFile(fn, j, 0644))
	return fn
}

type fakeFFmpeg struct {
	lock  sync.Mutex
	calls [][]string
}

func (f *fakeFFmpeg) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.calls = append(f.calls, args)
	return nil, nil
}

// Runs a single label stream to completion, with a database and clip export
func runTestServer(t *testing.T, rateLimit int) (*Server, *fakeFFmpeg) {
	dir := t.TempDir()
	video := filepath.Join(dir, "video.mp4")
	require.NoError(t, os.WriteFile(video, []byte("not really a video"), 0644))

	cfg := config.DefaultConfig()
	cfg.Analysis.SpeedLimit = 5
	cfg.OutputDir = filepath.Join(dir, "out")
	cfg.Database = filepath.Join(dir, "runs.sqlite")
	cfg.RateLimit = rateLimit
	cfg.Streams = []config.Stream{
		{Name: "front", Labels: writeSpeedingLabels(t, dir), Video: video},
	}

	s, err := NewServer(logs.NewTestingLog(t), cfg, nil)
	require.NoError(t, err)
	ffmpeg := &fakeFFmpeg{}
	s.Clips.Run = ffmpeg.run

	require.NoError(t, s.AddConfiguredStreams())
	s.Start(context.Background())
	s.Wait()
	t.Cleanup(s.Shutdown)
	return s, ffmpeg
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestRunWritesOutputs(t *testing.T) {
	s, ffmpeg := runTestServer(t, 0)
	expect := []segment.Segment{{Start: 2, End: 4}, {Start: 6, End: 6}}

	out := s.StreamOutputDir("front")
	raw, err := os.ReadFile(filepath.Join(out, SegmentsFile))
	require.NoError(t, err)
	segments := []segment.Segment{}
	require.NoError(t, json.Unmarshal(raw, &segments))
	require.Equal(t, expect, segments)

	for _, fn := range []string{HeatmapFile, SummaryFile, ReportFile} {
		_, err := os.Stat(filepath.Join(out, fn))
		require.NoError(t, err, fn)
	}
	// Label streams have no images, so there is nothing to overlay
	_, err = os.Stat(filepath.Join(out, HeatmapOverlayFile))
	require.True(t, os.IsNotExist(err))

	require.Len(t, ffmpeg.calls, 2)

	runs, err := s.RunDB.ListRuns("front", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, rundb.RunStateFinished, runs[0].State)
	require.Equal(t, 8, runs[0].Frames)
	require.Equal(t, 4, runs[0].SpeedingFrames)

	run, err := s.RunDB.GetRun(runs[0].ID)
	require.NoError(t, err)
	require.Len(t, run.Segments, 2)
	require.Equal(t, 2, run.Segments[0].StartFrame)
	require.Equal(t, filepath.Join(out, "clips", "segment_0.mp4"), run.Segments[0].Clip)
	require.Equal(t, filepath.Join(out, "clips", "segment_1.mp4"), run.Segments[1].Clip)
}

func TestHTTPAPI(t *testing.T) {
	s, _ := runTestServer(t, 0)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, body := get(t, ts.URL+"/api/streams")
	require.Equal(t, 200, resp.StatusCode)
	all := []monitor.StreamStatus{}
	require.NoError(t, json.Unmarshal(body, &all))
	require.Len(t, all, 1)
	require.Equal(t, "front", all[0].Name)
	require.Equal(t, monitor.StateFinished, all[0].State)
	require.Equal(t, 8, all[0].Summary.Frames)
	id := all[0].ID

	base := ts.URL + "/api/stream/" + strconv.FormatInt(id, 10)

	resp, body = get(t, base+"/segments")
	require.Equal(t, 200, resp.StatusCode)
	segments := []segment.Segment{}
	require.NoError(t, json.Unmarshal(body, &segments))
	require.Equal(t, []segment.Segment{{Start: 2, End: 4}, {Start: 6, End: 6}}, segments)

	resp, body = get(t, base+"/heatmap")
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	require.Equal(t, []byte{0xff, 0xd8}, body[:2])

	resp, body = get(t, base+"/recent?n=3")
	require.Equal(t, 200, resp.StatusCode)
	recent := []map[string]any{}
	require.NoError(t, json.Unmarshal(body, &recent))
	require.Len(t, recent, 3)
	require.Equal(t, 7.0, recent[2]["frame"])

	resp, body = get(t, base+"/report")
	require.Equal(t, 200, resp.StatusCode)
	require.Contains(t, string(body), "Speed timeline")

	// Label streams have no images
	resp, _ = get(t, base+"/preview")
	require.Equal(t, 400, resp.StatusCode)

	resp, _ = get(t, ts.URL+"/api/stream/999/segments")
	require.Equal(t, 404, resp.StatusCode)

	resp, body = get(t, ts.URL+"/api/runs?stream=front")
	require.Equal(t, 200, resp.StatusCode)
	runs := []map[string]any{}
	require.NoError(t, json.Unmarshal(body, &runs))
	require.Len(t, runs, 1)
	require.Equal(t, "finished", runs[0]["state"])

	resp, _ = get(t, ts.URL+"/api/run/12345")
	require.Equal(t, 404, resp.StatusCode)

	resp, body = get(t, ts.URL+"/")
	require.Equal(t, 200, resp.StatusCode)
	require.Contains(t, string(body), "/api/streams")

	resp, body = get(t, ts.URL+"/metrics")
	require.Equal(t, 200, resp.StatusCode)
	require.Contains(t, string(body), "speedtrap_frames_processed_total")
}

func TestWebSocketFinishedStream(t *testing.T) {
	s, _ := runTestServer(t, 0)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	id := s.Monitor.StreamByName("front").ID
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/stream/" + strconv.FormatInt(id, 10) + "/ws"
	c, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer c.Close()

	ev := monitor.FrameEvent{}
	require.NoError(t, c.ReadJSON(&ev))
	require.True(t, ev.Finished)
	require.Equal(t, id, ev.StreamID)
	require.Len(t, ev.Segments, 2)
}

func TestRateLimit(t *testing.T) {
	s, _ := runTestServer(t, 2)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	for i := 0; i < 2; i++ {
		resp, _ := get(t, ts.URL+"/api/ping")
		require.Equal(t, 200, resp.StatusCode)
	}
	resp, _ := get(t, ts.URL+"/api/ping")
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestImageStreamNeedsDetector(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.OutputDir = ""
	s, err := NewServer(logs.NewTestingLog(t), cfg, nil)
	require.NoError(t, err)
	_, err = s.AddStream(config.Stream{Name: "cam", Images: t.TempDir()}, cfg.Analysis)
	require.Error(t, err)
}

// chanSource delivers frames from a channel, until the channel is closed
type chanSource struct {
	frames chan *source.Frame
}

func (c *chanSource) Info() source.Info {
	return source.Info{FrameRate: 10, Width: 200, Height: 100, Classes: nn.COCOClasses}
}

func (c *chanSource) Next(ctx context.Context) (*source.Frame, error) {
	select {
	case f, ok := <-c.frames:
		if !ok {
			return nil, source.ErrEndOfStream
		}
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *chanSource) Close() error {
	return nil
}

func TestWebSocketLiveStream(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Analysis.SpeedLimit = 5
	cfg.OutputDir = ""
	s, err := NewServer(logs.NewTestingLog(t), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(s.Shutdown)

	src := &chanSource{frames: make(chan *source.Frame)}
	st, err := s.Monitor.AddStream(monitor.StreamConfig{Name: "live", Source: src, Analysis: cfg.Analysis})
	require.NoError(t, err)
	s.Start(context.Background())

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/stream/" + strconv.FormatInt(st.ID, 10) + "/ws"
	c, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer c.Close()

	// The stream is still running, so the socket stays open until it finishes
	xs := []int{0, 0, 10, 20, 30, 30, 40}
	for i, x := range xs {
		src.frames <- &source.Frame{
			Number:  i,
			Objects: []nn.ObjectDetection{{Class: nn.COCOCar, Confidence: 0.9, Box: nn.MakeRect(x, 10, 20, 10)}},
		}
	}
	src.frames <- &source.Frame{Number: 7}
	close(src.frames)

	// Whether or not our watcher saw every frame, the last message must be the final one
	type event struct {
		StreamID int64             `json:"streamID"`
		Finished bool              `json:"finished"`
		Segments []segment.Segment `json:"segments"`
	}
	var last event
	for !last.Finished {
		last = event{}
		require.NoError(t, c.ReadJSON(&last))
		require.Equal(t, st.ID, last.StreamID)
	}
	require.Equal(t, []segment.Segment{{Start: 2, End: 4}, {Start: 6, End: 6}}, last.Segments)
}
