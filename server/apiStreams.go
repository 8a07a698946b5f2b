package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cyclopcam/speedtrap/pkg/gen"
	"github.com/cyclopcam/speedtrap/pkg/heatmap"
	"github.com/cyclopcam/speedtrap/server/monitor"
	"github.com/cyclopcam/speedtrap/server/preview"
	"github.com/cyclopcam/speedtrap/server/report"
	"github.com/cyclopcam/www"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

func (s *Server) getStreamOrPanic(idStr string) *monitor.Stream {
	st := s.Monitor.StreamByID(www.ParseID(idStr))
	if st == nil {
		www.PanicNotFound()
	}
	return st
}

func (s *Server) jpegQuality(r *http.Request) int {
	q := www.QueryInt(r, "quality")
	if q < 1 || q > 100 {
		return s.Config.JPEGQuality
	}
	return q
}

func sendJPEG(w http.ResponseWriter, jpg []byte) {
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(jpg)
}

func (s *Server) httpStreams(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	all := []monitor.StreamStatus{}
	for _, st := range s.Monitor.Streams() {
		all = append(all, st.Status())
	}
	www.CacheNever(w)
	www.SendJSON(w, all)
}

func (s *Server) httpStream(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	st := s.getStreamOrPanic(params.ByName("id"))
	www.CacheNever(w)
	www.SendJSON(w, st.Status())
}

func (s *Server) httpStreamStop(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	st := s.getStreamOrPanic(params.ByName("id"))
	www.Check(s.Monitor.Stop(st.ID))
	www.SendOK(w)
}

func (s *Server) httpStreamSegments(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	st := s.getStreamOrPanic(params.ByName("id"))
	www.CacheNever(w)
	www.SendJSON(w, st.Segments())
}

// Example: curl -o heat.jpg localhost:8090/api/stream/1/heatmap?quality=80
func (s *Server) httpStreamHeatmap(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	st := s.getStreamOrPanic(params.ByName("id"))
	heat := st.Heatmap()
	if heat == nil {
		www.PanicBadRequestf("No heatmap available yet")
	}
	jpg, err := heatmap.EncodeJPEG(heat.Colorize(), s.jpegQuality(r))
	www.Check(err)
	www.CacheNever(w)
	sendJPEG(w, jpg)
}

// Optional query param 'n' limits the number of results
func (s *Server) httpStreamRecent(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	st := s.getStreamOrPanic(params.ByName("id"))
	www.CacheNever(w)
	www.SendJSON(w, st.Recent(www.QueryInt(r, "n")))
}

func (s *Server) httpStreamReport(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	st := s.getStreamOrPanic(params.ByName("id"))
	var buf bytes.Buffer
	www.Check(report.Render(&buf, s.reportInput(st)))
	www.CacheNever(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

// Annotated copy of the most recent frame. Add heatmap=1 to blend the heatmap over it.
func (s *Server) httpStreamPreview(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	st := s.getStreamOrPanic(params.ByName("id"))
	img, result := st.LastImage()
	if img == nil {
		www.PanicBadRequestf("Stream '%v' has no images", st.Name)
	}
	opt := preview.Options{
		SpeedLimit:  st.Config.SpeedLimitPixels(),
		Calibration: st.Config.Calibration(),
		Unit:        st.Config.Unit,
	}
	var heat *heatmap.Plane
	if www.QueryValue(r, "heatmap") == "1" {
		heat = st.Heatmap()
	}
	out, err := preview.Render(img, result, heat, opt)
	www.Check(err)
	jpg, err := heatmap.EncodeJPEG(out, s.jpegQuality(r))
	www.Check(err)
	www.CacheNever(w)
	sendJPEG(w, jpg)
}

// Stream live frame results as JSON text messages, until the stream finishes or the client goes away
func (s *Server) httpStreamWebSocket(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	st := s.getStreamOrPanic(params.ByName("id"))

	c, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Errorf("httpStreamWebSocket upgrade failed: %v", err)
		return
	}
	defer c.Close()

	send := func(ev *monitor.FrameEvent) bool {
		j, err := json.Marshal(ev)
		if err != nil {
			s.Log.Errorf("Failed to encode frame event: %v", err)
			return false
		}
		c.SetWriteDeadline(time.Now().Add(5 * time.Second))
		return c.WriteMessage(websocket.TextMessage, j) == nil
	}
	finished := func() *monitor.FrameEvent {
		return &monitor.FrameEvent{StreamID: st.ID, Finished: true, Segments: st.Segments()}
	}

	// If the stream is already done, the watcher would never hear anything
	select {
	case <-st.Done():
		send(finished())
		return
	default:
	}

	ch := s.Monitor.AddWatcher(st.ID)
	defer s.Monitor.RemoveWatcher(st.ID, ch)

	// Detect the client closing the socket
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev := <-ch:
			if !send(ev) || ev.Finished {
				return
			}
		case <-st.Done():
			// Events queued before Done closed are still in the channel. If the stream finished
			// before our watcher was registered, there is no final event, so we make one.
			for _, ev := range gen.DrainChannelIntoSlice(ch) {
				if !send(ev) || ev.Finished {
					return
				}
			}
			send(finished())
			return
		case <-closed:
			return
		}
	}
}
