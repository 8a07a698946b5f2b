package server

import (
	"embed"
	"net/http"
	"time"

	"github.com/cyclopcam/staticfiles"
	"github.com/cyclopcam/www"
	"github.com/go-chi/httprate"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

//go:embed www
var staticWWW embed.FS

func (s *Server) setupHttpRoutes() error {
	router := httprouter.New()

	// One limiter is shared by every API route, so a client can't dodge it by spreading requests over endpoints
	var limited func(http.Handler) http.Handler
	if s.Config.RateLimit > 0 {
		limited = httprate.Limit(s.Config.RateLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))
	}

	api := func(method, route string, handle httprouter.Handle) {
		www.Handle(s.Log, router, method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			if limited == nil {
				handle(w, r, params)
				return
			}
			limited(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handle(w, r, params)
			})).ServeHTTP(w, r)
		})
	}

	api("GET", "/api/ping", s.httpPing)
	api("GET", "/api/streams", s.httpStreams)
	api("GET", "/api/stream/:id", s.httpStream)
	api("POST", "/api/stream/:id/stop", s.httpStreamStop)
	api("GET", "/api/stream/:id/segments", s.httpStreamSegments)
	api("GET", "/api/stream/:id/heatmap", s.httpStreamHeatmap)
	api("GET", "/api/stream/:id/recent", s.httpStreamRecent)
	api("GET", "/api/stream/:id/report", s.httpStreamReport)
	api("GET", "/api/stream/:id/preview", s.httpStreamPreview)
	api("GET", "/api/stream/:id/ws", s.httpStreamWebSocket)
	api("GET", "/api/runs", s.httpRuns)
	api("GET", "/api/run/:id", s.httpRun)

	router.Handler("GET", "/metrics", promhttp.Handler())

	static, err := staticfiles.NewCachedStaticFileServer(staticWWW, "www", []string{"/api/", "/metrics"}, s.Log, false, nil)
	if err != nil {
		s.Log.Warnf("Error in static files: %v", err)
	} else {
		router.NotFound = static
	}

	s.httpRouter = router
	return nil
}

func (s *Server) httpPing(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendOK(w)
}
