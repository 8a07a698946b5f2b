package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/speedtrap/pkg/analysis"
	"github.com/cyclopcam/speedtrap/pkg/nn"
	"github.com/cyclopcam/speedtrap/server/clips"
	"github.com/cyclopcam/speedtrap/server/config"
	"github.com/cyclopcam/speedtrap/server/monitor"
	"github.com/cyclopcam/speedtrap/server/rundb"
	"github.com/cyclopcam/speedtrap/server/source"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

// Server owns the monitor, the run database, and the HTTP API
type Server struct {
	Log     logs.Log
	Config  *config.Config
	Monitor *monitor.Monitor
	RunDB   *rundb.RunDB // nil if no database is configured
	Clips   *clips.Writer
	Classes []string // nil means COCO

	detector nn.ObjectDetector // Only needed for image streams. Owned by the caller.

	streamsLock sync.Mutex
	streams     map[int64]*streamExtra

	signalIn   chan os.Signal
	httpServer *http.Server
	httpRouter *httprouter.Router
	wsUpgrader websocket.Upgrader
}

// Things we know about a stream that the monitor does not
type streamExtra struct {
	config config.Stream
	run    *rundb.Run
}

// Create a server. The detector may be nil, in which case only label streams can be added.
func NewServer(logger logs.Log, cfg *config.Config, detector nn.ObjectDetector) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("Invalid config: %w", err)
	}

	s := &Server{
		Log:      logger,
		Config:   cfg,
		Monitor:  monitor.NewMonitor(logger),
		Clips:    clips.NewWriter(logger, cfg.FFmpeg),
		detector: detector,
		streams:  map[int64]*streamExtra{},
	}
	s.Monitor.RecentFrames = cfg.RecentFrames
	s.Monitor.OnFinished = s.onStreamFinished

	if cfg.ClassFile != "" {
		classes, err := nn.LoadClassFile(cfg.ClassFile)
		if err != nil {
			return nil, err
		}
		s.Classes = classes
	}

	if cfg.Database != "" {
		db, err := rundb.NewRunDB(logger, cfg.Database)
		if err != nil {
			return nil, err
		}
		s.RunDB = db
	}

	if err := s.setupHttpRoutes(); err != nil {
		return nil, err
	}
	return s, nil
}

// AddConfiguredStreams adds every stream from the config file
func (s *Server) AddConfiguredStreams() error {
	for i, sc := range s.Config.Streams {
		if _, err := s.AddStream(sc, s.Config.StreamAnalysis(i)); err != nil {
			return err
		}
	}
	return nil
}

// AddStream opens the stream's source and hands it to the monitor
func (s *Server) AddStream(sc config.Stream, acfg analysis.Config) (*monitor.Stream, error) {
	src, err := s.openSource(sc, acfg)
	if err != nil {
		return nil, fmt.Errorf("Stream '%v': %w", sc.Name, err)
	}
	if s.Classes != nil {
		src = source.WithClasses(src, s.Classes)
	}

	// Hold the lock until the stream is registered, because the stream may finish before AddStream returns
	s.streamsLock.Lock()
	defer s.streamsLock.Unlock()

	stream, err := s.Monitor.AddStream(monitor.StreamConfig{
		Name:      sc.Name,
		Source:    src,
		Analysis:  acfg,
		FrameRate: sc.FrameRate,
	})
	if err != nil {
		src.Close()
		return nil, err
	}

	extra := &streamExtra{config: sc}
	if s.RunDB != nil {
		run, err := s.RunDB.StartRun(sc.Name, stream.Config)
		if err != nil {
			s.Log.Errorf("Failed to record start of run for stream '%v': %v", sc.Name, err)
		} else {
			extra.run = run
		}
	}
	s.streams[stream.ID] = extra
	return stream, nil
}

func (s *Server) openSource(sc config.Stream, acfg analysis.Config) (source.Source, error) {
	if sc.Labels != "" {
		return source.OpenLabelFile(sc.Labels)
	}
	if s.detector == nil {
		return nil, errors.New("No object detector is available for an image stream")
	}
	frameRate := sc.FrameRate
	if frameRate == 0 {
		frameRate = acfg.FrameRate
	}
	return source.NewDetectorSource(s.detector, acfg.DetectionParams(), sc.Images, frameRate)
}

func (s *Server) extraFor(id int64) *streamExtra {
	s.streamsLock.Lock()
	defer s.streamsLock.Unlock()
	return s.streams[id]
}

// Start analyzing all streams
func (s *Server) Start(ctx context.Context) {
	s.Monitor.Start(ctx)
}

// Wait for all streams to finish, including their outputs
func (s *Server) Wait() {
	s.Monitor.Wait()
}

// addr example: ":8090"
func (s *Server) ListenHTTP(addr string) error {
	s.Log.Infof("Listening on %v", addr)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.httpRouter,
	}
	return s.httpServer.ListenAndServe()
}

// Handler returns the HTTP API, for embedding in another server
func (s *Server) Handler() http.Handler {
	return s.httpRouter
}

// ListenForKillSignals calls cancel when we receive SIGINT or SIGTERM
func (s *Server) ListenForKillSignals(cancel context.CancelFunc) {
	s.signalIn = make(chan os.Signal, 1)
	signal.Notify(s.signalIn, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig, ok := <-s.signalIn
		if ok {
			s.Log.Infof("Received OS signal '%v'", sig.String())
			cancel()
		}
	}()
}

// Shutdown stops every stream, waits for their outputs, and closes the HTTP server
func (s *Server) Shutdown() {
	s.Log.Infof("Shutdown")
	if s.signalIn != nil {
		signal.Stop(s.signalIn)
		close(s.signalIn)
		s.signalIn = nil
	}
	s.Monitor.Close()
	if s.RunDB != nil {
		s.RunDB.Close()
	}
	if s.httpServer != nil {
		s.Log.Infof("Closing HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.Log.Warnf("HTTP shutdown error: %v", err)
		}
	}
	s.Log.Infof("Shutdown complete")
}
