package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/akamensky/argparse"
	"github.com/coreos/go-systemd/daemon"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/speedtrap/server"
	"github.com/cyclopcam/speedtrap/server/config"
)

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	parser := argparse.NewParser("speedtrap", "Find speeding objects in detector output")
	configFile := parser.String("c", "config", &argparse.Options{Help: "JSON configuration file (default " + config.DefaultConfigFile + ", if it exists)", Default: ""})
	labels := parser.String("l", "labels", &argparse.Options{Help: "Labels file to analyze, in addition to the streams in the config file", Default: ""})
	name := parser.String("n", "name", &argparse.Options{Help: "Name of the stream given by --labels", Default: "default"})
	video := parser.String("v", "video", &argparse.Options{Help: "Source video of --labels, for cutting clips of speeding segments", Default: ""})
	speedLimit := parser.Float("s", "speedlimit", &argparse.Options{Help: "Speed limit, in --unit (px/s unless calibrated)", Default: -1.0})
	frameRate := parser.Float("f", "fps", &argparse.Options{Help: "Frame rate, if the source does not declare one", Default: 0.0})
	unit := parser.String("u", "unit", &argparse.Options{Help: "Speed unit (px/s, mps, kph, mph)", Default: ""})
	pixelsPerMetre := parser.Float("", "ppm", &argparse.Options{Help: "Pixels per metre, for converting pixel speeds into real units", Default: 0.0})
	matcher := parser.String("m", "matcher", &argparse.Options{Help: "Object matcher between frames (index, centroid, iou, hungarian)", Default: ""})
	outputDir := parser.String("o", "output", &argparse.Options{Help: "Output directory", Default: ""})
	dbFile := parser.String("", "db", &argparse.Options{Help: "SQLite database to record runs in", Default: ""})
	httpAddr := parser.String("", "http", &argparse.Options{Help: "Serve the HTTP API on this address (eg :8090)", Default: ""})
	serve := parser.Flag("", "serve", &argparse.Options{Help: "Keep serving the HTTP API after every stream has finished", Default: false})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configFile)
	check(err)

	// Command line beats environment, which beats the config file
	if *speedLimit >= 0 {
		cfg.Analysis.SpeedLimit = *speedLimit
	}
	if *frameRate > 0 {
		cfg.Analysis.FrameRate = *frameRate
	}
	if *unit != "" {
		cfg.Analysis.Unit = *unit
	}
	if *pixelsPerMetre > 0 {
		cfg.Analysis.PixelsPerMetre = *pixelsPerMetre
	}
	if *matcher != "" {
		cfg.Analysis.Matcher = *matcher
	}
	if *outputDir != "" {
		cfg.OutputDir = *outputDir
	}
	if *dbFile != "" {
		cfg.Database = *dbFile
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	if *labels != "" {
		cfg.Streams = append(cfg.Streams, config.Stream{
			Name:   *name,
			Labels: *labels,
			Video:  *video,
		})
	}
	if len(cfg.Streams) == 0 {
		fmt.Print(parser.Usage("No streams to analyze. Use --labels, or add streams to the config file."))
		os.Exit(1)
	}

	// Object detection needs an NN backend, which a host program provides through server.NewServer.
	// On its own, speedtrap analyzes labels files.
	srv, err := server.NewServer(logger, cfg, nil)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv.ListenForKillSignals(cancel)

	check(srv.AddConfiguredStreams())
	srv.Start(ctx)

	if cfg.HTTPAddr != "" {
		go func() {
			if err := srv.ListenHTTP(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("ListenHTTP returned: %v", err)
				cancel()
			}
		}()
		// Tell systemd that we're alive
		daemon.SdNotify(false, daemon.SdNotifyReady)
	}

	srv.Wait()

	failed := 0
	for _, st := range srv.Monitor.Streams() {
		segments := st.Segments()
		if err := st.Err(); err != nil {
			failed++
			logger.Errorf("Stream '%v' failed: %v", st.Name, err)
		}
		logger.Infof("Stream '%v': %v speeding segments %v", st.Name, len(segments), segments)
	}

	if *serve && cfg.HTTPAddr != "" {
		logger.Infof("All streams finished. Serving until interrupted.")
		<-ctx.Done()
	}

	srv.Shutdown()
	if failed != 0 {
		os.Exit(1)
	}
}
