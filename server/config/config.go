package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/cyclopcam/speedtrap/pkg/analysis"
)

// Prefix of every environment variable that overrides the config file
const EnvPrefix = "SPEEDTRAP_"

const DefaultConfigFile = "speedtrap.json"

// Stream is a single source of frames to analyze
type Stream struct {
	Name      string           `json:"name"`                // Friendly name
	Labels    string           `json:"labels,omitempty"`    // Per-frame detector output (JSON labels file)
	Images    string           `json:"images,omitempty"`    // Directory of JPEG frames, to be run through the detector
	Video     string           `json:"video,omitempty"`     // The source video, used to cut clips of speeding segments
	FrameRate float64          `json:"frameRate,omitempty"` // Overrides the frame rate declared by the source
	Analysis  *analysis.Config `json:"analysis,omitempty"`  // Overrides the global analysis config for this stream
}

type Config struct {
	Analysis     analysis.Config `json:"analysis"`
	Streams      []Stream        `json:"streams"`
	ClassFile    string          `json:"classFile" env:"CLASS_FILE"`       // Class names, one per line. Blank for COCO.
	OutputDir    string          `json:"outputDir" env:"OUTPUT_DIR"`       // Heatmaps, segments, reports, clips
	Database     string          `json:"database" env:"DATABASE"`          // SQLite file recording every run. Blank to disable.
	HTTPAddr     string          `json:"httpAddr" env:"HTTP_ADDR"`         // eg ":8090". Blank to disable the HTTP API.
	RecentFrames int             `json:"recentFrames" env:"RECENT_FRAMES"` // Number of frame results kept per stream, for the HTTP API. Must be a power of 2.
	RateLimit    int             `json:"rateLimit" env:"RATE_LIMIT"`       // Requests per minute per IP, for the HTTP API
	FFmpeg       string          `json:"ffmpeg" env:"FFMPEG"`              // Path to ffmpeg, for segment clips
	JPEGQuality  int             `json:"jpegQuality" env:"JPEG_QUALITY"`
}

func DefaultConfig() *Config {
	return &Config{
		Analysis:     analysis.DefaultConfig(),
		OutputDir:    "speedtrap-output",
		RecentFrames: 256,
		RateLimit:    600,
		FFmpeg:       "ffmpeg",
		JPEGQuality:  90,
	}
}

// Load the config from a JSON file, then apply environment overrides.
// Fields missing from the file keep their default values.
// If filename is empty and the default config file does not exist, the defaults are used.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()
	explicit := filename != ""
	if filename == "" {
		filename = DefaultConfigFile
	}
	raw, err := os.ReadFile(filename)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			raw = nil
		} else {
			return nil, fmt.Errorf("Error loading %v: %w", filename, err)
		}
	}
	if raw != nil {
		if err := json.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("Error loading as JSON %v: %w", filename, err)
		}
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides config values from SPEEDTRAP_* environment variables
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("Error parsing environment: %w", err)
	}
	return nil
}

// StreamAnalysis returns the analysis config for the stream at index i
func (c *Config) StreamAnalysis(i int) analysis.Config {
	s := c.Streams[i]
	a := c.Analysis
	if s.Analysis != nil {
		a = *s.Analysis
	}
	if s.FrameRate != 0 {
		a.FrameRate = s.FrameRate
	}
	return a
}

func (c *Config) Validate() error {
	if err := c.Analysis.Validate(); err != nil {
		return err
	}
	names := map[string]bool{}
	for i, s := range c.Streams {
		if s.Name == "" {
			return fmt.Errorf("Stream %v has no name", i)
		}
		if names[s.Name] {
			return fmt.Errorf("Duplicate stream name '%v'", s.Name)
		}
		names[s.Name] = true
		if (s.Labels == "") == (s.Images == "") {
			return fmt.Errorf("Stream '%v' must have exactly one of 'labels' or 'images'", s.Name)
		}
		a := c.StreamAnalysis(i)
		if err := a.Validate(); err != nil {
			return fmt.Errorf("Stream '%v': %w", s.Name, err)
		}
	}
	if c.RecentFrames <= 0 || c.RecentFrames&(c.RecentFrames-1) != 0 {
		return fmt.Errorf("recentFrames (%v) must be a power of 2", c.RecentFrames)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rateLimit may not be negative")
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("jpegQuality (%v) must be between 1 and 100", c.JPEGQuality)
	}
	return nil
}
