package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speedtrap_frames_processed_total",
		Help: "Total number of frames analyzed, by stream",
	}, []string{"stream"})

	speedingFramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speedtrap_speeding_frames_total",
		Help: "Total number of frames in which at least one object exceeded the speed limit",
	}, []string{"stream"})

	detectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speedtrap_detections_total",
		Help: "Total number of detections kept after duplicate suppression, by movement category",
	}, []string{"stream", "category"})

	segmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speedtrap_segments_total",
		Help: "Total number of speeding segments closed",
	}, []string{"stream"})

	frameDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "speedtrap_frame_duration_seconds",
		Help:    "Time taken to analyze a single frame",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	}, []string{"stream"})

	activeStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "speedtrap_active_streams",
		Help: "Number of streams currently being analyzed",
	})

	droppedWatcherFramesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "speedtrap_dropped_watcher_frames_total",
		Help: "Frame results not delivered to a watcher because it was falling behind",
	})
)
