// Package report renders an HTML summary of a stream's speed analysis.
package report

import (
	"fmt"
	"io"
	"math"
	"slices"

	"github.com/cyclopcam/speedtrap/pkg/analysis"
	"github.com/cyclopcam/speedtrap/pkg/category"
	"github.com/cyclopcam/speedtrap/pkg/segment"
	"github.com/cyclopcam/speedtrap/pkg/speed"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/stat"
)

// Stats are the usual traffic speed percentiles, in the reporting unit
type Stats struct {
	Samples int     `json:"samples"`
	Mean    float64 `json:"mean"`
	P50     float64 `json:"p50"`
	P85     float64 `json:"p85"`
	P98     float64 `json:"p98"`
	Max     float64 `json:"max"`
}

// ComputeStats returns the percentiles of speeds. The input is not modified.
func ComputeStats(speeds []float64) Stats {
	if len(speeds) == 0 {
		return Stats{}
	}
	sorted := slices.Clone(speeds)
	slices.Sort(sorted)
	return Stats{
		Samples: len(sorted),
		Mean:    stat.Mean(sorted, nil),
		P50:     stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P85:     stat.Quantile(0.85, stat.Empirical, sorted, nil),
		P98:     stat.Quantile(0.98, stat.Empirical, sorted, nil),
		Max:     sorted[len(sorted)-1],
	}
}

// Input is everything needed to render a report
type Input struct {
	Stream      string
	Results     []*analysis.FrameResult // Oldest first
	Segments    []segment.Segment
	Summary     analysis.Summary
	SpeedLimit  float64 // px/s
	Calibration speed.Calibration
	Unit        string
}

func (in *Input) toUnit(pxPerSecond float64) float64 {
	return in.Calibration.ToUnit(pxPerSecond, in.Unit)
}

func (in *Input) unitLabel() string {
	return in.Calibration.UnitLabel(in.Unit)
}

// Speeds returns every computed speed in Results, converted to the reporting unit
func (in *Input) Speeds() []float64 {
	all := []float64{}
	for _, r := range in.Results {
		for _, v := range r.Speeds {
			all = append(all, in.toUnit(v))
		}
	}
	return all
}

// Render writes the report page to w
func Render(w io.Writer, in *Input) error {
	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("Speed report: %v", in.Stream)
	page.AddCharts(
		timelineChart(in),
		segmentChart(in),
		categoryChart(in),
		percentileChart(in),
	)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("Failed to render report: %w", err)
	}
	return nil
}

// Per-frame maximum speed, with the speed limit as a flat line
func timelineChart(in *Input) *charts.Line {
	unit := in.unitLabel()
	limit := in.toUnit(in.SpeedLimit)

	x := make([]int, 0, len(in.Results))
	maxSpeed := make([]opts.LineData, 0, len(in.Results))
	limitLine := make([]opts.LineData, 0, len(in.Results))
	for _, r := range in.Results {
		x = append(x, r.Frame)
		if len(r.Speeds) == 0 {
			// Leave a gap where nothing was moving
			maxSpeed = append(maxSpeed, opts.LineData{Value: "-"})
		} else {
			maxSpeed = append(maxSpeed, opts.LineData{Value: in.toUnit(r.MaxSpeed)})
		}
		limitLine = append(limitLine, opts.LineData{Value: limit})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Speed timeline", Subtitle: fmt.Sprintf("%v, most recent %v frames", in.Stream, len(in.Results))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Frame", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: unit, NameLocation: "middle", NameGap: 40}),
	)
	line.SetXAxis(x).
		AddSeries("max speed", maxSpeed).
		AddSeries("limit", limitLine)
	return line
}

// Length in frames of each speeding segment
func segmentChart(in *Input) *charts.Bar {
	x := make([]string, 0, len(in.Segments))
	y := make([]opts.BarData, 0, len(in.Segments))
	for _, s := range in.Segments {
		x = append(x, s.String())
		y = append(y, opts.BarData{Value: s.Len()})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: "Speeding segments", Subtitle: fmt.Sprintf("%v segments", len(in.Segments))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Frames", NameLocation: "middle", NameGap: 25}),
	)
	bar.SetXAxis(x).
		AddSeries("length", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

func categoryChart(in *Input) *charts.Bar {
	x := make([]string, 0, len(category.All))
	y := make([]opts.BarData, 0, len(category.All))
	for _, c := range category.All {
		x = append(x, c.String())
		y = append(y, opts.BarData{Value: in.Summary.Categories[c]})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: "Movements by category", Subtitle: fmt.Sprintf("%v frames", in.Summary.Frames)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("boxes", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

// Distribution returns the bars of the distribution chart. Percentiles only cover
// Results, which is a window of recent frames, but the mean and max cover the whole run.
func Distribution(in *Input) (names []string, values []float64) {
	st := ComputeStats(in.Speeds())
	names = []string{"p50", "p85", "p98", "run mean", "run max"}
	values = []float64{
		st.P50,
		st.P85,
		st.P98,
		in.toUnit(in.Summary.Speeds.Average()),
		in.toUnit(in.Summary.Speeds.Max),
	}
	return
}

func percentileChart(in *Input) *charts.Bar {
	x, values := Distribution(in)
	y := []opts.BarData{}
	for _, v := range values {
		y = append(y, opts.BarData{Value: round2(v)})
	}
	subtitle := fmt.Sprintf("percentiles of the most recent %v frames (%v samples), mean and max of all %v frames, %v",
		len(in.Results), len(in.Speeds()), in.Summary.Frames, in.unitLabel())

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: "Speed distribution", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("speed", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
