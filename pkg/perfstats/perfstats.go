// Package perfstats keeps running totals for averages and peaks.
package perfstats

import "time"

// Accumulator tracks the number of samples, their sum, and the largest sample seen
type Accumulator struct {
	Samples int64   `json:"samples"`
	Total   float64 `json:"total"`
	Max     float64 `json:"max"`
}

func (a *Accumulator) Reset() {
	*a = Accumulator{}
}

func (a *Accumulator) AddSample(v float64) {
	if a.Samples == 0 || v > a.Max {
		a.Max = v
	}
	a.Samples++
	a.Total += v
}

func (a *Accumulator) Average() float64 {
	if a.Samples == 0 {
		return 0
	}
	return a.Total / float64(a.Samples)
}

// Accumulate samples of how long something took
type TimeAccumulator struct {
	Samples int64
	Total   time.Duration
	Max     time.Duration
}

func (a *TimeAccumulator) Reset() {
	*a = TimeAccumulator{}
}

func (a *TimeAccumulator) AddSample(v time.Duration) {
	a.Samples++
	a.Total += v
	a.Max = max(a.Max, v)
}

// Time a function, and add the duration as a sample
func (a *TimeAccumulator) Measure(f func()) {
	start := time.Now()
	f()
	a.AddSample(time.Since(start))
}

func (a *TimeAccumulator) Average() time.Duration {
	if a.Samples == 0 {
		return 0
	}
	return time.Duration(a.Total.Nanoseconds() / a.Samples)
}
