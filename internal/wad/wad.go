// Package wad implements the Williams Accumulation/Distribution money-flow
// indicator: per-bar increments, decay-weighted cumulative series, and a
// fixed-size sliding-window variant for high-frequency use.
package wad

import (
	"math"
	"sort"
	"time"

	"stock-orderflow/internal/decay"
	"stock-orderflow/internal/model"
)

// DefaultMaxVolume normalises bar volume into [0,1] for volume weighting.
const DefaultMaxVolume = 1e8

// WeightType selects how the cumulative weighted series is decayed.
type WeightType int

const (
	// WeightTime applies pure time decay.
	WeightTime WeightType = iota
	// WeightVolume scales the time decay by normalised bar volume.
	WeightVolume
)

// Options tune the cumulative/windowed computations.
type Options struct {
	DecayRate           float64
	WeightType          WeightType
	UseExponentialDecay bool
	Unit                decay.Unit
	MaxVolume           float64
	// Now anchors decay distances; zero value means time.Now().
	Now time.Time
}

func (o Options) normalised() Options {
	if o.MaxVolume <= 0 {
		o.MaxVolume = DefaultMaxVolume
	}
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	return o
}

// OhlcPoint carries the fields needed for a single WAD increment.
type OhlcPoint struct {
	High          float64
	Low           float64
	Close         float64
	PreviousClose float64
}

// Point is one element of a cumulative WAD series. Cumulative fields are only
// valid relative to the full prefix processed so far; prepending older bars
// invalidates every downstream point and requires a full recomputation.
type Point struct {
	Timestamp             time.Time `json:"timestamp"`
	CumulativeWad         float64   `json:"cumulativeWad"`
	CumulativeWeightedWad float64   `json:"cumulativeWeightedWad"`
	RawIncrement          float64   `json:"rawIncrement"`
	Weight                float64   `json:"weight"`
}

// WindowedPoint is the sliding-window analogue of Point.
type WindowedPoint struct {
	Timestamp         time.Time `json:"timestamp"`
	WindowWad         float64   `json:"windowWad"`
	WindowWeightedWad float64   `json:"windowWeightedWad"`
	Close             float64   `json:"close"`
}

// Increment computes the per-bar WAD increment. The canonical form is
// MF = ((close−low)−(high−close))/TR, increment = MF·TR; a zero true range
// yields a zero increment.
func Increment(p OhlcPoint) float64 {
	tr := math.Max(p.High-p.Low, math.Max(math.Abs(p.High-p.PreviousClose), math.Abs(p.Low-p.PreviousClose)))
	if tr <= 0 {
		return 0
	}
	mf := ((p.Close - p.Low) - (p.High - p.Close)) / tr
	return mf * tr
}

// Cumulative runs a single forward pass over the bars and returns one Point
// per input bar. Input is sorted ascending by timestamp first (stable), so
// feeding the same bars in any order yields identical output. The first bar
// uses its own open as previous close.
func Cumulative(series []model.OhlcBar, opts Options) []Point {
	if len(series) == 0 {
		return []Point{}
	}
	opts = opts.normalised()

	bars := sortedByTime(series)
	points := make([]Point, len(bars))

	var cumWad, cumWeighted float64
	prevClose := bars[0].Open
	for i, bar := range bars {
		inc := Increment(OhlcPoint{High: bar.High, Low: bar.Low, Close: bar.Close, PreviousClose: prevClose})
		w := barWeight(bar, opts)

		cumWad += inc
		cumWeighted += inc * w

		points[i] = Point{
			Timestamp:             bar.Timestamp,
			CumulativeWad:         cumWad,
			CumulativeWeightedWad: cumWeighted,
			RawIncrement:          inc,
			Weight:                w,
		}
		prevClose = bar.Close
	}
	return points
}

// Windowed recomputes WAD over a fixed-size sliding window. Increments and
// weights are precomputed once; each output point sums the window ending at
// its bar. Inputs shorter than the window yield an empty result.
func Windowed(series []model.OhlcBar, windowSize int, opts Options) []WindowedPoint {
	if windowSize <= 0 || len(series) < windowSize {
		return []WindowedPoint{}
	}
	opts = opts.normalised()

	bars := sortedByTime(series)
	increments := make([]float64, len(bars))
	weights := make([]float64, len(bars))
	prevClose := bars[0].Open
	for i, bar := range bars {
		increments[i] = Increment(OhlcPoint{High: bar.High, Low: bar.Low, Close: bar.Close, PreviousClose: prevClose})
		weights[i] = barWeight(bar, opts)
		prevClose = bar.Close
	}

	out := make([]WindowedPoint, 0, len(bars)-windowSize+1)
	for end := windowSize - 1; end < len(bars); end++ {
		var sum, weighted float64
		for j := end - windowSize + 1; j <= end; j++ {
			sum += increments[j]
			weighted += increments[j] * weights[j]
		}
		out = append(out, WindowedPoint{
			Timestamp:         bars[end].Timestamp,
			WindowWad:         sum,
			WindowWeightedWad: weighted,
			Close:             bars[end].Close,
		})
	}
	return out
}

func barWeight(bar model.OhlcBar, opts Options) float64 {
	if !opts.UseExponentialDecay {
		return 1.0
	}
	w := decay.Weight(bar.Timestamp, opts.Now, opts.DecayRate, opts.Unit)
	if opts.WeightType == WeightVolume {
		scale := float64(bar.Volume) / opts.MaxVolume
		if scale > 1 {
			scale = 1
		}
		w *= scale
	}
	return w
}

func sortedByTime(series []model.OhlcBar) []model.OhlcBar {
	bars := make([]model.OhlcBar, len(series))
	copy(bars, series)
	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})
	return bars
}
