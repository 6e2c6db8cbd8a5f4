package wad

import (
	"math"
	"time"

	"stock-orderflow/internal/model"
)

// Signal is a buy/sell hint derived from WAD movement over a lookback span.
type Signal struct {
	Timestamp  time.Time        `json:"timestamp"`
	Kind       model.SignalKind `json:"kind"`
	Strength   float64          `json:"strength"`
	Confidence float64          `json:"confidence"`
	WadChange  float64          `json:"wadChange"`
}

// Signals compares WAD at each point against the point lookback steps earlier
// and emits a signal when the move exceeds threshold. Confidence reflects how
// consistently the per-step deltas agreed with the overall move direction.
// Inputs too short for the lookback yield an empty result.
func Signals(points []Point, threshold float64, lookback int, useWeighted bool) []Signal {
	if threshold <= 0 || lookback <= 0 || len(points) <= lookback {
		return []Signal{}
	}

	signals := make([]Signal, 0)
	for i := lookback; i < len(points); i++ {
		delta := value(points[i], useWeighted) - value(points[i-lookback], useWeighted)
		if math.Abs(delta) <= threshold {
			continue
		}

		consistent := 0
		for j := i - lookback + 1; j <= i; j++ {
			step := value(points[j], useWeighted) - value(points[j-1], useWeighted)
			if (step > 0) == (delta > 0) && step != 0 {
				consistent++
			}
		}

		signals = append(signals, Signal{
			Timestamp:  points[i].Timestamp,
			Kind:       kindOf(delta),
			Strength:   strengthOf(delta, threshold),
			Confidence: float64(consistent) / float64(lookback),
			WadChange:  delta,
		})
	}
	return signals
}

// AdvancedSignals refines confidence using WAD/price divergence: a WAD move
// against the price direction scores 0.8, co-movement scores 0.4–0.6 by
// strength. The bars are sorted and accumulated internally.
func AdvancedSignals(series []model.OhlcBar, opts Options, threshold float64, lookback int, useWeighted bool) []Signal {
	if threshold <= 0 || lookback <= 0 || len(series) <= lookback {
		return []Signal{}
	}

	bars := sortedByTime(series)
	points := Cumulative(bars, opts)

	signals := make([]Signal, 0)
	for i := lookback; i < len(points); i++ {
		delta := value(points[i], useWeighted) - value(points[i-lookback], useWeighted)
		if math.Abs(delta) <= threshold {
			continue
		}

		strength := strengthOf(delta, threshold)
		priceDelta := bars[i].Close - bars[i-lookback].Close

		confidence := 0.4 + 0.2*strength
		if priceDelta != 0 && (priceDelta > 0) != (delta > 0) {
			// Divergence between money flow and price carries more signal
			// than co-movement.
			confidence = 0.8
		}

		signals = append(signals, Signal{
			Timestamp:  points[i].Timestamp,
			Kind:       kindOf(delta),
			Strength:   strength,
			Confidence: confidence,
			WadChange:  delta,
		})
	}
	return signals
}

func value(p Point, useWeighted bool) float64 {
	if useWeighted {
		return p.CumulativeWeightedWad
	}
	return p.CumulativeWad
}

func kindOf(delta float64) model.SignalKind {
	if delta > 0 {
		return model.SignalBuy
	}
	return model.SignalSell
}

func strengthOf(delta, threshold float64) float64 {
	return math.Min(1, math.Abs(delta)/(2*threshold))
}
