// Package threshold derives adaptive "large order" classification thresholds
// from trade samples, in an analytical (full descriptive statistics) and an
// efficient (bounded recent sample, optionally robust) variant.
package threshold

import (
	"math"
	"sort"
	"time"

	"stock-orderflow/internal/model"
)

// madScale converts a median absolute deviation into a normal-consistent
// standard deviation estimate.
const madScale = 1.4826

// maxSampleSize bounds the efficient estimator to the most recent trades.
const maxSampleSize = 1000

// Dynamic is a point-in-time threshold estimate. It is never updated
// incrementally; it is re-derived from a bounded recent sample whenever that
// sample changes.
type Dynamic struct {
	Mean           float64       `json:"mean"`
	Std            float64       `json:"std"`
	Threshold      float64       `json:"threshold"`
	UpperThreshold float64       `json:"upperThreshold"`
	N              float64       `json:"n"`
	OrderCount     int           `json:"orderCount"`
	TimeWindow     time.Duration `json:"timeWindow"`
	Robust         bool          `json:"robust"`
	Median         float64       `json:"median,omitempty"`
	MAD            float64       `json:"mad,omitempty"`
}

// Enhanced extends Dynamic with full descriptive statistics for the batch
// analytical path.
type Enhanced struct {
	Dynamic
	Mode         float64 `json:"mode"`
	Q1           float64 `json:"q1"`
	Q3           float64 `json:"q3"`
	IQR          float64 `json:"iqr"`
	OutlierCount int     `json:"outlierCount"`
}

// CalculateEnhanced computes mean, population std, threshold = mean + n·std,
// and the full descriptive block (median, mode, nearest-rank quartiles, IQR,
// 1.5×IQR outlier fence). O(n log n) due to sorting. Empty input yields a
// zero-valued struct, never an error.
func CalculateEnhanced(trades []model.TradeEvent, n float64) Enhanced {
	result := Enhanced{Dynamic: Dynamic{N: n}}
	if len(trades) == 0 {
		return result
	}

	amounts := make([]float64, len(trades))
	var sum float64
	for i, tr := range trades {
		amounts[i] = float64(tr.Amount)
		sum += amounts[i]
	}
	mean := sum / float64(len(amounts))

	var sq float64
	for _, a := range amounts {
		d := a - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(len(amounts)))

	sort.Float64s(amounts)

	result.Mean = mean
	result.Std = std
	result.Threshold = mean + n*std
	result.UpperThreshold = mean + 3*std
	result.OrderCount = len(amounts)
	result.Median = medianSorted(amounts)
	result.Mode = modeSorted(amounts)
	result.Q1 = nearestRank(amounts, 0.25)
	result.Q3 = nearestRank(amounts, 0.75)
	result.IQR = result.Q3 - result.Q1

	lowFence := result.Q1 - 1.5*result.IQR
	highFence := result.Q3 + 1.5*result.IQR
	for _, a := range amounts {
		if a < lowFence || a > highFence {
			result.OutlierCount++
		}
	}
	return result
}

// CalculateEfficient estimates the threshold from the most recent trades:
// at most 1000, and when timeWindow is positive only those within the window
// ending at the newest trade. The default path uses running-sum mean/std;
// useRobustStats switches to median + MAD·1.4826, which one-off extreme
// prints cannot distort.
func CalculateEfficient(trades []model.TradeEvent, n float64, useRobustStats bool, timeWindow time.Duration) Dynamic {
	result := Dynamic{N: n, TimeWindow: timeWindow, Robust: useRobustStats}
	sample := recentSample(trades, timeWindow)
	if len(sample) == 0 {
		return result
	}

	var sum, sq float64
	for _, tr := range sample {
		a := float64(tr.Amount)
		sum += a
		sq += a * a
	}
	count := float64(len(sample))
	mean := sum / count
	variance := sq/count - mean*mean
	if variance < 0 {
		// float error guard for near-constant samples
		variance = 0
	}

	result.Mean = mean
	result.Std = math.Sqrt(variance)
	result.OrderCount = len(sample)

	if useRobustStats {
		amounts := make([]float64, len(sample))
		for i, tr := range sample {
			amounts[i] = float64(tr.Amount)
		}
		sort.Float64s(amounts)
		med := medianSorted(amounts)

		deviations := make([]float64, len(amounts))
		for i, a := range amounts {
			deviations[i] = math.Abs(a - med)
		}
		sort.Float64s(deviations)
		mad := medianSorted(deviations) * madScale

		result.Median = med
		result.MAD = mad
		result.Threshold = med + n*mad
		result.UpperThreshold = med + 3*mad
		return result
	}

	result.Threshold = mean + n*result.Std
	result.UpperThreshold = mean + 3*result.Std
	return result
}

// Center returns the location estimate classification ratios divide by:
// the median in robust mode, the mean otherwise.
func (d Dynamic) Center() float64 {
	if d.Robust {
		return d.Median
	}
	return d.Mean
}

func recentSample(trades []model.TradeEvent, timeWindow time.Duration) []model.TradeEvent {
	if len(trades) == 0 {
		return nil
	}

	sample := trades
	if timeWindow > 0 {
		latest := trades[0].Time
		for _, tr := range trades {
			if tr.Time.After(latest) {
				latest = tr.Time
			}
		}
		cutoff := latest.Add(-timeWindow)
		filtered := make([]model.TradeEvent, 0, len(trades))
		for _, tr := range trades {
			if !tr.Time.Before(cutoff) {
				filtered = append(filtered, tr)
			}
		}
		sample = filtered
	}

	if len(sample) > maxSampleSize {
		sample = sample[len(sample)-maxSampleSize:]
	}
	return sample
}

func medianSorted(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// nearestRank returns the q-quantile by the nearest-rank method.
func nearestRank(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(q * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

// modeSorted returns the most frequent exact amount; ties resolve to the
// smallest value because the input is sorted.
func modeSorted(sorted []float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	mode := sorted[0]
	bestRun, run := 1, 1
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			run++
		} else {
			run = 1
		}
		if run > bestRun {
			bestRun = run
			mode = sorted[i]
		}
	}
	return mode
}
