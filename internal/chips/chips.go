// Package chips simulates a holding-cost ("chip") distribution from price and
// volume history and derives concentration, peak, and support/resistance
// readings from it.
package chips

import (
	"math"
	"sort"
)

// Bucket is one quantized price level of the distribution. Volume is the raw
// accumulated share count; WeightedVolume carries decay and WAD perturbation.
type Bucket struct {
	Price          float64 `json:"price"`
	Volume         int64   `json:"volume"`
	WeightedVolume float64 `json:"weightedVolume"`
	Count          int     `json:"count"`
}

// Peak describes one local concentration of chips.
type Peak struct {
	Price               float64 `json:"price"`
	Ratio               float64 `json:"ratio"`
	Volume              float64 `json:"volume"`
	Width               float64 `json:"width"`
	Dominance           float64 `json:"dominance"`
	Strength            float64 `json:"strength"`
	Reliability         float64 `json:"reliability"`
	CenterPrice         float64 `json:"centerPrice"`
	VolumeWeightedPrice float64 `json:"volumeWeightedPrice"`
}

// PeakInfo is the result of a peak scan. Peaks are read-only facts about one
// bucket set at one point in time and are always recomputed, never mutated.
type PeakInfo struct {
	Peaks        []Peak `json:"peaks"`
	DominantPeak Peak   `json:"dominantPeak"`
	IsSinglePeak bool   `json:"isSinglePeak"`
}

// LevelType classifies a level relative to the current price.
type LevelType string

const (
	LevelSupport    LevelType = "support"
	LevelResistance LevelType = "resistance"
)

// Level is a support or resistance price derived from a dense bucket zone.
type Level struct {
	Price       float64   `json:"price"`
	Strength    float64   `json:"strength"`
	Volume      float64   `json:"volume"`
	Reliability float64   `json:"reliability"`
	Distance    float64   `json:"distance"`
	Type        LevelType `json:"type"`
}

// Levels aggregates the support/resistance scan.
type Levels struct {
	SupportLevels          []Level `json:"supportLevels"`
	ResistanceLevels       []Level `json:"resistanceLevels"`
	StrongestSupport       *Level  `json:"strongestSupport,omitempty"`
	StrongestResistance    *Level  `json:"strongestResistance,omitempty"`
	SupportResistanceRatio float64 `json:"supportResistanceRatio"`
}

// effectiveVolume prefers the weighted density when the bucket set carries
// one, falling back to raw volume for unweighted bucket sets.
func effectiveVolume(b Bucket) float64 {
	if b.WeightedVolume > 0 {
		return b.WeightedVolume
	}
	return float64(b.Volume)
}

// HHI computes the Herfindahl–Hirschman concentration index over the bucket
// volume shares: 1/k for k equal buckets, 1.0 for a single bucket. Order of
// the input does not matter; an empty or zero-volume set yields 0.
func HHI(buckets []Bucket) float64 {
	var total float64
	for _, b := range buckets {
		total += effectiveVolume(b)
	}
	if total <= 0 {
		return 0
	}

	var hhi float64
	for _, b := range buckets {
		share := effectiveVolume(b) / total
		hhi += share * share
	}
	return hhi
}

// IdentifyPeaks scans for local volume maxima over the buckets sorted by
// price. Width expands left and right while bucket volume stays above half
// the peak's volume; strength favours peaks that are both large and narrow.
// Pass isSorted=true to skip the defensive sort. An empty input returns a
// zero-valued sentinel peak rather than an error.
func IdentifyPeaks(buckets []Bucket, isSorted bool) PeakInfo {
	if len(buckets) == 0 {
		return PeakInfo{Peaks: []Peak{}, DominantPeak: Peak{}}
	}

	sorted := ensureSorted(buckets, isSorted)

	var total float64
	for _, b := range sorted {
		total += effectiveVolume(b)
	}
	if total <= 0 {
		return PeakInfo{Peaks: []Peak{}, DominantPeak: Peak{}}
	}

	priceRange := sorted[len(sorted)-1].Price - sorted[0].Price

	peaks := make([]Peak, 0)
	for i := range sorted {
		if !isLocalMax(sorted, i) {
			continue
		}
		peaks = append(peaks, buildPeak(sorted, i, total, priceRange))
	}

	info := PeakInfo{Peaks: peaks}
	for _, p := range peaks {
		if p.Strength > info.DominantPeak.Strength {
			info.DominantPeak = p
		}
	}
	info.IsSinglePeak = info.DominantPeak.Dominance > 0.5
	return info
}

// isLocalMax treats boundary buckets as peaks when they exceed their single
// inward neighbour.
func isLocalMax(buckets []Bucket, i int) bool {
	v := effectiveVolume(buckets[i])
	if v <= 0 {
		return false
	}
	if i > 0 && effectiveVolume(buckets[i-1]) >= v {
		return false
	}
	if i < len(buckets)-1 && effectiveVolume(buckets[i+1]) >= v {
		return false
	}
	return true
}

func buildPeak(buckets []Bucket, i int, total, priceRange float64) Peak {
	peakVol := effectiveVolume(buckets[i])
	half := peakVol * 0.5

	left, right := i, i
	for left > 0 && effectiveVolume(buckets[left-1]) > half {
		left--
	}
	for right < len(buckets)-1 && effectiveVolume(buckets[right+1]) > half {
		right++
	}

	var regionVol, weightedPriceSum float64
	var regionCount int
	for j := left; j <= right; j++ {
		v := effectiveVolume(buckets[j])
		regionVol += v
		weightedPriceSum += buckets[j].Price * v
		regionCount += buckets[j].Count
	}

	width := buckets[right].Price - buckets[left].Price
	dominance := regionVol / total

	strength := dominance
	if priceRange > 0 {
		strength = dominance * (1 - width/priceRange)
	}

	var totalCount int
	for _, b := range buckets {
		totalCount += b.Count
	}
	countShare := 0.0
	if totalCount > 0 {
		countShare = float64(regionCount) / float64(totalCount)
	}

	vwap := buckets[i].Price
	if regionVol > 0 {
		vwap = weightedPriceSum / regionVol
	}

	return Peak{
		Price:               buckets[i].Price,
		Ratio:               peakVol / total,
		Volume:              regionVol,
		Width:               width,
		Dominance:           dominance,
		Strength:            strength,
		Reliability:         math.Min(1, 0.5*dominance+0.5*countShare),
		CenterPrice:         (buckets[left].Price + buckets[right].Price) / 2,
		VolumeWeightedPrice: vwap,
	}
}

// SupportResistance finds dense bucket zones (volume share above 1.5× the
// mean share) and classifies each as support or resistance relative to the
// supplied current price. Levels come back sorted nearest-to-price first.
func SupportResistance(buckets []Bucket, currentPrice float64, isSorted bool) Levels {
	result := Levels{SupportLevels: []Level{}, ResistanceLevels: []Level{}, SupportResistanceRatio: 1}
	if len(buckets) == 0 {
		return result
	}

	sorted := ensureSorted(buckets, isSorted)

	var total float64
	for _, b := range sorted {
		total += effectiveVolume(b)
	}
	if total <= 0 {
		return result
	}

	meanShare := 1.0 / float64(len(sorted))
	denseCut := 1.5 * meanShare

	for _, b := range sorted {
		v := effectiveVolume(b)
		share := v / total
		if share <= denseCut {
			continue
		}

		level := Level{
			Price:       b.Price,
			Strength:    share,
			Volume:      v,
			Reliability: math.Min(1, share/(3*meanShare)),
			Distance:    math.Abs(b.Price - currentPrice),
		}
		if b.Price < currentPrice {
			level.Type = LevelSupport
			result.SupportLevels = append(result.SupportLevels, level)
		} else {
			level.Type = LevelResistance
			result.ResistanceLevels = append(result.ResistanceLevels, level)
		}
	}

	sortByDistance(result.SupportLevels)
	sortByDistance(result.ResistanceLevels)

	result.StrongestSupport = strongest(result.SupportLevels)
	result.StrongestResistance = strongest(result.ResistanceLevels)

	supportSum := sumStrength(result.SupportLevels)
	resistanceSum := sumStrength(result.ResistanceLevels)
	switch {
	case resistanceSum > 0:
		result.SupportResistanceRatio = supportSum / resistanceSum
	case supportSum > 0:
		result.SupportResistanceRatio = 10
	default:
		result.SupportResistanceRatio = 1
	}

	return result
}

func ensureSorted(buckets []Bucket, isSorted bool) []Bucket {
	if isSorted {
		return buckets
	}
	sorted := make([]Bucket, len(buckets))
	copy(sorted, buckets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Price < sorted[j].Price
	})
	return sorted
}

func sortByDistance(levels []Level) {
	sort.SliceStable(levels, func(i, j int) bool {
		return levels[i].Distance < levels[j].Distance
	})
}

func strongest(levels []Level) *Level {
	var best *Level
	for i := range levels {
		if best == nil || levels[i].Strength > best.Strength {
			best = &levels[i]
		}
	}
	if best == nil {
		return nil
	}
	cp := *best
	return &cp
}

func sumStrength(levels []Level) float64 {
	var sum float64
	for _, l := range levels {
		sum += l.Strength
	}
	return sum
}
