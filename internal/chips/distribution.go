package chips

import (
	"math"
	"sort"
	"time"

	"stock-orderflow/internal/decay"
	"stock-orderflow/internal/model"
	"stock-orderflow/internal/wad"
)

// DefaultBucketCount is used when the caller does not size the histogram.
const DefaultBucketCount = 60

// wadPerturbScale converts WAD magnitude into a density perturbation factor.
const wadPerturbScale = 0.001

// DistributionOptions tune the WAD-enhanced simulation.
type DistributionOptions struct {
	DecayRate        float64
	UseHighFrequency bool
	PriceBucketCount int
	Unit             decay.Unit
	// HighFreqWindow sizes the sliding WAD window in high-frequency mode.
	HighFreqWindow int
	// Now anchors decay distances; zero value means time.Now().
	Now time.Time
}

// Distribution is one complete chip snapshot: the histogram plus every
// derived reading the dashboard layer consumes.
type Distribution struct {
	Buckets      []Bucket  `json:"buckets"`
	HHI          float64   `json:"hhi"`
	Peaks        PeakInfo  `json:"peaks"`
	Levels       Levels    `json:"levels"`
	WadFactor    float64   `json:"wadFactor"`
	TotalVolume  int64     `json:"totalVolume"`
	MinPrice     float64   `json:"minPrice"`
	MaxPrice     float64   `json:"maxPrice"`
	CurrentPrice float64   `json:"currentPrice"`
	GeneratedAt  time.Time `json:"generatedAt"`
}

// WADEnhanced buckets the series into a holding-cost histogram, decaying each
// bar's volume by age and perturbing it by the WAD magnitude at that bar, so
// price levels visited while money flow is moving strongly accumulate extra
// density. Bucket raw volumes always sum to the total input volume.
func WADEnhanced(series []model.OhlcBar, currentPrice float64, opts DistributionOptions) Distribution {
	dist := Distribution{
		Buckets:      []Bucket{},
		Peaks:        PeakInfo{Peaks: []Peak{}},
		Levels:       Levels{SupportLevels: []Level{}, ResistanceLevels: []Level{}, SupportResistanceRatio: 1},
		CurrentPrice: currentPrice,
		GeneratedAt:  time.Now(),
	}
	if len(series) == 0 {
		return dist
	}

	if opts.PriceBucketCount <= 0 {
		opts.PriceBucketCount = DefaultBucketCount
	}
	if opts.HighFreqWindow <= 0 {
		opts.HighFreqWindow = 20
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	wadOpts := wad.Options{
		DecayRate:           opts.DecayRate,
		UseExponentialDecay: opts.DecayRate > 0,
		Unit:                opts.Unit,
		Now:                 opts.Now,
	}
	points := wad.Cumulative(series, wadOpts)
	perturbs := perturbFactors(series, points, opts, wadOpts)

	bars := make([]model.OhlcBar, len(series))
	copy(bars, series)
	// points came back sorted; mirror that order for bar/point alignment.
	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})

	minPrice, maxPrice := math.Inf(1), math.Inf(-1)
	for _, bar := range bars {
		if bar.Close < minPrice {
			minPrice = bar.Close
		}
		if bar.Close > maxPrice {
			maxPrice = bar.Close
		}
	}

	count := opts.PriceBucketCount
	if minPrice == maxPrice {
		count = 1
	}
	width := (maxPrice - minPrice) / float64(count)

	buckets := make([]Bucket, count)
	for i := range buckets {
		buckets[i].Price = minPrice + width*(float64(i)+0.5)
	}
	if count == 1 {
		buckets[0].Price = minPrice
	}

	var totalVolume int64
	for i, bar := range bars {
		idx := 0
		if width > 0 {
			idx = int((bar.Close - minPrice) / width)
			if idx >= count {
				idx = count - 1
			}
		}

		weight := decay.Weight(bar.Timestamp, opts.Now, opts.DecayRate, opts.Unit)
		// Chip weighting clamps into [0,1]; future-dated bars get no bonus.
		if weight > 1 {
			weight = 1
		} else if weight < 0 {
			weight = 0
		}

		buckets[idx].Volume += bar.Volume
		buckets[idx].WeightedVolume += float64(bar.Volume) * weight * perturbs[i]
		buckets[idx].Count++
		totalVolume += bar.Volume
	}

	finalWad := points[len(points)-1].CumulativeWad

	dist.Buckets = buckets
	dist.HHI = HHI(buckets)
	dist.Peaks = IdentifyPeaks(buckets, true)
	dist.Levels = SupportResistance(buckets, currentPrice, true)
	dist.WadFactor = math.Min(1, math.Abs(finalWad)*wadPerturbScale)
	dist.TotalVolume = totalVolume
	dist.MinPrice = minPrice
	dist.MaxPrice = maxPrice
	return dist
}

// perturbFactors returns the 1+|wad|·0.001 factor per bar. High-frequency
// mode reads the sliding-window WAD instead of the full cumulative series;
// bars before the first complete window stay unperturbed.
func perturbFactors(series []model.OhlcBar, points []wad.Point, opts DistributionOptions, wadOpts wad.Options) []float64 {
	factors := make([]float64, len(points))
	for i := range factors {
		factors[i] = 1
	}

	if opts.UseHighFrequency && len(series) >= opts.HighFreqWindow {
		windowed := wad.Windowed(series, opts.HighFreqWindow, wadOpts)
		offset := len(points) - len(windowed)
		for i, wp := range windowed {
			factors[offset+i] = 1 + math.Abs(wp.WindowWad)*wadPerturbScale
		}
		return factors
	}

	for i, p := range points {
		factors[i] = 1 + math.Abs(p.CumulativeWad)*wadPerturbScale
	}
	return factors
}
