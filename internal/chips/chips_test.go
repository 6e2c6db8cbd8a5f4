package chips

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"stock-orderflow/internal/decay"
	"stock-orderflow/internal/model"
)

func TestHHIEqualBuckets(t *testing.T) {
	for _, k := range []int{1, 4, 10} {
		buckets := make([]Bucket, k)
		for i := range buckets {
			buckets[i] = Bucket{Price: float64(10 + i), Volume: 100}
		}
		got := HHI(buckets)
		want := 1.0 / float64(k)
		if math.Abs(got-want) > 1e-12 {
			t.Fatalf("%d 个等量桶的 HHI 应为 %v, 实际 %v", k, want, got)
		}
	}
}

func TestHHIPermutationInvariant(t *testing.T) {
	buckets := []Bucket{
		{Price: 10, Volume: 500},
		{Price: 11, Volume: 1500},
		{Price: 12, Volume: 200},
		{Price: 13, Volume: 800},
	}
	want := HHI(buckets)

	shuffled := make([]Bucket, len(buckets))
	copy(shuffled, buckets)
	rand.New(rand.NewSource(3)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	if got := HHI(shuffled); got != want {
		t.Fatalf("HHI 应与桶顺序无关: %v != %v", got, want)
	}
}

func TestHHIBounds(t *testing.T) {
	if got := HHI(nil); got != 0 {
		t.Fatalf("空输入 HHI 应为 0, 实际 %v", got)
	}
	single := []Bucket{{Price: 10, Volume: 42}}
	if got := HHI(single); got != 1 {
		t.Fatalf("单桶 HHI 应为 1, 实际 %v", got)
	}
}

func TestIdentifyPeaksSingleBucket(t *testing.T) {
	info := IdentifyPeaks([]Bucket{{Price: 10.5, Volume: 1000, Count: 3}}, true)
	if len(info.Peaks) != 1 {
		t.Fatalf("单桶输入应识别出一个峰, 实际 %d", len(info.Peaks))
	}
	if info.DominantPeak.Price != 10.5 {
		t.Fatalf("主峰价格应为 10.5, 实际 %v", info.DominantPeak.Price)
	}
	if !info.IsSinglePeak {
		t.Fatalf("单桶分布应判定为单峰")
	}
	if info.DominantPeak.Dominance != 1 {
		t.Fatalf("单桶主峰支配度应为 1, 实际 %v", info.DominantPeak.Dominance)
	}
}

func TestIdentifyPeaksEmptySentinel(t *testing.T) {
	info := IdentifyPeaks(nil, true)
	if len(info.Peaks) != 0 {
		t.Fatalf("空输入不应产生峰")
	}
	if info.DominantPeak != (Peak{}) {
		t.Fatalf("空输入应返回零值哨兵峰, 实际 %+v", info.DominantPeak)
	}
	if info.IsSinglePeak {
		t.Fatalf("空输入不应判定为单峰")
	}
}

func TestIdentifyPeaksTwoHumps(t *testing.T) {
	// Two clear humps at 11 and 15 with a valley between.
	buckets := []Bucket{
		{Price: 10, Volume: 100},
		{Price: 11, Volume: 900},
		{Price: 12, Volume: 150},
		{Price: 13, Volume: 80},
		{Price: 14, Volume: 200},
		{Price: 15, Volume: 700},
		{Price: 16, Volume: 120},
	}
	info := IdentifyPeaks(buckets, true)
	if len(info.Peaks) != 2 {
		t.Fatalf("应识别出两个峰, 实际 %d: %+v", len(info.Peaks), info.Peaks)
	}
	if info.DominantPeak.Price != 11 {
		t.Fatalf("主峰应在 11, 实际 %v", info.DominantPeak.Price)
	}
	if info.IsSinglePeak {
		t.Fatalf("双峰分布不应判定为单峰")
	}
}

func TestIdentifyPeaksBoundary(t *testing.T) {
	buckets := []Bucket{
		{Price: 10, Volume: 900},
		{Price: 11, Volume: 100},
		{Price: 12, Volume: 80},
	}
	info := IdentifyPeaks(buckets, true)
	if len(info.Peaks) != 1 || info.Peaks[0].Price != 10 {
		t.Fatalf("首桶高于内侧邻居时应视为峰: %+v", info.Peaks)
	}
}

func TestIdentifyPeaksUnsortedInput(t *testing.T) {
	buckets := []Bucket{
		{Price: 12, Volume: 150},
		{Price: 10, Volume: 100},
		{Price: 11, Volume: 900},
	}
	info := IdentifyPeaks(buckets, false)
	if info.DominantPeak.Price != 11 {
		t.Fatalf("乱序输入经内部排序后主峰应在 11, 实际 %v", info.DominantPeak.Price)
	}
}

func TestSupportResistanceClassification(t *testing.T) {
	// Dense zones at 9 (below) and 13 (above) the current price 11.
	buckets := []Bucket{
		{Price: 8, Volume: 50},
		{Price: 9, Volume: 600},
		{Price: 10, Volume: 60},
		{Price: 11, Volume: 70},
		{Price: 12, Volume: 55},
		{Price: 13, Volume: 500},
		{Price: 14, Volume: 65},
	}
	levels := SupportResistance(buckets, 11, true)

	if len(levels.SupportLevels) != 1 || levels.SupportLevels[0].Price != 9 {
		t.Fatalf("9 应被识别为支撑位: %+v", levels.SupportLevels)
	}
	if len(levels.ResistanceLevels) != 1 || levels.ResistanceLevels[0].Price != 13 {
		t.Fatalf("13 应被识别为压力位: %+v", levels.ResistanceLevels)
	}
	if levels.StrongestSupport == nil || levels.StrongestSupport.Type != LevelSupport {
		t.Fatalf("最强支撑缺失或类型错误")
	}
	if levels.SupportResistanceRatio <= 1 {
		// Support zone carries more volume than the resistance zone.
		t.Fatalf("支撑强度更大时比值应大于 1, 实际 %v", levels.SupportResistanceRatio)
	}
}

func TestSupportResistanceRatioSpecialCases(t *testing.T) {
	// Only a support-side dense zone.
	supportOnly := []Bucket{
		{Price: 9, Volume: 900},
		{Price: 10, Volume: 50},
		{Price: 10.5, Volume: 50},
	}
	levels := SupportResistance(supportOnly, 12, true)
	if levels.SupportResistanceRatio != 10 {
		t.Fatalf("无压力位时比值应为 10, 实际 %v", levels.SupportResistanceRatio)
	}

	// No dense zone at all: three equal buckets never exceed 1.5× mean.
	flat := []Bucket{
		{Price: 9, Volume: 100},
		{Price: 10, Volume: 100},
		{Price: 11, Volume: 100},
	}
	levels = SupportResistance(flat, 10.5, true)
	if levels.SupportResistanceRatio != 1 {
		t.Fatalf("无任何密集区时比值应为 1, 实际 %v", levels.SupportResistanceRatio)
	}
	if len(levels.SupportLevels) != 0 || len(levels.ResistanceLevels) != 0 {
		t.Fatalf("均匀分布不应产生任何档位")
	}
}

func TestSupportResistanceNearestFirst(t *testing.T) {
	buckets := []Bucket{
		{Price: 5, Volume: 500},
		{Price: 9, Volume: 500},
		{Price: 10, Volume: 10},
		{Price: 11, Volume: 10},
	}
	levels := SupportResistance(buckets, 12, true)
	if len(levels.SupportLevels) < 2 {
		t.Fatalf("应有两个支撑位, 实际 %d", len(levels.SupportLevels))
	}
	if levels.SupportLevels[0].Price != 9 {
		t.Fatalf("支撑位应按距离由近到远排序, 首位 %v", levels.SupportLevels[0].Price)
	}
}

func TestWADEnhancedVolumeConservation(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	base := time.Date(2024, 5, 6, 9, 30, 0, 0, time.UTC)
	bars := make([]model.OhlcBar, 0, 120)
	price := 50.0
	var total int64
	for i := 0; i < 120; i++ {
		open := price
		close := open + rng.Float64()*0.8 - 0.4
		vol := 1000 + rng.Int63n(5000)
		bars = append(bars, model.OhlcBar{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      open,
			High:      math.Max(open, close) + 0.1,
			Low:       math.Min(open, close) - 0.1,
			Close:     close,
			Volume:    vol,
		})
		total += vol
		price = close
	}

	dist := WADEnhanced(bars, price, DistributionOptions{
		DecayRate:        0.05,
		PriceBucketCount: 40,
		Unit:             decay.UnitDay,
		Now:              bars[len(bars)-1].Timestamp,
	})

	var bucketTotal int64
	for _, b := range dist.Buckets {
		bucketTotal += b.Volume
	}
	if bucketTotal != total {
		t.Fatalf("桶内原始成交量之和应等于输入总量: %d != %d", bucketTotal, total)
	}
	if dist.TotalVolume != total {
		t.Fatalf("TotalVolume 字段不正确: %d != %d", dist.TotalVolume, total)
	}
	if dist.HHI <= 0 || dist.HHI > 1 {
		t.Fatalf("HHI 应落在 (0,1]: %v", dist.HHI)
	}
	if dist.WadFactor < 0 || dist.WadFactor > 1 {
		t.Fatalf("wadFactor 应落在 [0,1]: %v", dist.WadFactor)
	}
}

func TestWADEnhancedEmptyInput(t *testing.T) {
	dist := WADEnhanced(nil, 10, DistributionOptions{})
	if len(dist.Buckets) != 0 {
		t.Fatalf("空输入应返回空桶集")
	}
	if len(dist.Levels.SupportLevels) != 0 || len(dist.Levels.ResistanceLevels) != 0 {
		t.Fatalf("空输入不应有支撑/压力位")
	}
}

func TestWADEnhancedSinglePrice(t *testing.T) {
	base := time.Date(2024, 5, 6, 9, 30, 0, 0, time.UTC)
	bars := []model.OhlcBar{
		{Timestamp: base, Open: 10, High: 10, Low: 10, Close: 10, Volume: 100},
		{Timestamp: base.Add(time.Minute), Open: 10, High: 10, Low: 10, Close: 10, Volume: 200},
	}
	dist := WADEnhanced(bars, 10, DistributionOptions{PriceBucketCount: 30, Now: base.Add(time.Hour)})
	if len(dist.Buckets) != 1 {
		t.Fatalf("价格不变时应折叠为单桶, 实际 %d", len(dist.Buckets))
	}
	if dist.Buckets[0].Volume != 300 {
		t.Fatalf("单桶应容纳全部成交量, 实际 %d", dist.Buckets[0].Volume)
	}
	if !dist.Peaks.IsSinglePeak {
		t.Fatalf("单桶分布应判定为单峰")
	}
}
