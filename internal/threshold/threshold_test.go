package threshold

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"stock-orderflow/internal/model"
)

func tradeAt(ts time.Time, amount int64) model.TradeEvent {
	return model.TradeEvent{Time: ts, Price: 10, Volume: amount / 1000, Amount: amount, Direction: model.DirectionBuy}
}

func constantTrades(n int, amount int64) []model.TradeEvent {
	base := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)
	trades := make([]model.TradeEvent, n)
	for i := range trades {
		trades[i] = tradeAt(base.Add(time.Duration(i)*time.Second), amount)
	}
	return trades
}

func TestEnhancedConstantSample(t *testing.T) {
	trades := constantTrades(50, 500_000)
	thr := CalculateEnhanced(trades, 2)

	if thr.Std != 0 {
		t.Fatalf("等额样本标准差应为 0, 实际 %v", thr.Std)
	}
	if thr.Threshold != thr.Mean {
		t.Fatalf("std=0 时阈值应等于均值: %v != %v", thr.Threshold, thr.Mean)
	}
	for _, r := range IdentifyLargeOrders(trades, thr.Dynamic) {
		if r.IsLargeOrder {
			t.Fatalf("金额等于阈值不应判定为大单: %+v", r)
		}
	}
}

func TestEnhancedEmptyInput(t *testing.T) {
	thr := CalculateEnhanced(nil, 2)
	if thr.Mean != 0 || thr.Threshold != 0 || thr.OrderCount != 0 {
		t.Fatalf("空输入应退化为零值结构: %+v", thr)
	}
}

func TestEnhancedDescriptiveStats(t *testing.T) {
	base := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)
	amounts := []int64{100, 200, 200, 300, 400, 500, 10_000}
	trades := make([]model.TradeEvent, len(amounts))
	for i, a := range amounts {
		trades[i] = tradeAt(base.Add(time.Duration(i)*time.Second), a)
	}

	thr := CalculateEnhanced(trades, 2)
	if thr.Median != 300 {
		t.Fatalf("中位数应为 300, 实际 %v", thr.Median)
	}
	if thr.Mode != 200 {
		t.Fatalf("众数应为 200, 实际 %v", thr.Mode)
	}
	// nearest-rank: rank = ceil(0.25·7) = 2 → 200; ceil(0.75·7) = 6 → 500
	if thr.Q1 != 200 || thr.Q3 != 500 {
		t.Fatalf("四分位数不正确: Q1=%v Q3=%v", thr.Q1, thr.Q3)
	}
	if thr.IQR != 300 {
		t.Fatalf("IQR 应为 300, 实际 %v", thr.IQR)
	}
	// 10000 > Q3 + 1.5·IQR = 950
	if thr.OutlierCount != 1 {
		t.Fatalf("应识别出 1 个离群值, 实际 %d", thr.OutlierCount)
	}
}

func TestEnhancedKnownDistribution(t *testing.T) {
	rng := rand.New(rand.NewSource(2024))
	base := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)
	const (
		mean = 1_000_000.0
		std  = 200_000.0
	)
	trades := make([]model.TradeEvent, 1000)
	for i := range trades {
		amount := int64(rng.NormFloat64()*std + mean)
		if amount < 1 {
			amount = 1
		}
		trades[i] = tradeAt(base.Add(time.Duration(i)*time.Second), amount)
	}

	thr := CalculateEnhanced(trades, 2)
	if math.Abs(thr.Mean-mean)/mean > 0.01 {
		t.Fatalf("样本均值偏离超过 1%%: %v", thr.Mean)
	}
	if math.Abs(thr.Std-std)/std > 0.05 {
		t.Fatalf("样本标准差偏离过大: %v", thr.Std)
	}

	large := 0
	for _, r := range IdentifyLargeOrders(trades, thr.Dynamic) {
		if r.IsLargeOrder {
			large++
		}
	}
	// P(X > μ+2σ) ≈ 2.3% for a normal distribution.
	fraction := float64(large) / float64(len(trades))
	if fraction < 0.01 || fraction > 0.04 {
		t.Fatalf("大单占比应接近 2.3%%, 实际 %.2f%%", fraction*100)
	}
}

func TestEfficientMatchesEnhancedMoments(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	base := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)
	trades := make([]model.TradeEvent, 300)
	for i := range trades {
		trades[i] = tradeAt(base.Add(time.Duration(i)*time.Second), 100_000+rng.Int63n(900_000))
	}

	enhanced := CalculateEnhanced(trades, 2)
	efficient := CalculateEfficient(trades, 2, false, 0)

	if math.Abs(enhanced.Mean-efficient.Mean) > 1e-6*enhanced.Mean {
		t.Fatalf("两种路径的均值应一致: %v != %v", enhanced.Mean, efficient.Mean)
	}
	if math.Abs(enhanced.Std-efficient.Std) > 1e-6*math.Max(enhanced.Std, 1) {
		t.Fatalf("两种路径的标准差应一致: %v != %v", enhanced.Std, efficient.Std)
	}
}

func TestEfficientSampleBounds(t *testing.T) {
	trades := constantTrades(1500, 100)
	thr := CalculateEfficient(trades, 2, false, 0)
	if thr.OrderCount != 1000 {
		t.Fatalf("样本应截断到最近 1000 笔, 实际 %d", thr.OrderCount)
	}

	// Time window keeps only the final 10 minutes of a one-per-second tape.
	thr = CalculateEfficient(trades[:600], 2, false, 10*time.Minute)
	if thr.OrderCount != 600 {
		t.Fatalf("600 笔都在窗口内: 实际 %d", thr.OrderCount)
	}
	thr = CalculateEfficient(trades[:600], 2, false, time.Minute)
	if thr.OrderCount != 61 {
		t.Fatalf("一分钟窗口应保留 61 笔, 实际 %d", thr.OrderCount)
	}
}

func TestEfficientRobustResistsOutlier(t *testing.T) {
	trades := constantTrades(99, 100_000)
	base := trades[len(trades)-1].Time
	trades = append(trades, tradeAt(base.Add(time.Second), 100_000_000))

	plain := CalculateEfficient(trades, 3, false, 0)
	robust := CalculateEfficient(trades, 3, true, 0)

	if robust.Threshold >= plain.Threshold {
		t.Fatalf("稳健阈值应明显低于被极端值拉高的普通阈值: %v >= %v", robust.Threshold, plain.Threshold)
	}
	if robust.Median != 100_000 {
		t.Fatalf("稳健中位数应不受极端值影响: %v", robust.Median)
	}

	// The single extreme print is still flagged against the robust threshold.
	r := IdentifySingleLargeOrder(trades[len(trades)-1], robust)
	if !r.IsHugeOrder || r.SizeLevel != SizeHuge {
		t.Fatalf("极端大单应被判定为 huge: %+v", r)
	}
}

func TestIdentifySingleZeroThreshold(t *testing.T) {
	r := IdentifySingleLargeOrder(tradeAt(time.Now(), 500), Dynamic{})
	if r.AmountRatio != 0 || r.ThresholdRatio != 0 {
		t.Fatalf("零阈值下比率应退化为 0: %+v", r)
	}
	if r.IsLargeOrder {
		t.Fatalf("零阈值不应判定大单")
	}
}

func TestSizeLevelLadder(t *testing.T) {
	thr := Dynamic{Mean: 100, Std: 50, Threshold: 200, UpperThreshold: 250}
	cases := []struct {
		amount int64
		want   SizeLevel
	}{
		{50, SizeSmall},
		{100, SizeSmall},
		{150, SizeMedium},
		{250, SizeLarge},
		{301, SizeExtra},
		{601, SizeHuge},
	}
	for _, tc := range cases {
		r := IdentifySingleLargeOrder(tradeAt(time.Now(), tc.amount), thr)
		if r.SizeLevel != tc.want {
			t.Fatalf("金额 %d 档位应为 %s, 实际 %s", tc.amount, tc.want, r.SizeLevel)
		}
	}
}
