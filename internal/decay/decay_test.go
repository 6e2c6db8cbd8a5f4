package decay

import (
	"math"
	"testing"
	"time"
)

func TestWeightZeroDelta(t *testing.T) {
	now := time.Now()
	if w := Weight(now, now, 0.1, UnitDay); w != 1.0 {
		t.Fatalf("Δt=0 时权重应精确为 1.0, 实际 %v", w)
	}
}

func TestWeightApproximationBound(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	for _, rate := range []float64{0.01, 0.1, 0.5, 1.0} {
		for d := 0.0; d <= 1.0; d += 0.125 {
			ts := now.Add(-time.Duration(d * 24 * float64(time.Hour)))
			got := Weight(ts, now, rate, UnitDay)
			exact := math.Exp(-rate * d)
			if diff := math.Abs(got - exact); diff > 0.018 {
				t.Fatalf("rate=%v Δt=%v 近似误差 %v 超过 0.018", rate, d, diff)
			}
		}
	}
}

func TestWeightExactFallback(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	// rate·Δt = 20 falls well outside the Taylor domain.
	ts := now.Add(-100 * 24 * time.Hour)
	got := Weight(ts, now, 0.2, UnitDay)
	exact := math.Exp(-20)
	if got != exact {
		t.Fatalf("域外应走精确指数: got=%v want=%v", got, exact)
	}
}

func TestWeightFutureTimestampNotClamped(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	ts := now.Add(12 * time.Hour)
	if w := Weight(ts, now, 0.1, UnitDay); w <= 1.0 {
		t.Fatalf("未来时间戳应产生大于 1 的权重, 实际 %v", w)
	}
}

func TestWeightsTableMatchesScalar(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	timestamps := make([]time.Time, 0, tableDays)
	for d := 0; d < tableDays; d++ {
		timestamps = append(timestamps, now.Add(-time.Duration(d)*24*time.Hour))
	}

	for _, rate := range tableRates {
		batch := Weights(timestamps, now, rate, UnitDay)
		for i, ts := range timestamps {
			scalar := Weight(ts, now, rate, UnitDay)
			if batch[i] != scalar {
				t.Fatalf("rate=%v 第 %d 天查表结果与标量路径不一致: %v != %v", rate, i, batch[i], scalar)
			}
		}
	}
}

func TestWeightsFractionalDayBypassesTable(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	ts := now.Add(-36 * time.Hour) // 1.5 天
	got := Weights([]time.Time{ts}, now, 0.1, UnitDay)
	want := Weight(ts, now, 0.1, UnitDay)
	if got[0] != want {
		t.Fatalf("非整天偏移应回退标量路径: %v != %v", got[0], want)
	}
}

func TestWeightsEmptyInput(t *testing.T) {
	if out := Weights(nil, time.Now(), 0.1, UnitDay); out != nil {
		t.Fatalf("空输入应返回 nil, 实际 %v", out)
	}
}

func TestWeightMonotoneInDelta(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	prev := math.Inf(1)
	for d := 0; d < 60; d++ {
		w := Weight(now.Add(-time.Duration(d)*24*time.Hour), now, 0.05, UnitDay)
		if w > prev {
			t.Fatalf("权重应随时间距离单调下降: 第 %d 天 %v > %v", d, w, prev)
		}
		if w <= 0 || w > 1 {
			t.Fatalf("过去时间戳的权重应落在 (0,1]: %v", w)
		}
		prev = w
	}
}
