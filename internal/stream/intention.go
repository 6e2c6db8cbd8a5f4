package stream

import (
	"math"

	"stock-orderflow/internal/chips"
	"stock-orderflow/internal/model"
)

// Intention is the inferred motive behind a closed batch of large orders.
type Intention string

const (
	IntentionAccumulation   Intention = "accumulation"
	IntentionDistribution   Intention = "distribution"
	IntentionSupportBuy     Intention = "support_buy"
	IntentionResistanceSell Intention = "resistance_sell"
	IntentionPanicBuy       Intention = "panic_buy"
	IntentionPanicSell      Intention = "panic_sell"
	IntentionNormalTrade    Intention = "normal_trade"
	IntentionUnknown        Intention = "unknown"
)

const (
	panicBuyRatio      = 0.7
	panicTrendCut      = 0.02
	levelProximityPct  = 0.02
	levelFlowRatio     = 0.6
	steadyFlowRatio    = 0.65
	steadyTrendCeiling = 0.01
)

// IntentionParams carries everything the classifier looks at. Trend fields
// are fractional changes over the batch (0.03 = +3%).
type IntentionParams struct {
	Orders           []model.TradeEvent
	CurrentPrice     float64
	SupportLevels    []chips.Level
	ResistanceLevels []chips.Level
	PriceTrend       float64
	VolumeTrend      float64
}

// IntentionResult is the classification with its supporting evidence.
type IntentionResult struct {
	Intention  Intention `json:"intention"`
	Confidence float64   `json:"confidence"`
	BuyRatio   float64   `json:"buyRatio"`
	Reason     string    `json:"reason"`
}

// AnalyzeIntention classifies the flow behind a batch of orders. Rules fire
// in priority order: panic moves first, then chip-level interaction, then
// steady one-sided flow, falling through to normal trading.
func AnalyzeIntention(p IntentionParams) IntentionResult {
	if len(p.Orders) == 0 {
		return IntentionResult{Intention: IntentionUnknown, Confidence: 0, Reason: "no orders in batch"}
	}

	var buy, total int64
	for _, o := range p.Orders {
		total += o.Amount
		if o.Direction == model.DirectionBuy {
			buy += o.Amount
		}
	}
	if total <= 0 {
		return IntentionResult{Intention: IntentionUnknown, Confidence: 0, Reason: "batch carries no amount"}
	}
	buyRatio := float64(buy) / float64(total)
	sellRatio := 1 - buyRatio

	// Panic: heavy one-sided flow riding a strong price move with rising volume.
	if p.VolumeTrend > 0 && math.Abs(p.PriceTrend) > panicTrendCut {
		if buyRatio > panicBuyRatio && p.PriceTrend > 0 {
			return result(IntentionPanicBuy, 0.5+buyRatio*math.Min(1, p.PriceTrend/panicTrendCut)/2, buyRatio,
				"one-sided buying chasing a sharp rally")
		}
		if sellRatio > panicBuyRatio && p.PriceTrend < 0 {
			return result(IntentionPanicSell, 0.5+sellRatio*math.Min(1, -p.PriceTrend/panicTrendCut)/2, buyRatio,
				"one-sided selling into a sharp decline")
		}
	}

	// Chip-level interaction: buying on a nearby support, selling into a
	// nearby resistance.
	if lvl, ok := nearestLevel(p.SupportLevels, p.CurrentPrice); ok && buyRatio > levelFlowRatio {
		return result(IntentionSupportBuy, 0.4+0.3*buyRatio+0.3*lvl.Reliability, buyRatio,
			"buy flow concentrated at a chip support level")
	}
	if lvl, ok := nearestLevel(p.ResistanceLevels, p.CurrentPrice); ok && sellRatio > levelFlowRatio {
		return result(IntentionResistanceSell, 0.4+0.3*sellRatio+0.3*lvl.Reliability, buyRatio,
			"sell flow concentrated at a chip resistance level")
	}

	// Steady one-sided flow on a flat tape reads as quiet position building
	// or unloading.
	if math.Abs(p.PriceTrend) < steadyTrendCeiling {
		if buyRatio > steadyFlowRatio {
			return result(IntentionAccumulation, 0.3+0.6*buyRatio, buyRatio,
				"persistent buying without moving price")
		}
		if sellRatio > steadyFlowRatio {
			return result(IntentionDistribution, 0.3+0.6*sellRatio, buyRatio,
				"persistent selling without moving price")
		}
	}

	return result(IntentionNormalTrade, 0.3+0.4*(1-math.Abs(buyRatio-0.5)*2), buyRatio, "no dominant pattern")
}

func result(kind Intention, confidence, buyRatio float64, reason string) IntentionResult {
	return IntentionResult{
		Intention:  kind,
		Confidence: clamp01(confidence),
		BuyRatio:   buyRatio,
		Reason:     reason,
	}
}

// nearestLevel finds the level closest to price within the proximity band.
func nearestLevel(levels []chips.Level, price float64) (chips.Level, bool) {
	if price <= 0 {
		return chips.Level{}, false
	}
	best := chips.Level{}
	found := false
	for _, lvl := range levels {
		dist := math.Abs(lvl.Price-price) / price
		if dist > levelProximityPct {
			continue
		}
		if !found || math.Abs(lvl.Price-price) < math.Abs(best.Price-price) {
			best = lvl
			found = true
		}
	}
	return best, found
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
