package threshold

import (
	"time"

	"stock-orderflow/internal/model"
)

// SizeLevel buckets an order by amount relative to the current threshold.
type SizeLevel string

const (
	SizeSmall  SizeLevel = "small"
	SizeMedium SizeLevel = "medium"
	SizeLarge  SizeLevel = "large"
	SizeExtra  SizeLevel = "extra"
	SizeHuge   SizeLevel = "huge"
)

// LargeOrderResult is the immutable classification of one order against a
// given threshold.
type LargeOrderResult struct {
	Order             model.TradeEvent `json:"order"`
	IsLargeOrder      bool             `json:"isLargeOrder"`
	IsExtraLargeOrder bool             `json:"isExtraLargeOrder"`
	IsHugeOrder       bool             `json:"isHugeOrder"`
	AmountRatio       float64          `json:"amountRatio"`
	ThresholdRatio    float64          `json:"thresholdRatio"`
	SizeLevel         SizeLevel        `json:"sizeLevel"`
	Timestamp         time.Time        `json:"timestamp"`
}

// IdentifySingleLargeOrder classifies one order. An amount must strictly
// exceed the threshold tier to land in it; zero center or zero threshold
// degrades to ratio 0 instead of dividing by zero.
func IdentifySingleLargeOrder(order model.TradeEvent, thr Dynamic) LargeOrderResult {
	amount := float64(order.Amount)

	result := LargeOrderResult{
		Order:     order,
		SizeLevel: SizeSmall,
		Timestamp: order.Time,
	}
	if center := thr.Center(); center > 0 {
		result.AmountRatio = amount / center
	}
	if thr.Threshold > 0 {
		result.ThresholdRatio = amount / thr.Threshold
	}

	switch {
	case amount > thr.Threshold*3 && thr.Threshold > 0:
		result.SizeLevel = SizeHuge
	case amount > thr.Threshold*1.5 && thr.Threshold > 0:
		result.SizeLevel = SizeExtra
	case amount > thr.Threshold && thr.Threshold > 0:
		result.SizeLevel = SizeLarge
	case amount > thr.Center():
		result.SizeLevel = SizeMedium
	}

	result.IsLargeOrder = thr.Threshold > 0 && amount > thr.Threshold
	result.IsExtraLargeOrder = thr.Threshold > 0 && amount > thr.Threshold*1.5
	result.IsHugeOrder = thr.Threshold > 0 && amount > thr.Threshold*3
	return result
}

// IdentifyLargeOrders classifies every trade in the batch against thr.
func IdentifyLargeOrders(trades []model.TradeEvent, thr Dynamic) []LargeOrderResult {
	results := make([]LargeOrderResult, len(trades))
	for i, tr := range trades {
		results[i] = IdentifySingleLargeOrder(tr, thr)
	}
	return results
}
