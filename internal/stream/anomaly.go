package stream

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"stock-orderflow/internal/model"
	"stock-orderflow/internal/threshold"
)

// AnomalyType is the closed set of detected anomaly kinds.
type AnomalyType string

const (
	AnomalyVolumeSpike     AnomalyType = "volume_spike"
	AnomalyPriceJump       AnomalyType = "price_jump"
	AnomalyDirectionalFlow AnomalyType = "directional_flow"
	AnomalyFrequencySpike  AnomalyType = "frequency_spike"
)

// Anomaly is one detected irregularity in a closed batch of trades.
type Anomaly struct {
	Type        AnomalyType      `json:"type"`
	Order       model.TradeEvent `json:"order"`
	Confidence  float64          `json:"confidence"`
	Ratio       float64          `json:"ratio"`
	Description string           `json:"description"`
	Timestamp   time.Time        `json:"timestamp"`
}

const (
	// minReportConfidence filters noise from the anomaly report.
	minReportConfidence = 0.3

	volumeSpikeRatio   = 3.0
	priceJumpPct       = 0.02
	directionalCut     = 0.6
	frequencyMultiple  = 2.0
	frequencyGroupSize = 5
)

// DetectAnomalies scans a closed batch for volume spikes, price jumps,
// directional flow imbalance, and frequency spikes. Only anomalies with
// confidence above 0.3 are reported, sorted by descending confidence.
// The function is pure: it never touches processor state.
func DetectAnomalies(trades []model.TradeEvent, thr threshold.Dynamic) []Anomaly {
	if len(trades) == 0 {
		return []Anomaly{}
	}

	ordered := make([]model.TradeEvent, len(trades))
	copy(ordered, trades)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Time.Before(ordered[j].Time)
	})

	anomalies := make([]Anomaly, 0)
	anomalies = append(anomalies, detectVolumeSpikes(ordered, thr)...)
	anomalies = append(anomalies, detectPriceJumps(ordered)...)
	anomalies = append(anomalies, detectDirectionalFlow(ordered)...)
	anomalies = append(anomalies, detectFrequencySpikes(ordered)...)

	filtered := anomalies[:0]
	for _, a := range anomalies {
		if a.Confidence > minReportConfidence {
			filtered = append(filtered, a)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Confidence > filtered[j].Confidence
	})
	return filtered
}

func detectVolumeSpikes(trades []model.TradeEvent, thr threshold.Dynamic) []Anomaly {
	mean := thr.Center()
	if mean <= 0 {
		var sum float64
		for _, tr := range trades {
			sum += float64(tr.Amount)
		}
		mean = sum / float64(len(trades))
	}
	if mean <= 0 {
		return nil
	}

	out := make([]Anomaly, 0)
	for _, tr := range trades {
		ratio := float64(tr.Amount) / mean
		if ratio < volumeSpikeRatio {
			continue
		}
		out = append(out, Anomaly{
			Type:        AnomalyVolumeSpike,
			Order:       tr,
			Confidence:  math.Min(1, ratio/(2*volumeSpikeRatio)),
			Ratio:       ratio,
			Description: fmt.Sprintf("order amount %.1fx the batch mean", ratio),
			Timestamp:   tr.Time,
		})
	}
	return out
}

func detectPriceJumps(trades []model.TradeEvent) []Anomaly {
	out := make([]Anomaly, 0)
	for i := 1; i < len(trades); i++ {
		prev := trades[i-1].Price
		if prev <= 0 {
			continue
		}
		jump := math.Abs(trades[i].Price-prev) / prev
		if jump < priceJumpPct {
			continue
		}
		out = append(out, Anomaly{
			Type:        AnomalyPriceJump,
			Order:       trades[i],
			Confidence:  math.Min(1, jump/(2.5*priceJumpPct)),
			Ratio:       jump,
			Description: fmt.Sprintf("price moved %.2f%% between consecutive prints", jump*100),
			Timestamp:   trades[i].Time,
		})
	}
	return out
}

func detectDirectionalFlow(trades []model.TradeEvent) []Anomaly {
	var buy, sell int64
	var biggest model.TradeEvent
	for _, tr := range trades {
		if tr.Direction == model.DirectionBuy {
			buy += tr.Amount
		} else {
			sell += tr.Amount
		}
	}
	total := buy + sell
	if total <= 0 {
		return nil
	}

	imbalance := math.Abs(float64(buy-sell)) / float64(total)
	if imbalance < directionalCut {
		return nil
	}

	dominant := model.DirectionBuy
	if sell > buy {
		dominant = model.DirectionSell
	}
	for _, tr := range trades {
		if tr.Direction == dominant && tr.Amount > biggest.Amount {
			biggest = tr
		}
	}

	return []Anomaly{{
		Type:        AnomalyDirectionalFlow,
		Order:       biggest,
		Confidence:  imbalance,
		Ratio:       imbalance,
		Description: fmt.Sprintf("%.0f%% of batch amount flowed %s", imbalance*100, dominant),
		Timestamp:   biggest.Time,
	}}
}

func detectFrequencySpikes(trades []model.TradeEvent) []Anomaly {
	if len(trades) <= frequencyGroupSize {
		return nil
	}

	span := trades[len(trades)-1].Time.Sub(trades[0].Time)
	if span <= 0 {
		return nil
	}
	avgInterval := span / time.Duration(len(trades)-1)

	out := make([]Anomaly, 0)
	for i := frequencyGroupSize; i < len(trades); i++ {
		local := trades[i].Time.Sub(trades[i-frequencyGroupSize].Time)
		if local <= 0 {
			continue
		}
		localInterval := local / frequencyGroupSize
		ratio := float64(avgInterval) / float64(localInterval)
		if ratio < frequencyMultiple {
			continue
		}
		out = append(out, Anomaly{
			Type:        AnomalyFrequencySpike,
			Order:       trades[i],
			Confidence:  math.Min(1, ratio/(2*frequencyMultiple)),
			Ratio:       ratio,
			Description: fmt.Sprintf("local trade frequency %.1fx the batch average", ratio),
			Timestamp:   trades[i].Time,
		})
	}
	return out
}

// GenerateAlert renders a human-readable alert line for an anomaly. Low
// confidence anomalies produce no alert; the boolean mirrors that.
func GenerateAlert(a Anomaly) (string, bool) {
	if a.Confidence <= 0.5 {
		return "", false
	}
	amount := decimal.New(a.Order.Amount, -2)
	return fmt.Sprintf("[%s] %s | amount %s | confidence %.2f | %s",
		a.Type, a.Timestamp.UTC().Format(time.RFC3339), amount.StringFixed(2), a.Confidence, a.Description), true
}
