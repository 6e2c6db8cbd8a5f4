package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"stock-orderflow/internal/chips"
	"stock-orderflow/internal/decay"
	"stock-orderflow/internal/model"
	"stock-orderflow/internal/stream"
	"stock-orderflow/internal/threshold"
	"stock-orderflow/internal/wad"
)

// AnalyzeOptions configure the offline analysis command.
type AnalyzeOptions struct {
	CSVPath         string
	BarInterval     time.Duration
	SignalThreshold float64
	SignalLookback  int
}

// Analyze 对一条 CSV 磁带做离线分析: 阈值统计、大单识别、WAD 信号、
// 筹码分布与批次意图, 结果以表格输出。
func (a *App) Analyze(ctx context.Context, opts AnalyzeOptions) error {
	trades, err := a.loadTape(ctx, opts.CSVPath)
	if err != nil {
		return err
	}
	if opts.BarInterval <= 0 {
		opts.BarInterval = time.Minute
	}
	if opts.SignalLookback <= 0 {
		opts.SignalLookback = 5
	}

	bars := aggregateBars(trades, opts.BarInterval)
	currentPrice := trades[len(trades)-1].Price

	enhanced := threshold.CalculateEnhanced(trades, a.Config.Processor.ThresholdN)
	results := threshold.IdentifyLargeOrders(trades, enhanced.Dynamic)

	unit := decay.UnitDay
	if parsed, err := decay.ParseUnit(a.Config.Chips.DecayUnit); err == nil {
		unit = parsed
	}
	wadOpts := wad.Options{
		DecayRate:           a.Config.Chips.DecayRate,
		UseExponentialDecay: a.Config.Chips.DecayRate > 0,
		Unit:                unit,
		Now:                 trades[len(trades)-1].Time,
	}
	points := wad.Cumulative(bars, wadOpts)

	sigThreshold := opts.SignalThreshold
	if sigThreshold <= 0 {
		sigThreshold = defaultSignalThreshold(points)
	}
	signals := wad.AdvancedSignals(bars, wadOpts, sigThreshold, opts.SignalLookback, false)

	dist := chips.WADEnhanced(bars, currentPrice, chips.DistributionOptions{
		DecayRate:        a.Config.Chips.DecayRate,
		UseHighFrequency: a.Config.Chips.UseHighFrequency,
		PriceBucketCount: a.Config.Chips.BucketCount,
		Unit:             unit,
		HighFreqWindow:   a.Config.Chips.HighFreqWindow,
		Now:              trades[len(trades)-1].Time,
	})

	anomalies := stream.DetectAnomalies(trades, enhanced.Dynamic)
	intention := stream.AnalyzeIntention(stream.IntentionParams{
		Orders:           largeOnly(results),
		CurrentPrice:     currentPrice,
		SupportLevels:    dist.Levels.SupportLevels,
		ResistanceLevels: dist.Levels.ResistanceLevels,
		PriceTrend:       priceTrend(bars),
		VolumeTrend:      volumeTrend(bars),
	})

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Trades\t%d\n", len(trades))
	fmt.Fprintf(writer, "Bars (%s)\t%d\n", opts.BarInterval, len(bars))
	fmt.Fprintf(writer, "Mean amount\t%.2f\n", enhanced.Mean)
	fmt.Fprintf(writer, "Std\t%.2f\n", enhanced.Std)
	fmt.Fprintf(writer, "Threshold\t%.2f\n", enhanced.Threshold)
	fmt.Fprintf(writer, "Median / Mode\t%.2f / %.2f\n", enhanced.Median, enhanced.Mode)
	fmt.Fprintf(writer, "Q1 / Q3 / IQR\t%.2f / %.2f / %.2f\n", enhanced.Q1, enhanced.Q3, enhanced.IQR)
	fmt.Fprintf(writer, "Outliers\t%d\n", enhanced.OutlierCount)
	fmt.Fprintf(writer, "Large orders\t%d\n", len(largeOnly(results)))
	if len(points) > 0 {
		fmt.Fprintf(writer, "Final WAD\t%.4f\n", points[len(points)-1].CumulativeWad)
	}
	fmt.Fprintf(writer, "WAD signals\t%d\n", len(signals))
	fmt.Fprintf(writer, "Chip HHI\t%.4f\n", dist.HHI)
	fmt.Fprintf(writer, "Chip peaks\t%d\n", len(dist.Peaks.Peaks))
	fmt.Fprintf(writer, "Support / Resistance\t%d / %d\n", len(dist.Levels.SupportLevels), len(dist.Levels.ResistanceLevels))
	fmt.Fprintf(writer, "Anomalies\t%d\n", len(anomalies))
	fmt.Fprintf(writer, "Intention\t%s (%.2f)\n", intention.Intention, intention.Confidence)
	writer.Flush()

	if len(anomalies) > 0 {
		fmt.Fprintln(os.Stdout)
		detail := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(detail, "Time (UTC)\tAnomaly\tConfidence\tDetail")
		for _, an := range anomalies {
			fmt.Fprintf(detail, "%s\t%s\t%.2f\t%s\n",
				an.Timestamp.UTC().Format(time.RFC3339), an.Type, an.Confidence, an.Description)
		}
		detail.Flush()
	}
	return nil
}

// defaultSignalThreshold scales the signal cut to the series' own magnitude.
func defaultSignalThreshold(points []wad.Point) float64 {
	if len(points) == 0 {
		return 1
	}
	var sum float64
	for _, p := range points {
		if p.CumulativeWad < 0 {
			sum -= p.CumulativeWad
		} else {
			sum += p.CumulativeWad
		}
	}
	avg := sum / float64(len(points))
	if avg <= 0 {
		return 1
	}
	return avg * 0.1
}

func largeOnly(results []threshold.LargeOrderResult) []model.TradeEvent {
	out := make([]model.TradeEvent, 0)
	for _, r := range results {
		if r.IsLargeOrder {
			out = append(out, r.Order)
		}
	}
	return out
}

// priceTrend is the fractional close-to-close move over the bar history.
func priceTrend(bars []model.OhlcBar) float64 {
	if len(bars) < 2 || bars[0].Close <= 0 {
		return 0
	}
	return (bars[len(bars)-1].Close - bars[0].Close) / bars[0].Close
}

// volumeTrend compares the back half of the bar history against the front.
func volumeTrend(bars []model.OhlcBar) float64 {
	if len(bars) < 2 {
		return 0
	}
	half := len(bars) / 2
	var front, back int64
	for i, b := range bars {
		if i < half {
			front += b.Volume
		} else {
			back += b.Volume
		}
	}
	if front <= 0 {
		return 0
	}
	return float64(back-front) / float64(front)
}
