package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"stock-orderflow/internal/chips"
	"stock-orderflow/internal/decay"
	"stock-orderflow/internal/model"
	"stock-orderflow/internal/wad"
)

// ExportOptions hold parameters for exporting tape analytics.
type ExportOptions struct {
	TapePath    string
	PNGPath     string
	ChipPNGPath string
	CSVPath     string
	BarInterval time.Duration
	MaxPoints   int
}

// Export renders the WAD series and chip histogram as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" && opts.ChipPNGPath == "" {
		return errors.New("at least one of --csv, --png, or --chip-png must be provided")
	}
	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)
	if opts.BarInterval <= 0 {
		opts.BarInterval = time.Minute
	}

	trades, err := a.loadTape(ctx, opts.TapePath)
	if err != nil {
		return err
	}
	bars := aggregateBars(trades, opts.BarInterval)

	unit := decay.UnitDay
	if parsed, err := decay.ParseUnit(a.Config.Chips.DecayUnit); err == nil {
		unit = parsed
	}
	points := wad.Cumulative(bars, wad.Options{
		DecayRate:           a.Config.Chips.DecayRate,
		UseExponentialDecay: a.Config.Chips.DecayRate > 0,
		Unit:                unit,
		Now:                 trades[len(trades)-1].Time,
	})
	points = downsamplePoints(points, opts.MaxPoints)

	a.Logger.Info().Int("bars", len(bars)).Int("exported", len(points)).Msg("exporting tape analytics")

	if opts.CSVPath != "" {
		if err := writeWadCSV(opts.CSVPath, points); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		if err := writeWadPNG(opts.PNGPath, bars, points); err != nil {
			return err
		}
	}
	if opts.ChipPNGPath != "" {
		dist := chips.WADEnhanced(bars, trades[len(trades)-1].Price, chips.DistributionOptions{
			DecayRate:        a.Config.Chips.DecayRate,
			UseHighFrequency: a.Config.Chips.UseHighFrequency,
			PriceBucketCount: a.Config.Chips.BucketCount,
			Unit:             unit,
			HighFreqWindow:   a.Config.Chips.HighFreqWindow,
			Now:              trades[len(trades)-1].Time,
		})
		if err := writeChipPNG(opts.ChipPNGPath, dist); err != nil {
			return err
		}
	}
	return nil
}

func downsamplePoints(points []wad.Point, max int) []wad.Point {
	if max <= 0 || len(points) <= max {
		return points
	}

	result := make([]wad.Point, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writeWadCSV(path string, points []wad.Point) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"timestamp", "raw_increment", "cumulative_wad", "cumulative_weighted_wad"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, p := range points {
		record := []string{
			p.Timestamp.Format(time.RFC3339),
			strconv.FormatFloat(p.RawIncrement, 'f', -1, 64),
			strconv.FormatFloat(p.CumulativeWad, 'f', -1, 64),
			strconv.FormatFloat(p.CumulativeWeightedWad, 'f', -1, 64),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeWadPNG(path string, bars []model.OhlcBar, points []wad.Point) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	closeByTime := make(map[time.Time]float64, len(bars))
	for _, bar := range bars {
		closeByTime[bar.Timestamp] = bar.Close
	}

	x := make([]time.Time, len(points))
	closes := make([]float64, len(points))
	cumulative := make([]float64, len(points))
	for i, p := range points {
		x[i] = p.Timestamp
		closes[i] = closeByTime[p.Timestamp]
		cumulative[i] = p.CumulativeWad
	}

	valueFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Close",
			ValueFormatter: valueFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Cumulative WAD",
			ValueFormatter: valueFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Close",
				XValues: x,
				YValues: closes,
			},
			chart.TimeSeries{
				Name:    "WAD",
				XValues: x,
				YValues: cumulative,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func writeChipPNG(path string, dist chips.Distribution) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	if len(dist.Buckets) == 0 {
		return errors.New("chip distribution is empty")
	}

	values := make([]chart.Value, len(dist.Buckets))
	for i, b := range dist.Buckets {
		values[i] = chart.Value{
			Value: b.WeightedVolume,
			Label: fmt.Sprintf("%.2f", b.Price),
		}
	}

	graph := chart.BarChart{
		Title:    "Chip Distribution",
		Width:    1280,
		Height:   720,
		BarWidth: 12,
		Bars:     values,
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
