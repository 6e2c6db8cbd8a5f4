package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"stock-orderflow/internal/alerting"
	"stock-orderflow/internal/model"
	"stock-orderflow/internal/stream"
	"stock-orderflow/internal/threshold"
)

// SimulateOptions tune the synthetic batch.
type SimulateOptions struct {
	Trades     int
	BasePrice  float64
	MeanAmount int64
	SpikeRatio float64
	Seed       int64
}

// SimulateAlert 构造一段单边放量的合成磁带, 跑完整的异常检测链路并通过
// 配置的通道推送一条真实告警, 用于验证告警配置。
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}
	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("未配置任何告警通道")
	}

	if opts.Trades <= 0 {
		opts.Trades = 50
	}
	if opts.BasePrice <= 0 {
		opts.BasePrice = 10
	}
	if opts.MeanAmount <= 0 {
		opts.MeanAmount = 100000
	}
	if opts.SpikeRatio <= 1 {
		opts.SpikeRatio = 5
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}

	trades := syntheticBatch(opts)
	thr := threshold.CalculateEfficient(trades, a.Config.Processor.ThresholdN, a.Config.Processor.UseRobustStats, 0)
	anomalies := stream.DetectAnomalies(trades, thr)
	if len(anomalies) == 0 {
		return errors.New("合成批次未产生异常, 请调大 --spike-ratio")
	}

	top := anomalies[0]
	a.Logger.Info().
		Str("anomaly_type", string(top.Type)).
		Float64("confidence", top.Confidence).
		Msg("simulated anomaly detected")

	note := alerting.Notification{
		Symbol:        a.Config.App.Symbol,
		AnomalyType:   string(top.Type),
		Confidence:    decimal.NewFromFloat(top.Confidence),
		Amount:        decimal.New(top.Order.Amount, -2),
		Price:         decimal.NewFromFloat(top.Order.Price),
		Direction:     string(top.Order.Direction),
		OccurredAt:    top.Timestamp,
		Channels:      a.Config.Alerting.Channels,
		Description:   top.Description,
		AdditionalMsg: "(simulated)",
	}
	if err := notifier.Notify(ctx, note); err != nil {
		return fmt.Errorf("dispatch simulated alert: %w", err)
	}
	return nil
}

// syntheticBatch builds a mostly one-sided buy tape with a handful of spikes.
func syntheticBatch(opts SimulateOptions) []model.TradeEvent {
	rng := rand.New(rand.NewSource(opts.Seed))
	base := time.Now().UTC().Add(-time.Duration(opts.Trades) * time.Second)

	trades := make([]model.TradeEvent, 0, opts.Trades)
	for i := 0; i < opts.Trades; i++ {
		amount := opts.MeanAmount + rng.Int63n(opts.MeanAmount/5+1)
		dir := model.DirectionBuy
		if i%10 == 9 {
			dir = model.DirectionSell
		}
		// Every tenth trade spikes well past the adaptive threshold.
		if i%10 == 5 {
			amount = int64(float64(opts.MeanAmount) * opts.SpikeRatio)
		}

		price := opts.BasePrice * (1 + 0.001*float64(i))
		volume := amount / int64(price*100)
		if volume <= 0 {
			volume = 1
		}
		trades = append(trades, model.TradeEvent{
			Time:      base.Add(time.Duration(i) * time.Second),
			Price:     price,
			Volume:    volume,
			Amount:    amount,
			Direction: dir,
		})
	}
	return trades
}
