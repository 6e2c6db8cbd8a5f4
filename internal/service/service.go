// Package service wires the trade feed into the stream processor and runs the
// periodic chip distribution snapshot alongside anomaly alert dispatch.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stock-orderflow/internal/alerting"
	"stock-orderflow/internal/chips"
	"stock-orderflow/internal/config"
	"stock-orderflow/internal/decay"
	"stock-orderflow/internal/feed"
	"stock-orderflow/internal/model"
	"stock-orderflow/internal/scheduler"
	"stock-orderflow/internal/statestore"
	"stock-orderflow/internal/stream"
)

// maxBars bounds the in-memory OHLC history used for chip snapshots.
const maxBars = 500

// anomalyLookback is how many recent trades each anomaly scan covers.
const anomalyLookback = 100

// Service orchestrates feeding, processing, snapshotting, and alerting.
type Service struct {
	cfg       *config.Config
	source    feed.TradeSource
	processor *stream.Processor
	sched     *scheduler.Scheduler
	store     statestore.Store
	notifier  alerting.Notifier
	logger    zerolog.Logger

	mu        sync.Mutex
	bars      []model.OhlcBar
	current   *model.OhlcBar
	lastAlert time.Time

	chipOpts chips.DistributionOptions
}

// New constructs the orderflow service.
func New(cfg *config.Config, source feed.TradeSource, processor *stream.Processor, sched *scheduler.Scheduler, store statestore.Store, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	unit := decay.UnitDay
	if parsed, err := decay.ParseUnit(cfg.Chips.DecayUnit); err == nil {
		unit = parsed
	}

	return &Service{
		cfg:       cfg,
		source:    source,
		processor: processor,
		sched:     sched,
		store:     store,
		notifier:  notifier,
		logger:    logger.With().Str("component", "service").Logger(),
		chipOpts: chips.DistributionOptions{
			DecayRate:        cfg.Chips.DecayRate,
			UseHighFrequency: cfg.Chips.UseHighFrequency,
			PriceBucketCount: cfg.Chips.BucketCount,
			Unit:             unit,
			HighFreqWindow:   cfg.Chips.HighFreqWindow,
		},
	}
}

// Run blocks until the feed is exhausted or ctx is cancelled. The checkpoint
// loop and the chip snapshot scheduler run alongside ingestion.
func (s *Service) Run(ctx context.Context) error {
	if s.source == nil {
		return fmt.Errorf("trade source not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := s.processor.Run(runCtx); err != nil && runCtx.Err() == nil {
			s.logger.Error().Err(err).Msg("checkpoint loop exited")
		}
	}()
	if s.sched != nil {
		go func() {
			if err := s.sched.Run(runCtx, s.SnapshotChips); err != nil && runCtx.Err() == nil {
				s.logger.Error().Err(err).Msg("snapshot scheduler exited")
			}
		}()
	}

	events := make(chan model.TradeEvent, 256)
	feedErr := make(chan error, 1)
	go func() {
		feedErr <- s.source.Stream(runCtx, events)
		close(events)
	}()

	for ev := range events {
		s.handleTrade(runCtx, ev)
	}
	if err := <-feedErr; err != nil && ctx.Err() == nil {
		return fmt.Errorf("trade feed: %w", err)
	}
	return ctx.Err()
}

// handleTrade ingests one trade and reacts to its classification.
func (s *Service) handleTrade(ctx context.Context, ev model.TradeEvent) {
	result := s.processor.ProcessOrder(ctx, ev)
	s.aggregateBar(ev)

	if !result.IsLargeOrder {
		return
	}
	s.logger.Info().
		Str("size_level", string(result.SizeLevel)).
		Int64("amount", ev.Amount).
		Str("direction", string(ev.Direction)).
		Float64("threshold_ratio", result.ThresholdRatio).
		Msg("检测到大单")

	s.scanAnomalies(ctx)
}

// aggregateBar folds the trade into the running one-minute OHLC bar.
func (s *Service) aggregateBar(ev model.TradeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	minute := ev.Time.Truncate(time.Minute)
	if s.current == nil || !s.current.Timestamp.Equal(minute) {
		if s.current != nil {
			s.bars = append(s.bars, *s.current)
			if len(s.bars) > maxBars {
				s.bars = s.bars[len(s.bars)-maxBars:]
			}
		}
		s.current = &model.OhlcBar{
			Timestamp: minute,
			Open:      ev.Price,
			High:      ev.Price,
			Low:       ev.Price,
			Close:     ev.Price,
		}
	}

	if ev.Price > s.current.High {
		s.current.High = ev.Price
	}
	if ev.Price < s.current.Low {
		s.current.Low = ev.Price
	}
	s.current.Close = ev.Price
	s.current.Volume += ev.Volume
}

// Bars returns a copy of the completed OHLC history.
func (s *Service) Bars() []model.OhlcBar {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.OhlcBar, len(s.bars))
	copy(out, s.bars)
	return out
}

// scanAnomalies runs the batch detectors over the recent tape and dispatches
// at most one alert per cooldown period.
func (s *Service) scanAnomalies(ctx context.Context) {
	if !s.cfg.Alerting.Enabled || s.notifier == nil {
		return
	}

	recent := s.processor.RecentOrders()
	if len(recent) > anomalyLookback {
		recent = recent[len(recent)-anomalyLookback:]
	}
	anomalies := stream.DetectAnomalies(recent, s.processor.CurrentThreshold())
	if len(anomalies) == 0 {
		return
	}

	top := anomalies[0]
	if top.Confidence < s.cfg.Alerting.MinConfidence {
		return
	}

	s.mu.Lock()
	now := time.Now()
	if now.Sub(s.lastAlert) < s.cfg.Alerting.Cooldown {
		s.mu.Unlock()
		return
	}
	s.lastAlert = now
	s.mu.Unlock()

	note := alerting.Notification{
		Symbol:      s.cfg.App.Symbol,
		AnomalyType: string(top.Type),
		Confidence:  decimal.NewFromFloat(top.Confidence),
		Amount:      decimal.New(top.Order.Amount, -2),
		Price:       decimal.NewFromFloat(top.Order.Price),
		Direction:   string(top.Order.Direction),
		OccurredAt:  top.Timestamp,
		Channels:    s.cfg.Alerting.Channels,
		Description: top.Description,
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Str("anomaly_type", string(top.Type)).Msg("failed to dispatch alert")
	}
}

// SnapshotChips 计算当前 OHLC 历史的筹码分布并写入状态存储。
func (s *Service) SnapshotChips(ctx context.Context, bucket time.Time) error {
	bars := s.Bars()
	if len(bars) < 2 {
		s.logger.Debug().Time("bucket", bucket).Msg("skip chip snapshot: not enough bars")
		return nil
	}

	dist := chips.WADEnhanced(bars, bars[len(bars)-1].Close, s.chipOpts)

	payload, err := json.Marshal(dist)
	if err != nil {
		return fmt.Errorf("marshal chip snapshot: %w", err)
	}
	key := "chips/" + bucket.UTC().Format(time.RFC3339)
	if s.store != nil {
		if err := s.store.Put(ctx, key, payload); err != nil {
			return fmt.Errorf("persist chip snapshot: %w", err)
		}
	}

	s.logger.Info().Time("bucket", bucket).
		Int("bars", len(bars)).
		Float64("hhi", dist.HHI).
		Msg("chip snapshot recorded")
	return nil
}
