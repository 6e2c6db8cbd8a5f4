// Package app aggregates configuration and shared dependencies behind the CLI
// commands: the long-running service, offline analysis, export, and alert
// simulation.
package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"stock-orderflow/internal/alerting"
	"stock-orderflow/internal/config"
	"stock-orderflow/internal/feed"
	"stock-orderflow/internal/model"
	"stock-orderflow/internal/scheduler"
	"stock-orderflow/internal/service"
	"stock-orderflow/internal/statestore"
	"stock-orderflow/internal/stream"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

// openStore returns the PostgreSQL-backed state store when a DSN is
// configured and an in-memory store otherwise.
func (a *App) openStore(ctx context.Context) (statestore.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return statestore.NewMemory(), nil, nil
	}

	pool, err := statestore.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	store, err := statestore.NewPostgres(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, store.Close, nil
}

func (a *App) newProcessor(store statestore.Store) (*stream.Processor, error) {
	windows, err := a.Config.WindowConfigs()
	if err != nil {
		return nil, err
	}
	cfg := stream.Config{
		MaxBufferSize:       a.Config.Processor.MaxBufferSize,
		MaxResults:          a.Config.Processor.MaxResults,
		ThresholdN:          a.Config.Processor.ThresholdN,
		UseRobustStats:      a.Config.Processor.UseRobustStats,
		ThresholdTimeWindow: a.Config.Processor.ThresholdTimeWindow,
		RecomputeEvery:      a.Config.Processor.RecomputeEvery,
		RecomputeInterval:   a.Config.Processor.RecomputeInterval,
		CheckpointInterval:  a.Config.Processor.CheckpointInterval,
		CheckpointID:        a.Config.Processor.CheckpointID,
		Windows:             windows,
	}
	return stream.NewProcessor(cfg, store, a.Logger)
}

func (a *App) newSource(csvOverride string) (feed.TradeSource, error) {
	switch a.Config.Feed.Source {
	case "csv":
		path := a.Config.Feed.CSVPath
		if csvOverride != "" {
			path = csvOverride
		}
		if path == "" {
			return nil, errors.New("csv tape path not configured; set feed.csv_path or pass --csv")
		}
		return feed.NewCSVSource(path, a.Config.Feed.ReplaySpeed, a.Logger), nil
	case "websocket":
		return feed.NewWebsocketSource(
			a.Config.Feed.WebsocketURL,
			a.Config.Feed.ReconnectBackoff,
			a.Config.Feed.MaxReconnects,
			a.Logger,
		), nil
	default:
		return nil, fmt.Errorf("unknown feed source %q", a.Config.Feed.Source)
	}
}

// RunOptions configure the long-running service.
type RunOptions struct {
	CSVPath string
}

// Run executes the long-running stream processing service.
func (a *App) Run(ctx context.Context, opts RunOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}
	if a.Config.Database.DSN == "" {
		a.Logger.Warn().Msg("database.dsn not configured; checkpoints stay in memory")
	}

	processor, err := a.newProcessor(store)
	if err != nil {
		return err
	}
	if a.Config.Processor.RestoreOnStart {
		if processor.RestoreFromCheckpoint(ctx, a.Config.Processor.CheckpointID) {
			a.Logger.Info().Str("checkpoint_id", a.Config.Processor.CheckpointID).Msg("warm start from checkpoint")
		} else {
			a.Logger.Warn().Str("checkpoint_id", a.Config.Processor.CheckpointID).Msg("no usable checkpoint; cold start")
		}
	}

	source, err := a.newSource(opts.CSVPath)
	if err != nil {
		return err
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	svc := service.New(a.Config, source, processor, sched, store, a.newNotifier(), a.Logger)

	a.Logger.Info().Msg("starting orderflow service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("orderflow service stopped")
	return nil
}

// loadTape reads a full CSV tape into memory for offline commands.
func (a *App) loadTape(ctx context.Context, path string) ([]model.TradeEvent, error) {
	src := feed.NewCSVSource(path, 0, a.Logger)

	out := make(chan model.TradeEvent, 256)
	errCh := make(chan error, 1)
	go func() {
		errCh <- src.Stream(ctx, out)
		close(out)
	}()

	trades := make([]model.TradeEvent, 0, 1024)
	for ev := range out {
		trades = append(trades, ev)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	if len(trades) == 0 {
		return nil, errors.New("tape contains no parsable trades")
	}
	return trades, nil
}

// aggregateBars folds trades into fixed-interval OHLC bars.
func aggregateBars(trades []model.TradeEvent, interval time.Duration) []model.OhlcBar {
	if interval <= 0 {
		interval = time.Minute
	}

	bars := make([]model.OhlcBar, 0)
	var current *model.OhlcBar
	for _, ev := range trades {
		bucket := ev.Time.Truncate(interval)
		if current == nil || !current.Timestamp.Equal(bucket) {
			if current != nil {
				bars = append(bars, *current)
			}
			current = &model.OhlcBar{
				Timestamp: bucket,
				Open:      ev.Price,
				High:      ev.Price,
				Low:       ev.Price,
				Close:     ev.Price,
			}
		}
		if ev.Price > current.High {
			current.High = ev.Price
		}
		if ev.Price < current.Low {
			current.Low = ev.Price
		}
		current.Close = ev.Price
		current.Volume += ev.Volume
	}
	if current != nil {
		bars = append(bars, *current)
	}
	return bars
}
