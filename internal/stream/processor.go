// Package stream composes the adaptive threshold estimator and the windowing
// engine into the large-order stream processor: per-order classification,
// multi-window aggregation, periodic checkpoints, and batch anomaly and
// intention analysis.
package stream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"stock-orderflow/internal/model"
	"stock-orderflow/internal/statestore"
	"stock-orderflow/internal/threshold"
	"stock-orderflow/internal/window"
)

const (
	defaultMaxBufferSize      = 5000
	defaultMaxResults         = 1000
	defaultRecomputeEvery     = 100
	defaultRecomputeInterval  = time.Second
	defaultCheckpointInterval = 30 * time.Second
	defaultBatchChunkSize     = 200

	checkpointKeyPrefix = "checkpoint/"
)

// Config tunes the processor.
type Config struct {
	MaxBufferSize       int
	MaxResults          int
	ThresholdN          float64
	UseRobustStats      bool
	ThresholdTimeWindow time.Duration
	RecomputeEvery      int
	RecomputeInterval   time.Duration
	CheckpointInterval  time.Duration
	CheckpointID        string
	Windows             []window.Config
}

func (c Config) withDefaults() Config {
	if c.MaxBufferSize <= 0 {
		c.MaxBufferSize = defaultMaxBufferSize
	}
	if c.MaxResults <= 0 {
		c.MaxResults = defaultMaxResults
	}
	if c.ThresholdN <= 0 {
		c.ThresholdN = 2
	}
	if c.RecomputeEvery <= 0 {
		c.RecomputeEvery = defaultRecomputeEvery
	}
	if c.RecomputeInterval <= 0 {
		c.RecomputeInterval = defaultRecomputeInterval
	}
	if c.CheckpointInterval <= 0 {
		c.CheckpointInterval = defaultCheckpointInterval
	}
	if c.CheckpointID == "" {
		c.CheckpointID = "latest"
	}
	return c
}

// Statistics is the aggregate view over everything processed so far.
type Statistics struct {
	ProcessedCount    int64              `json:"processedCount"`
	LargeOrderCount   int64              `json:"largeOrderCount"`
	ExtraLargeCount   int64              `json:"extraLargeCount"`
	HugeOrderCount    int64              `json:"hugeOrderCount"`
	BuyAmount         int64              `json:"buyAmount"`
	SellAmount        int64              `json:"sellAmount"`
	BufferSize        int                `json:"bufferSize"`
	ActiveWindowCount int                `json:"activeWindowCount"`
	CurrentThreshold  threshold.Dynamic  `json:"currentThreshold"`
	LastProcessTime   time.Time          `json:"lastProcessTime"`
}

// WindowStatistics is the per-window aggregate with its window-local
// threshold, recomputed over the window's current element set.
type WindowStatistics struct {
	WindowID        string            `json:"windowId"`
	StartTime       time.Time         `json:"startTime"`
	EndTime         time.Time         `json:"endTime"`
	ElementCount    int               `json:"elementCount"`
	TotalAmount     int64             `json:"totalAmount"`
	BuyAmount       int64             `json:"buyAmount"`
	SellAmount      int64             `json:"sellAmount"`
	LargeOrderCount int               `json:"largeOrderCount"`
	Threshold       threshold.Dynamic `json:"threshold"`
	TriggerCount    int               `json:"triggerCount"`
	IsClosed        bool              `json:"isClosed"`
	LastUpdated     time.Time         `json:"lastUpdated"`
}

// checkpoint is the serialized best-effort snapshot. It enables a warm
// restart, not crash-safe persistence: window element sets are summarized,
// not replayed.
type checkpoint struct {
	TakenAt         time.Time                    `json:"takenAt"`
	Buffer          []model.TradeEvent           `json:"buffer"`
	Results         []threshold.LargeOrderResult `json:"results"`
	Threshold       threshold.Dynamic            `json:"threshold"`
	LastProcessTime time.Time                    `json:"lastProcessTime"`
	Windows         []checkpointWindow           `json:"windows"`
}

type checkpointWindow struct {
	Name      string           `json:"name"`
	Watermark window.Watermark `json:"watermark"`
	ActiveIDs []string         `json:"activeIds"`
	ClosedIDs []string         `json:"closedIds"`
}

// Processor owns all streaming state. It is safe for concurrent use; the
// single mutex covers ingestion and the background checkpoint timer.
type Processor struct {
	mu sync.Mutex

	cfg     Config
	buffer  []model.TradeEvent
	results []threshold.LargeOrderResult
	current threshold.Dynamic

	sinceRecompute int
	lastRecompute  time.Time

	engines     []*window.Engine
	windowStats map[string]WindowStatistics

	stats  Statistics
	store  statestore.Store
	logger zerolog.Logger
	clock  func() time.Time
}

// NewProcessor builds a processor with one window engine per configured
// window. store may be nil; checkpointing then becomes a no-op.
func NewProcessor(cfg Config, store statestore.Store, logger zerolog.Logger) (*Processor, error) {
	cfg = cfg.withDefaults()

	engines := make([]*window.Engine, 0, len(cfg.Windows))
	for _, wc := range cfg.Windows {
		eng, err := window.NewEngine(wc, store, logger)
		if err != nil {
			return nil, err
		}
		engines = append(engines, eng)
	}

	return &Processor{
		cfg:         cfg,
		buffer:      make([]model.TradeEvent, 0, cfg.MaxBufferSize),
		results:     make([]threshold.LargeOrderResult, 0, cfg.MaxResults),
		engines:     engines,
		windowStats: make(map[string]WindowStatistics),
		store:       store,
		logger:      logger.With().Str("component", "stream_processor").Logger(),
		clock:       time.Now,
	}, nil
}

// ProcessOrder ingests one trade: buffers it, refreshes the adaptive
// threshold when due, classifies the trade, and routes it into every active
// window.
func (p *Processor) ProcessOrder(ctx context.Context, ev model.TradeEvent) threshold.LargeOrderResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processLocked(ctx, ev, nil)
}

// processLocked runs the ingestion pipeline. When pre is non-nil the
// classification was already computed against a snapshot threshold (batch
// path) and is recorded as-is.
func (p *Processor) processLocked(ctx context.Context, ev model.TradeEvent, pre *threshold.LargeOrderResult) threshold.LargeOrderResult {
	now := p.clock()

	p.buffer = append(p.buffer, ev)
	if len(p.buffer) > p.cfg.MaxBufferSize {
		// Oldest entries are silently evicted; backpressure is crude by design.
		p.buffer = p.buffer[len(p.buffer)-p.cfg.MaxBufferSize:]
	}

	p.sinceRecompute++
	if p.sinceRecompute >= p.cfg.RecomputeEvery || now.Sub(p.lastRecompute) >= p.cfg.RecomputeInterval {
		p.current = threshold.CalculateEfficient(p.buffer, p.cfg.ThresholdN, p.cfg.UseRobustStats, p.cfg.ThresholdTimeWindow)
		p.sinceRecompute = 0
		p.lastRecompute = now
	}

	var result threshold.LargeOrderResult
	if pre != nil {
		result = *pre
	} else {
		result = threshold.IdentifySingleLargeOrder(ev, p.current)
	}

	p.results = append(p.results, result)
	if len(p.results) > p.cfg.MaxResults {
		p.results = p.results[len(p.results)-p.cfg.MaxResults:]
	}

	for _, eng := range p.engines {
		for _, id := range eng.AddEvent(ctx, ev) {
			p.refreshWindowStats(eng, id, now)
		}
	}

	p.stats.ProcessedCount++
	if result.IsLargeOrder {
		p.stats.LargeOrderCount++
	}
	if result.IsExtraLargeOrder {
		p.stats.ExtraLargeCount++
	}
	if result.IsHugeOrder {
		p.stats.HugeOrderCount++
	}
	if ev.Direction == model.DirectionBuy {
		p.stats.BuyAmount += ev.Amount
	} else {
		p.stats.SellAmount += ev.Amount
	}
	p.stats.LastProcessTime = now

	return result
}

// refreshWindowStats recomputes the window-local threshold and aggregates
// over the window's current element set.
func (p *Processor) refreshWindowStats(eng *window.Engine, id string, now time.Time) {
	state, ok := eng.WindowState(id)
	if !ok {
		delete(p.windowStats, id)
		return
	}

	local := threshold.CalculateEfficient(state.Elements, p.cfg.ThresholdN, p.cfg.UseRobustStats, 0)

	ws := WindowStatistics{
		WindowID:     id,
		StartTime:    state.StartTime,
		EndTime:      state.EndTime,
		ElementCount: len(state.Elements),
		Threshold:    local,
		TriggerCount: state.TriggerCount,
		IsClosed:     state.IsClosed,
		LastUpdated:  now,
	}
	for _, r := range threshold.IdentifyLargeOrders(state.Elements, local) {
		ws.TotalAmount += r.Order.Amount
		if r.Order.Direction == model.DirectionBuy {
			ws.BuyAmount += r.Order.Amount
		} else {
			ws.SellAmount += r.Order.Amount
		}
		if r.IsLargeOrder {
			ws.LargeOrderCount++
		}
	}
	p.windowStats[id] = ws
}

// BatchProcess fans the batch out into chunks classified concurrently
// against a snapshot of the current threshold, then merges every chunk into
// processor state in order under one lock. Chunk workers never touch shared
// buffers.
func (p *Processor) BatchProcess(ctx context.Context, trades []model.TradeEvent) ([]threshold.LargeOrderResult, error) {
	if len(trades) == 0 {
		return []threshold.LargeOrderResult{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	snapshot := p.current
	p.mu.Unlock()

	classified := make([]threshold.LargeOrderResult, len(trades))
	var wg sync.WaitGroup
	for start := 0; start < len(trades); start += defaultBatchChunkSize {
		end := start + defaultBatchChunkSize
		if end > len(trades) {
			end = len(trades)
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				classified[i] = threshold.IdentifySingleLargeOrder(trades[i], snapshot)
			}
		}(start, end)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for i, ev := range trades {
		p.processLocked(ctx, ev, &classified[i])
	}
	return classified, nil
}

// CurrentThreshold returns the threshold orders are classified against.
func (p *Processor) CurrentThreshold() threshold.Dynamic {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Statistics returns the aggregate counters.
func (p *Processor) Statistics() Statistics {
	p.mu.Lock()
	defer p.mu.Unlock()
	stats := p.stats
	stats.BufferSize = len(p.buffer)
	stats.CurrentThreshold = p.current
	stats.ActiveWindowCount = 0
	for _, eng := range p.engines {
		stats.ActiveWindowCount += len(eng.ActiveWindows())
	}
	return stats
}

// WindowStatistics returns the latest per-window aggregate for id.
func (p *Processor) WindowStatistics(id string) (WindowStatistics, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ws, ok := p.windowStats[id]
	return ws, ok
}

// ActiveWindows lists open window ids across every engine.
func (p *Processor) ActiveWindows() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0)
	for _, eng := range p.engines {
		ids = append(ids, eng.ActiveWindows()...)
	}
	return ids
}

// RecentResults returns a copy of the bounded classification history.
func (p *Processor) RecentResults() []threshold.LargeOrderResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]threshold.LargeOrderResult, len(p.results))
	copy(out, p.results)
	return out
}

// RecentOrders returns a copy of the bounded trade buffer.
func (p *Processor) RecentOrders() []model.TradeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.TradeEvent, len(p.buffer))
	copy(out, p.buffer)
	return out
}

// Reset drops all processor and window state.
func (p *Processor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buffer = p.buffer[:0]
	p.results = p.results[:0]
	p.current = threshold.Dynamic{}
	p.sinceRecompute = 0
	p.lastRecompute = time.Time{}
	p.windowStats = make(map[string]WindowStatistics)
	p.stats = Statistics{}
	for _, eng := range p.engines {
		eng.Reset()
	}
}

// Run drives the periodic checkpoint timer and window sweeping until ctx is
// cancelled. Checkpoint failures are logged and skipped; they never stop the
// loop or the ingestion path.
func (p *Processor) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.CheckpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Sweep(ctx)
			if err := p.Checkpoint(ctx); err != nil {
				p.logger.Error().Err(err).Msg("checkpoint failed; skipping")
			}
		}
	}
}

// Sweep expires sessions and evicts closed windows past retention.
func (p *Processor) Sweep(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.clock()
	for _, eng := range p.engines {
		eng.Sweep(ctx, now)
	}
	for id := range p.windowStats {
		if _, ok := p.windowState(id); !ok {
			delete(p.windowStats, id)
		}
	}
}

func (p *Processor) windowState(id string) (*window.State, bool) {
	for _, eng := range p.engines {
		if state, ok := eng.WindowState(id); ok {
			return state, true
		}
	}
	return nil, false
}

// Checkpoint serializes the processor snapshot to the state store.
func (p *Processor) Checkpoint(ctx context.Context) error {
	if p.store == nil {
		return nil
	}

	p.mu.Lock()
	cp := checkpoint{
		TakenAt:         p.clock(),
		Buffer:          append([]model.TradeEvent(nil), p.buffer...),
		Results:         append([]threshold.LargeOrderResult(nil), p.results...),
		Threshold:       p.current,
		LastProcessTime: p.stats.LastProcessTime,
	}
	for _, eng := range p.engines {
		cp.Windows = append(cp.Windows, checkpointWindow{
			Name:      eng.Config().Name,
			Watermark: eng.Watermark(),
			ActiveIDs: eng.ActiveWindows(),
			ClosedIDs: eng.ClosedWindows(),
		})
	}
	p.mu.Unlock()

	payload, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	return p.store.Put(ctx, checkpointKeyPrefix+p.cfg.CheckpointID, payload)
}

// RestoreFromCheckpoint rehydrates the buffer, results, and threshold from a
// stored snapshot. Window contents are not replayed; windows restart empty
// and refill from the live stream (warm restart, not crash recovery). The
// boolean return is the only failure signal; callers must check it.
func (p *Processor) RestoreFromCheckpoint(ctx context.Context, id string) bool {
	if p.store == nil {
		return false
	}

	raw, ok, err := p.store.Get(ctx, checkpointKeyPrefix+id)
	if err != nil || !ok {
		if err != nil {
			p.logger.Error().Err(err).Str("checkpoint_id", id).Msg("checkpoint read failed")
		}
		return false
	}

	var cp checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		p.logger.Error().Err(err).Str("checkpoint_id", id).Msg("checkpoint decode failed")
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.buffer = cp.Buffer
	if p.buffer == nil {
		p.buffer = make([]model.TradeEvent, 0, p.cfg.MaxBufferSize)
	}
	p.results = cp.Results
	if p.results == nil {
		p.results = make([]threshold.LargeOrderResult, 0, p.cfg.MaxResults)
	}
	p.current = cp.Threshold
	p.stats.LastProcessTime = cp.LastProcessTime
	p.logger.Info().Str("checkpoint_id", id).Int("buffer", len(p.buffer)).Time("taken_at", cp.TakenAt).Msg("restored from checkpoint")
	return true
}
