package window

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"stock-orderflow/internal/model"
)

// Store is the consumer-side view of the key-value state contract the engine
// persists closed window summaries through. Any statestore backend satisfies
// it; declaring it here keeps the window package free of a config import cycle.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// Engine routes events into the window instances of one Config and drives
// their open → triggered → closed → evicted lifecycle. All state is owned by
// the engine and mutated only through AddEvent/Sweep calls.
type Engine struct {
	cfg       Config
	windows   map[string]*State
	watermark Watermark
	count     int64
	store     Store
	logger    zerolog.Logger
	clock     func() time.Time
}

// NewEngine constructs an engine. store may be nil, in which case closed
// window summaries are simply dropped on eviction.
func NewEngine(cfg Config, store Store, logger zerolog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:     cfg,
		windows: make(map[string]*State),
		store:   store,
		logger:  logger.With().Str("component", "window_engine").Str("window", cfg.Name).Logger(),
		clock:   time.Now,
	}, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// AddEvent routes one event into every window it belongs to, advances the
// watermark, and evaluates triggers. It returns the ids of the windows that
// received the event.
func (e *Engine) AddEvent(ctx context.Context, ev model.TradeEvent) []string {
	now := e.clock()
	eventTime := ev.Time
	if e.cfg.TimeCharacteristic == ProcessingTime {
		eventTime = now
	}

	ids := e.assign(eventTime)
	for _, id := range ids {
		state, ok := e.windows[id]
		if !ok {
			state = e.newState(id, eventTime)
			e.windows[id] = state
		}
		if state.IsClosed {
			// Late event past the close boundary; the window result is final.
			continue
		}
		state.Elements = append(state.Elements, ev)
		if e.cfg.Type == TypeSession && eventTime.Add(e.cfg.Gap).After(state.EndTime) {
			state.EndTime = eventTime.Add(e.cfg.Gap)
		}
	}
	if e.cfg.Type == TypeCount {
		e.count++
	}

	e.advanceWatermark(eventTime, now)
	e.evaluate(ctx, now)
	return ids
}

// Sweep drives time-based progress without an event: session gap expiry and
// eviction of closed windows past retention. It returns the number of
// windows evicted.
func (e *Engine) Sweep(ctx context.Context, now time.Time) int {
	e.evaluate(ctx, now)

	evicted := 0
	for id, state := range e.windows {
		if !state.IsClosed {
			continue
		}
		if now.After(state.EndTime.Add(e.cfg.retention())) {
			e.persistSummary(ctx, state)
			delete(e.windows, id)
			evicted++
		}
	}
	if evicted > 0 {
		e.logger.Debug().Int("evicted", evicted).Msg("purged expired windows")
	}
	return evicted
}

// Watermark returns the current watermark.
func (e *Engine) Watermark() Watermark {
	return e.watermark
}

// ActiveWindows lists open window ids, sorted for stable output.
func (e *Engine) ActiveWindows() []string {
	ids := make([]string, 0, len(e.windows))
	for id, state := range e.windows {
		if !state.IsClosed {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// ClosedWindows lists closed-but-not-yet-evicted window ids, sorted.
func (e *Engine) ClosedWindows() []string {
	ids := make([]string, 0)
	for id, state := range e.windows {
		if state.IsClosed {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// WindowState returns a copy of the identified window's state.
func (e *Engine) WindowState(id string) (*State, bool) {
	state, ok := e.windows[id]
	if !ok {
		return nil, false
	}
	return state.clone(), true
}

// Reset drops all window state and rewinds the watermark.
func (e *Engine) Reset() {
	e.windows = make(map[string]*State)
	e.watermark = Watermark{}
	e.count = 0
}

// assign computes the ids of every window instance the event time maps to.
func (e *Engine) assign(eventTime time.Time) []string {
	switch e.cfg.Type {
	case TypeTumbling:
		idx := floorDiv(eventTime.UnixMilli(), e.cfg.Size.Milliseconds())
		return []string{e.id(idx)}

	case TypeSliding:
		t := eventTime.UnixMilli()
		size := e.cfg.Size.Milliseconds()
		slide := e.cfg.Slide.Milliseconds()
		// Every slide index whose window [i·slide, i·slide+size) contains t.
		first := floorDiv(t-size, slide) + 1
		last := floorDiv(t, slide)
		ids := make([]string, 0, last-first+1)
		for idx := first; idx <= last; idx++ {
			ids = append(ids, e.id(idx))
		}
		return ids

	case TypeSession:
		// Join the newest open session if the gap has not elapsed,
		// otherwise start a new session keyed by the event's own time.
		var latest *State
		for _, state := range e.windows {
			if state.IsClosed {
				continue
			}
			if latest == nil || state.EndTime.After(latest.EndTime) {
				latest = state
			}
		}
		if latest != nil && !eventTime.After(latest.EndTime) {
			return []string{latest.WindowID}
		}
		return []string{fmt.Sprintf("%s-session-%d", e.cfg.Name, eventTime.UnixMilli())}

	case TypeCount:
		idx := e.count / int64(e.cfg.CountSize)
		return []string{e.id(idx)}
	}
	return nil
}

func (e *Engine) id(idx int64) string {
	return fmt.Sprintf("%s-%s-%d", e.cfg.Name, e.cfg.Type, idx)
}

func (e *Engine) newState(id string, eventTime time.Time) *State {
	state := &State{WindowID: id}
	switch e.cfg.Type {
	case TypeTumbling:
		idx := floorDiv(eventTime.UnixMilli(), e.cfg.Size.Milliseconds())
		state.StartTime = time.UnixMilli(idx * e.cfg.Size.Milliseconds())
		state.EndTime = state.StartTime.Add(e.cfg.Size)
	case TypeSliding:
		// The id carries the slide index; an event can open several
		// overlapping windows, so bounds come from the id, not the event.
		state.StartTime, state.EndTime = e.slidingBounds(id)
	case TypeSession:
		state.StartTime = eventTime
		state.EndTime = eventTime.Add(e.cfg.Gap)
	case TypeCount:
		state.StartTime = eventTime
		state.EndTime = eventTime
	}
	return state
}

func (e *Engine) slidingBounds(id string) (time.Time, time.Time) {
	var idx int64
	fmt.Sscanf(id, e.cfg.Name+"-sliding-%d", &idx)
	start := time.UnixMilli(idx * e.cfg.Slide.Milliseconds())
	return start, start.Add(e.cfg.Size)
}

// advanceWatermark applies the configured strategy, clamped so the visible
// watermark never moves backward.
func (e *Engine) advanceWatermark(eventTime, now time.Time) {
	var computed time.Time
	switch e.cfg.Strategy {
	case StrategyFixedDelay, StrategyBoundedOutOfOrderness:
		computed = eventTime.Add(-e.cfg.Delay)
	default:
		computed = eventTime
	}

	if computed.After(e.watermark.Timestamp) {
		e.watermark.Timestamp = computed
	}
	if eventTime.After(e.watermark.EventTime) {
		e.watermark.EventTime = eventTime
	}
	e.watermark.IngestionTime = now
}

// evaluate fires and closes windows per type-specific rules.
func (e *Engine) evaluate(ctx context.Context, now time.Time) {
	switch e.cfg.Type {
	case TypeTumbling, TypeSliding:
		for _, state := range e.windows {
			if state.IsClosed {
				continue
			}
			wm := e.watermark.Timestamp
			if !wm.Before(state.EndTime.Add(e.cfg.Size)) {
				if state.TriggerCount == 0 {
					e.trigger(state, now)
				}
				e.close(ctx, state)
				continue
			}
			if !wm.Before(state.EndTime) && state.TriggerCount == 0 {
				e.trigger(state, now)
			}
		}

	case TypeSession:
		// Sessions expire on processing-time inactivity, not on watermark.
		for _, state := range e.windows {
			if state.IsClosed {
				continue
			}
			if now.After(state.EndTime) {
				e.trigger(state, now)
				e.close(ctx, state)
			}
		}

	case TypeCount:
		for _, state := range e.windows {
			if state.IsClosed {
				continue
			}
			if len(state.Elements) >= e.cfg.CountSize && state.TriggerCount == 0 {
				state.EndTime = now
				e.trigger(state, now)
				e.closePredecessor(ctx, state)
			}
		}
	}
}

func (e *Engine) trigger(state *State, now time.Time) {
	state.TriggerCount++
	state.LastTriggerTime = now
	e.logger.Debug().Str("window_id", state.WindowID).Int("elements", len(state.Elements)).Msg("window fired")
}

func (e *Engine) close(ctx context.Context, state *State) {
	state.IsClosed = true
	e.persistSummary(ctx, state)
}

// closePredecessor finalises the previous count window once the next one
// fires; count windows close on the next trigger rather than on a watermark.
func (e *Engine) closePredecessor(ctx context.Context, fired *State) {
	var firedIdx int64
	fmt.Sscanf(fired.WindowID, e.cfg.Name+"-count-%d", &firedIdx)
	prev, ok := e.windows[e.id(firedIdx-1)]
	if ok && !prev.IsClosed {
		e.close(ctx, prev)
	}
}

func (e *Engine) persistSummary(ctx context.Context, state *State) {
	if e.store == nil {
		return
	}
	payload, err := json.Marshal(summarize(state))
	if err != nil {
		e.logger.Error().Err(err).Str("window_id", state.WindowID).Msg("marshal window summary failed")
		return
	}
	key := "window/" + state.WindowID
	if err := e.store.Put(ctx, key, payload); err != nil {
		// Store failures never propagate into the ingestion path.
		e.logger.Error().Err(err).Str("window_id", state.WindowID).Msg("persist window summary failed")
	}
}

// floorDiv divides rounding toward negative infinity, unlike Go's
// truncating integer division.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
