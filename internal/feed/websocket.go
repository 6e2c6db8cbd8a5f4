package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"stock-orderflow/internal/model"
)

const wsReadLimit = 1 << 20 // 1MB

// wireTrade is the on-the-wire trade message shape.
type wireTrade struct {
	Time      time.Time `json:"time"`
	Price     float64   `json:"price"`
	Volume    int64     `json:"volume"`
	Direction string    `json:"direction"`
}

// WebsocketSource consumes a live trade stream, reconnecting with linear
// backoff until the retry budget is exhausted.
type WebsocketSource struct {
	url           string
	backoff       time.Duration
	maxReconnects int
	logger        zerolog.Logger
}

// NewWebsocketSource constructs a live source.
func NewWebsocketSource(url string, backoff time.Duration, maxReconnects int, logger zerolog.Logger) *WebsocketSource {
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	if maxReconnects <= 0 {
		maxReconnects = 10
	}
	return &WebsocketSource{
		url:           url,
		backoff:       backoff,
		maxReconnects: maxReconnects,
		logger:        logger.With().Str("component", "feed_ws").Str("url", url).Logger(),
	}
}

// Stream dials the endpoint and forwards decoded trades until the connection
// drops past the retry budget or ctx is cancelled.
func (s *WebsocketSource) Stream(ctx context.Context, out chan<- model.TradeEvent) error {
	var lastErr error
	for attempt := 0; attempt < s.maxReconnects; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * s.backoff
			s.logger.Warn().Int("attempt", attempt+1).Dur("backoff", backoff).Msg("重连行情流")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		err := s.consume(ctx, out)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
	}
	return fmt.Errorf("websocket stream failed after %d attempts: %w", s.maxReconnects, lastErr)
}

func (s *WebsocketSource) consume(ctx context.Context, out chan<- model.TradeEvent) error {
	ws, _, err := websocket.Dial(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial stream: %w", err)
	}
	ws.SetReadLimit(wsReadLimit)
	defer ws.Close(websocket.StatusNormalClosure, "shutdown")

	s.logger.Info().Msg("行情流已连接")

	for {
		msgType, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		if msgType != websocket.MessageText {
			continue
		}

		var wire wireTrade
		if err := json.Unmarshal(data, &wire); err != nil {
			s.logger.Warn().Err(err).Msg("跳过无法解析的行情消息")
			continue
		}
		ev, err := wire.toEvent()
		if err != nil {
			s.logger.Warn().Err(err).Msg("跳过非法行情消息")
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- ev:
		}
	}
}

func (w wireTrade) toEvent() (model.TradeEvent, error) {
	if w.Price <= 0 || w.Volume <= 0 {
		return model.TradeEvent{}, fmt.Errorf("non-positive price or volume: %+v", w)
	}
	var dir model.Direction
	switch w.Direction {
	case "buy", "B":
		dir = model.DirectionBuy
	case "sell", "S":
		dir = model.DirectionSell
	default:
		return model.TradeEvent{}, fmt.Errorf("unknown direction %q", w.Direction)
	}
	ts := w.Time
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return model.TradeEvent{
		Time:      ts,
		Price:     w.Price,
		Volume:    w.Volume,
		Amount:    model.AmountOf(w.Price, w.Volume),
		Direction: dir,
	}, nil
}

var _ TradeSource = (*WebsocketSource)(nil)
