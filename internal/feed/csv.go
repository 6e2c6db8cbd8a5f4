package feed

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stock-orderflow/internal/model"
)

// CSVSource replays a trade tape from disk. Expected columns:
// time (RFC3339), price, volume, direction. A header row is skipped.
type CSVSource struct {
	path   string
	speed  float64
	logger zerolog.Logger
}

// NewCSVSource constructs a replay source. speed scales inter-trade gaps:
// 0 replays as fast as possible, 1 replays in real time.
func NewCSVSource(path string, speed float64, logger zerolog.Logger) *CSVSource {
	return &CSVSource{
		path:   path,
		speed:  speed,
		logger: logger.With().Str("component", "feed_csv").Str("path", path).Logger(),
	}
}

// Stream reads the tape row by row, pacing emission when a replay speed is
// configured.
func (s *CSVSource) Stream(ctx context.Context, out chan<- model.TradeEvent) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open tape: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var prev time.Time
	count := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read tape row: %w", err)
		}

		ev, err := parseRecord(record)
		if err != nil {
			if count == 0 {
				// Header row.
				continue
			}
			s.logger.Warn().Err(err).Strs("record", record).Msg("跳过无法解析的行")
			continue
		}

		if s.speed > 0 && !prev.IsZero() && ev.Time.After(prev) {
			gap := time.Duration(float64(ev.Time.Sub(prev)) / s.speed)
			timer := time.NewTimer(gap)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		prev = ev.Time

		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- ev:
			count++
		}
	}

	s.logger.Info().Int("trades", count).Msg("tape replay complete")
	return nil
}

func parseRecord(record []string) (model.TradeEvent, error) {
	if len(record) < 4 {
		return model.TradeEvent{}, fmt.Errorf("expected 4 columns, got %d", len(record))
	}

	ts, err := time.Parse(time.RFC3339, record[0])
	if err != nil {
		return model.TradeEvent{}, fmt.Errorf("parse time %q: %w", record[0], err)
	}
	price, err := decimal.NewFromString(record[1])
	if err != nil {
		return model.TradeEvent{}, fmt.Errorf("parse price %q: %w", record[1], err)
	}
	volume, err := strconv.ParseInt(record[2], 10, 64)
	if err != nil {
		return model.TradeEvent{}, fmt.Errorf("parse volume %q: %w", record[2], err)
	}

	var dir model.Direction
	switch record[3] {
	case "buy", "B":
		dir = model.DirectionBuy
	case "sell", "S":
		dir = model.DirectionSell
	default:
		return model.TradeEvent{}, fmt.Errorf("unknown direction %q", record[3])
	}

	priceF, _ := price.Float64()
	amount := price.Mul(decimal.NewFromInt(volume)).Mul(decimal.NewFromInt(100)).Round(0).IntPart()

	return model.TradeEvent{
		Time:      ts,
		Price:     priceF,
		Volume:    volume,
		Amount:    amount,
		Direction: dir,
	}, nil
}

var _ TradeSource = (*CSVSource)(nil)
