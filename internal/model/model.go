package model

import "time"

// Direction is the aggressor side of a trade.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// OrderKind optionally refines how an order reached the tape.
type OrderKind string

const (
	OrderKindUnknown OrderKind = ""
	OrderKindLimit   OrderKind = "limit"
	OrderKindMarket  OrderKind = "market"
	OrderKindCancel  OrderKind = "cancel"
)

// TradeEvent is a single executed trade on the tape. Immutable once ingested.
// Amount is Price×Volume expressed in integer minor-currency units (cents).
type TradeEvent struct {
	Time      time.Time `json:"time"`
	Price     float64   `json:"price"`
	Volume    int64     `json:"volume"`
	Amount    int64     `json:"amount"`
	Direction Direction `json:"direction"`
	OrderKind OrderKind `json:"orderKind,omitempty"`
}

// OhlcBar is one aggregated trading interval.
type OhlcBar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
}

// SignalKind labels a generated trading signal.
type SignalKind string

const (
	SignalBuy  SignalKind = "buy"
	SignalSell SignalKind = "sell"
)

// AmountOf computes the cent amount of a fill, rounding half away from zero.
func AmountOf(price float64, volume int64) int64 {
	cents := price * float64(volume) * 100
	if cents >= 0 {
		return int64(cents + 0.5)
	}
	return int64(cents - 0.5)
}
