// Package feed supplies trade events to the processing pipeline, either by
// replaying a CSV tape or by consuming a live websocket stream.
package feed

import (
	"context"

	"stock-orderflow/internal/model"
)

// TradeSource streams trade events into out until the source is exhausted or
// ctx is cancelled. Implementations close nothing; the caller owns out.
type TradeSource interface {
	Stream(ctx context.Context, out chan<- model.TradeEvent) error
}
