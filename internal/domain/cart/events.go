package cart

import (
	"context"

	"go.uber.org/zap"
)

// EventSink receives fire-and-forget notifications about cart mutations.
// Implementations must not block; no return value is expected.
type EventSink interface {
	ItemAdded(ctx context.Context, c *Cart, item *CartItem)
	ItemRemoved(ctx context.Context, c *Cart, item *CartItem)
	ItemQuantityChanged(ctx context.Context, c *Cart, item *CartItem, oldQty, newQty int)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) ItemAdded(context.Context, *Cart, *CartItem) {}

func (NopSink) ItemRemoved(context.Context, *Cart, *CartItem) {}

func (NopSink) ItemQuantityChanged(context.Context, *Cart, *CartItem, int, int) {}

// LogSink emits cart events as structured log entries.
type LogSink struct {
	lg *zap.Logger
}

// NewLogSink creates a LogSink writing to the given logger.
func NewLogSink(lg *zap.Logger) *LogSink {
	return &LogSink{lg: lg}
}

func (s *LogSink) ItemAdded(_ context.Context, c *Cart, item *CartItem) {
	s.lg.Info("cart item added",
		zap.String("cart_id", c.ID),
		zap.String("itemable_type", item.Key.Type),
		zap.Int64("itemable_id", item.Key.ID),
		zap.Int("quantity", item.Quantity),
	)
}

func (s *LogSink) ItemRemoved(_ context.Context, c *Cart, item *CartItem) {
	s.lg.Info("cart item removed",
		zap.String("cart_id", c.ID),
		zap.String("itemable_type", item.Key.Type),
		zap.Int64("itemable_id", item.Key.ID),
	)
}

func (s *LogSink) ItemQuantityChanged(_ context.Context, c *Cart, item *CartItem, oldQty, newQty int) {
	s.lg.Info("cart item quantity changed",
		zap.String("cart_id", c.ID),
		zap.String("itemable_type", item.Key.Type),
		zap.Int64("itemable_id", item.Key.ID),
		zap.Int("old_quantity", oldQty),
		zap.Int("new_quantity", newQty),
	)
}
