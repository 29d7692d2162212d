// Package notify delivers settlement and cancellation events to an
// observer. Delivery is fire-and-forget: sinks never return errors and
// must not block the write path.
package notify

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderEvent describes a terminal order transition.
type OrderEvent struct {
	OrderID int64           `json:"order_id,string"`
	UserID  string          `json:"user_id"`
	Side    string          `json:"side"`
	Status  string          `json:"status"`
	Amount  decimal.Decimal `json:"amount"`
	Price   decimal.Decimal `json:"price"`
	At      time.Time       `json:"at"`
}

// TickEvent summarizes one matching run.
type TickEvent struct {
	ExecutedCount         int             `json:"executed_count"`
	SkippedWaitingOnPrice int             `json:"skipped_waiting_on_price"`
	SkippedOrErroredCount int             `json:"skipped_or_errored_count"`
	CurrentPrice          decimal.Decimal `json:"current_price"`
	Elapsed               time.Duration   `json:"elapsed"`
}

// Sink receives events after the corresponding transaction committed.
type Sink interface {
	OrderFilled(ctx context.Context, ev OrderEvent)
	OrderCanceled(ctx context.Context, ev OrderEvent)
	TickCompleted(ctx context.Context, ev TickEvent)
}

// LogSink writes events to the structured log.
type LogSink struct{}

func NewLogSink() *LogSink { return &LogSink{} }

func (s *LogSink) OrderFilled(ctx context.Context, ev OrderEvent) {
	zap.L().Info("order filled",
		zap.Int64("order_id", ev.OrderID),
		zap.String("user_id", ev.UserID),
		zap.String("side", ev.Side),
		zap.String("amount", ev.Amount.String()),
		zap.String("price", ev.Price.String()))
}

func (s *LogSink) OrderCanceled(ctx context.Context, ev OrderEvent) {
	zap.L().Info("order canceled",
		zap.Int64("order_id", ev.OrderID),
		zap.String("user_id", ev.UserID),
		zap.String("side", ev.Side))
}

func (s *LogSink) TickCompleted(ctx context.Context, ev TickEvent) {
	zap.L().Info("matching tick completed",
		zap.Int("executed", ev.ExecutedCount),
		zap.Int("waiting_on_price", ev.SkippedWaitingOnPrice),
		zap.Int("skipped_or_errored", ev.SkippedOrErroredCount),
		zap.String("current_price", ev.CurrentPrice.String()),
		zap.Duration("elapsed", ev.Elapsed))
}

// NoopSink discards all events.
type NoopSink struct{}

func NewNoopSink() *NoopSink { return &NoopSink{} }

func (NoopSink) OrderFilled(context.Context, OrderEvent)   {}
func (NoopSink) OrderCanceled(context.Context, OrderEvent) {}
func (NoopSink) TickCompleted(context.Context, TickEvent)  {}
