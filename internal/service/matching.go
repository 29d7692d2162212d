package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/quantory/tokenmarket/internal/domain"
	"github.com/quantory/tokenmarket/internal/models"
	"github.com/quantory/tokenmarket/internal/notify"
	"github.com/quantory/tokenmarket/internal/observability"
	"github.com/quantory/tokenmarket/internal/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TickLocker serializes matching ticks across instances. Acquire returns
// false when another instance holds the lock.
type TickLocker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context)
}

// TickReport is the outcome of one matching run.
type TickReport struct {
	ExecutedCount         int             `json:"executed_count"`
	SkippedWaitingOnPrice int             `json:"skipped_waiting_on_price"`
	SkippedOrErroredCount int             `json:"skipped_or_errored_count"`
	CurrentPrice          decimal.Decimal `json:"current_price"`
	ExecutionTimeMs       int64           `json:"execution_time_ms"`
}

// MatchingEngine scans the pending limit-order queue and settles eligible
// orders. RunOnce is single-flight per process via an atomic flag and,
// when a TickLocker is configured, cluster-wide as well.
type MatchingEngine struct {
	store       QueryStore
	settler     *Settler
	sink        notify.Sink
	locker      TickLocker
	batchSize   int32
	lockTimeout time.Duration

	// cancelOnInsufficientFunds turns the default skip-and-retry policy
	// for underfunded orders into a hard cancel.
	cancelOnInsufficientFunds bool

	running atomic.Bool
}

type MatchingOption func(*MatchingEngine)

// WithTickLocker enables the cluster-wide tick lock.
func WithTickLocker(locker TickLocker) MatchingOption {
	return func(e *MatchingEngine) { e.locker = locker }
}

// WithBatchSize bounds how many pending orders one tick scans.
func WithBatchSize(n int32) MatchingOption {
	return func(e *MatchingEngine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithCancelOnInsufficientFunds cancels underfunded orders instead of
// leaving them queued.
func WithCancelOnInsufficientFunds(enabled bool) MatchingOption {
	return func(e *MatchingEngine) { e.cancelOnInsufficientFunds = enabled }
}

func NewMatchingEngine(store QueryStore, settler *Settler, sink notify.Sink, lockTimeout time.Duration, opts ...MatchingOption) *MatchingEngine {
	e := &MatchingEngine{
		store:       store,
		settler:     settler,
		sink:        sink,
		batchSize:   500,
		lockTimeout: lockTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunOnce executes one matching tick. A second concurrent call fails fast
// with ErrTickInProgress instead of queueing.
func (e *MatchingEngine) RunOnce(ctx context.Context) (TickReport, error) {
	if !e.running.CompareAndSwap(false, true) {
		return TickReport{}, models.ErrTickInProgress
	}
	defer e.running.Store(false)

	if e.locker != nil {
		acquired, err := e.locker.Acquire(ctx)
		if err != nil {
			return TickReport{}, fmt.Errorf("acquire tick lock: %w", err)
		}
		if !acquired {
			return TickReport{}, models.ErrTickInProgress
		}
		defer e.locker.Release(ctx)
	}

	started := time.Now()
	report, err := e.tick(ctx)
	report.ExecutionTimeMs = time.Since(started).Milliseconds()
	if err != nil {
		return report, err
	}

	observability.ObserveTick(report.ExecutedCount, report.SkippedWaitingOnPrice,
		report.SkippedOrErroredCount, time.Since(started).Seconds())
	price, _ := report.CurrentPrice.Float64()
	observability.SetCurrentPrice(price)

	e.sink.TickCompleted(ctx, notify.TickEvent{
		ExecutedCount:         report.ExecutedCount,
		SkippedWaitingOnPrice: report.SkippedWaitingOnPrice,
		SkippedOrErroredCount: report.SkippedOrErroredCount,
		CurrentPrice:          report.CurrentPrice,
		Elapsed:               time.Since(started),
	})
	return report, nil
}

func (e *MatchingEngine) tick(ctx context.Context) (TickReport, error) {
	var report TickReport

	// One snapshot per tick. Every order below is judged against this
	// price even while executed trades move the accumulator.
	ps, err := e.store.Queries().GetPriceState(ctx)
	if err != nil {
		return report, fmt.Errorf("tick price snapshot: %w", err)
	}
	price := domain.DerivePrice(ps.TotalInvestment, ps.TotalTokenSupply)
	report.CurrentPrice = price

	pending, err := e.store.Queries().ListPendingLimitOrders(ctx, e.batchSize)
	if err != nil {
		return report, fmt.Errorf("tick pending scan: %w", err)
	}

	for _, order := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !eligible(order, price) {
			report.SkippedWaitingOnPrice++
			continue
		}
		settled, err := e.executeOne(ctx, order, price)
		if err == nil {
			report.ExecutedCount++
			e.sink.OrderFilled(ctx, notify.OrderEvent{
				OrderID: settled.ID,
				UserID:  settled.UserID.String(),
				Side:    settled.Side,
				Status:  settled.Status,
				Amount:  settled.Amount,
				Price:   price,
				At:      time.Now().UTC(),
			})
			continue
		}

		report.SkippedOrErroredCount++
		if errors.Is(err, models.ErrInsufficientFunds) {
			if e.cancelOnInsufficientFunds {
				e.cancelUnderfunded(ctx, order)
			}
			// Default policy: balance may recover, keep queue position.
			continue
		}
		zap.L().Warn("order execution failed, will retry next tick",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
	}
	return report, nil
}

func eligible(order models.Order, price decimal.Decimal) bool {
	if order.LimitPrice == nil {
		return false
	}
	switch order.Side {
	case domain.SideBuy:
		return price.LessThanOrEqual(*order.LimitPrice)
	case domain.SideSell:
		return price.GreaterThanOrEqual(*order.LimitPrice)
	}
	return false
}

// executeOne settles a single order in its own transaction so one failure
// never poisons the rest of the tick.
func (e *MatchingEngine) executeOne(ctx context.Context, order models.Order, price decimal.Decimal) (models.Order, error) {
	var settled models.Order
	err := e.store.RunInTx(ctx, func(q repository.Queries) error {
		if err := q.SetLockTimeout(ctx, e.lockTimeout); err != nil {
			return err
		}
		var err error
		settled, err = e.settler.Settle(ctx, q, order, price)
		return err
	})
	if err != nil {
		return models.Order{}, err
	}
	return settled, nil
}

func (e *MatchingEngine) cancelUnderfunded(ctx context.Context, order models.Order) {
	now := time.Now().UTC()
	rows, err := e.store.Queries().UpdateOrderStatusCAS(ctx, repository.UpdateOrderStatusParams{
		ID:         order.ID,
		FromStatus: order.Status,
		ToStatus:   domain.OrderStatusCanceled,
		CanceledAt: &now,
	})
	if err != nil || rows == 0 {
		zap.L().Warn("cancel of underfunded order did not apply",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
		return
	}
	e.sink.OrderCanceled(ctx, notify.OrderEvent{
		OrderID: order.ID,
		UserID:  order.UserID.String(),
		Side:    order.Side,
		Status:  domain.OrderStatusCanceled,
		Amount:  order.Amount,
		At:      now,
	})
}
