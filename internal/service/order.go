package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/quantory/tokenmarket/internal/domain"
	"github.com/quantory/tokenmarket/internal/models"
	"github.com/quantory/tokenmarket/internal/notify"
	"github.com/quantory/tokenmarket/internal/repository"
	"github.com/shopspring/decimal"
)

// OrderService handles order creation, cancellation and reads. Market
// orders settle immediately at the current price; limit orders are queued
// for the matching engine.
type OrderService struct {
	store       QueryStore
	settler     *Settler
	wallets     *WalletService
	sink        notify.Sink
	node        *snowflake.Node
	lockTimeout time.Duration
}

func NewOrderService(store QueryStore, settler *Settler, wallets *WalletService, sink notify.Sink, node *snowflake.Node, lockTimeout time.Duration) *OrderService {
	return &OrderService{
		store:       store,
		settler:     settler,
		wallets:     wallets,
		sink:        sink,
		node:        node,
		lockTimeout: lockTimeout,
	}
}

// CreateOrderInput carries a new order request. Amount is currency to
// spend for BUY and tokens to sell for SELL.
type CreateOrderInput struct {
	UserID     uuid.UUID
	Side       string
	PriceType  string
	Amount     string
	LimitPrice string
}

// Create validates the request, applies the advisory balance gate and
// persists the order. Market orders are executed in the same call.
func (s *OrderService) Create(ctx context.Context, in CreateOrderInput) (models.Order, error) {
	order, err := s.buildOrder(in)
	if err != nil {
		return models.Order{}, err
	}

	// Advisory gate only: balance and price can both change before
	// execution, so the authoritative check happens inside settlement.
	wallet, err := s.wallets.EnsureWallet(ctx, in.UserID)
	if err != nil {
		return models.Order{}, err
	}
	switch order.Side {
	case domain.SideBuy:
		if wallet.CurrencyBalance.LessThan(order.Amount) {
			return models.Order{}, fmt.Errorf("create order: %w", models.ErrInsufficientFunds)
		}
	case domain.SideSell:
		if wallet.TokenBalance.LessThan(order.TokenAmount) {
			return models.Order{}, fmt.Errorf("create order: %w", models.ErrInsufficientFunds)
		}
	}

	if order.PriceType == domain.PriceTypeMarket {
		return s.executeMarket(ctx, order)
	}

	if err := s.store.Queries().InsertOrder(ctx, &order); err != nil {
		return models.Order{}, fmt.Errorf("create order: %w", err)
	}
	return order, nil
}

func (s *OrderService) buildOrder(in CreateOrderInput) (models.Order, error) {
	if in.Side != domain.SideBuy && in.Side != domain.SideSell {
		return models.Order{}, fmt.Errorf("%w: unknown side %q", models.ErrValidation, in.Side)
	}
	if in.PriceType != domain.PriceTypeMarket && in.PriceType != domain.PriceTypeLimit {
		return models.Order{}, fmt.Errorf("%w: unknown price type %q", models.ErrValidation, in.PriceType)
	}
	amount, err := domain.ParsePositiveAmount(in.Amount)
	if err != nil {
		return models.Order{}, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}

	order := models.Order{
		ID:           s.node.Generate().Int64(),
		UserID:       in.UserID,
		Side:         in.Side,
		PriceType:    in.PriceType,
		Status:       domain.OrderStatusPending,
		FilledAmount: decimal.Zero,
	}
	if in.Side == domain.SideBuy {
		order.Amount = amount
		order.TokenAmount = decimal.Zero
	} else {
		order.TokenAmount = amount
		order.Amount = decimal.Zero
	}

	switch in.PriceType {
	case domain.PriceTypeLimit:
		if in.LimitPrice == "" {
			return models.Order{}, fmt.Errorf("%w: limit order requires limit_price", models.ErrValidation)
		}
		limitPrice, err := domain.ParsePositiveAmount(in.LimitPrice)
		if err != nil {
			return models.Order{}, fmt.Errorf("%w: %v", models.ErrValidation, err)
		}
		order.LimitPrice = &limitPrice
	case domain.PriceTypeMarket:
		if in.LimitPrice != "" {
			return models.Order{}, fmt.Errorf("%w: market order must not carry limit_price", models.ErrValidation)
		}
	}
	return order, nil
}

// executeMarket inserts and settles the order in one transaction at the
// price snapshotted inside that transaction.
func (s *OrderService) executeMarket(ctx context.Context, order models.Order) (models.Order, error) {
	var (
		settled models.Order
		price   decimal.Decimal
	)
	err := s.store.RunInTx(ctx, func(q repository.Queries) error {
		if err := q.SetLockTimeout(ctx, s.lockTimeout); err != nil {
			return err
		}
		if err := q.InsertOrder(ctx, &order); err != nil {
			return err
		}
		var err error
		price, err = snapshotPrice(ctx, q)
		if err != nil {
			return err
		}
		settled, err = s.settler.Settle(ctx, q, order, price)
		return err
	})
	if err != nil {
		return models.Order{}, fmt.Errorf("execute market order: %w", err)
	}

	s.sink.OrderFilled(ctx, notify.OrderEvent{
		OrderID: settled.ID,
		UserID:  settled.UserID.String(),
		Side:    settled.Side,
		Status:  settled.Status,
		Amount:  settled.Amount,
		Price:   price,
		At:      time.Now().UTC(),
	})
	return settled, nil
}

// Cancel transitions a PENDING or PARTIAL order to CANCELED. Only the owner
// or an admin may cancel. Canceling an already-canceled order reports
// ErrAlreadyCanceled without mutating anything.
func (s *OrderService) Cancel(ctx context.Context, orderID int64, actorID uuid.UUID, admin bool) (models.Order, error) {
	order, err := s.store.Queries().GetOrder(ctx, orderID)
	if err != nil {
		return models.Order{}, fmt.Errorf("cancel order: %w", err)
	}
	if order.UserID != actorID && !admin {
		return models.Order{}, fmt.Errorf("cancel order %d: %w", orderID, models.ErrNotOwned)
	}
	if err := checkCancelable(order); err != nil {
		return models.Order{}, err
	}

	now := time.Now().UTC()
	rows, err := s.store.Queries().UpdateOrderStatusCAS(ctx, repository.UpdateOrderStatusParams{
		ID:         orderID,
		FromStatus: order.Status,
		ToStatus:   domain.OrderStatusCanceled,
		CanceledAt: &now,
	})
	if err != nil {
		return models.Order{}, fmt.Errorf("cancel order: %w", err)
	}
	if rows == 0 {
		// Lost a race against a fill or another cancel. Re-read and report
		// what actually happened.
		current, err := s.store.Queries().GetOrder(ctx, orderID)
		if err != nil {
			return models.Order{}, fmt.Errorf("cancel order: %w", err)
		}
		if cErr := checkCancelable(current); cErr != nil {
			return models.Order{}, cErr
		}
		return models.Order{}, fmt.Errorf("cancel order %d: concurrent status change", orderID)
	}

	order.Status = domain.OrderStatusCanceled
	order.CanceledAt = &now
	s.sink.OrderCanceled(ctx, notify.OrderEvent{
		OrderID: order.ID,
		UserID:  order.UserID.String(),
		Side:    order.Side,
		Status:  order.Status,
		Amount:  order.Amount,
		At:      now,
	})
	return order, nil
}

func checkCancelable(order models.Order) error {
	if order.Status == domain.OrderStatusCanceled {
		return fmt.Errorf("cancel order %d: %w", order.ID, models.ErrAlreadyCanceled)
	}
	if !isCancelable(order.Status) {
		return fmt.Errorf("cancel order %d in status %s: %w", order.ID, order.Status, models.ErrNotCancelable)
	}
	return nil
}

// Get returns one order, restricted to its owner unless the actor is an
// admin.
func (s *OrderService) Get(ctx context.Context, orderID int64, actorID uuid.UUID, admin bool) (models.Order, error) {
	order, err := s.store.Queries().GetOrder(ctx, orderID)
	if err != nil {
		return models.Order{}, fmt.Errorf("get order: %w", err)
	}
	if order.UserID != actorID && !admin {
		return models.Order{}, fmt.Errorf("get order %d: %w", orderID, models.ErrNotOwned)
	}
	return order, nil
}

// List returns the actor's orders, newest first.
func (s *OrderService) List(ctx context.Context, userID uuid.UUID, limit, offset int32) ([]models.Order, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	orders, err := s.store.Queries().ListOrdersByUser(ctx, repository.ListOrdersByUserParams{
		UserID: userID,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}
