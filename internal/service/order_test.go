package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/quantory/tokenmarket/internal/domain"
	"github.com/quantory/tokenmarket/internal/models"
	"github.com/stretchr/testify/require"
)

func TestCreateLimitOrderRequiresLimitPrice(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New()
	env.fund(t, userID, "1000", "0")

	_, err := env.orders.Create(context.Background(), CreateOrderInput{
		UserID:    userID,
		Side:      domain.SideBuy,
		PriceType: domain.PriceTypeLimit,
		Amount:    "100",
	})
	require.ErrorIs(t, err, models.ErrValidation)

	// Nothing was queued.
	pending, err := env.store.Queries().ListPendingLimitOrders(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestCreateMarketOrderRejectsLimitPrice(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New()
	env.fund(t, userID, "1000", "0")

	_, err := env.orders.Create(context.Background(), CreateOrderInput{
		UserID:     userID,
		Side:       domain.SideBuy,
		PriceType:  domain.PriceTypeMarket,
		Amount:     "100",
		LimitPrice: "0.0035",
	})
	require.ErrorIs(t, err, models.ErrValidation)
}

func TestCreateOrderValidatesSideAndAmount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	env.fund(t, userID, "1000", "0")

	_, err := env.orders.Create(ctx, CreateOrderInput{
		UserID: userID, Side: "HOLD", PriceType: domain.PriceTypeMarket, Amount: "1",
	})
	require.ErrorIs(t, err, models.ErrValidation)

	_, err = env.orders.Create(ctx, CreateOrderInput{
		UserID: userID, Side: domain.SideBuy, PriceType: domain.PriceTypeMarket, Amount: "0",
	})
	require.ErrorIs(t, err, models.ErrValidation)
}

func TestCreateOrderAdvisoryBalanceGate(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New()
	env.fund(t, userID, "50", "0")

	_, err := env.orders.Create(context.Background(), CreateOrderInput{
		UserID:    userID,
		Side:      domain.SideBuy,
		PriceType: domain.PriceTypeLimit,
		Amount:    "100",
		LimitPrice: "0.0035",
	})
	require.ErrorIs(t, err, models.ErrInsufficientFunds)
}

func TestMarketBuySettlesImmediately(t *testing.T) {
	env := newTestEnv(t)
	env.zeroTradeFees(t)
	ctx := context.Background()
	userID := uuid.New()
	env.fund(t, userID, "1000", "0")

	order, err := env.orders.Create(ctx, CreateOrderInput{
		UserID:    userID,
		Side:      domain.SideBuy,
		PriceType: domain.PriceTypeMarket,
		Amount:    "100",
	})
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusFilled, order.Status)
	require.NotNil(t, order.ExecutedAt)
	requireDecEqual(t, mustDec("28571.42857143"), order.TokenAmount)

	currency, token := env.balances(t, userID)
	requireDecEqual(t, mustDec("900"), currency)
	requireDecEqual(t, mustDec("28571.42857143"), token)

	quote, err := env.pricing.CurrentPrice(ctx)
	require.NoError(t, err)
	requireDecEqual(t, mustDec("350100"), quote.TotalInvestment)
	requireDecEqual(t, mustDec("0.003501"), quote.Price)
}

func TestMarketSellSettlesImmediately(t *testing.T) {
	env := newTestEnv(t)
	env.zeroTradeFees(t)
	ctx := context.Background()
	userID := uuid.New()
	env.fund(t, userID, "0", "1000")

	order, err := env.orders.Create(ctx, CreateOrderInput{
		UserID:    userID,
		Side:      domain.SideSell,
		PriceType: domain.PriceTypeMarket,
		Amount:    "1000",
	})
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusFilled, order.Status)
	requireDecEqual(t, mustDec("3.5"), order.Amount)

	currency, token := env.balances(t, userID)
	requireDecEqual(t, mustDec("3.5"), currency)
	requireDecEqual(t, mustDec("0"), token)

	quote, err := env.pricing.CurrentPrice(ctx)
	require.NoError(t, err)
	requireDecEqual(t, mustDec("349996.5"), quote.TotalInvestment)
}

func TestMarketOrderInsufficientAtExecution(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	env.fund(t, userID, "0", "50")

	_, err := env.orders.Create(ctx, CreateOrderInput{
		UserID:    userID,
		Side:      domain.SideSell,
		PriceType: domain.PriceTypeMarket,
		Amount:    "100",
	})
	require.ErrorIs(t, err, models.ErrInsufficientFunds)
}

func TestCancelPendingOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	env.fund(t, userID, "1000", "0")

	order, err := env.orders.Create(ctx, CreateOrderInput{
		UserID:     userID,
		Side:       domain.SideBuy,
		PriceType:  domain.PriceTypeLimit,
		Amount:     "100",
		LimitPrice: "0.003",
	})
	require.NoError(t, err)

	canceled, err := env.orders.Cancel(ctx, order.ID, userID, false)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCanceled, canceled.Status)
	require.NotNil(t, canceled.CanceledAt)
}

func TestCancelIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	env.fund(t, userID, "1000", "0")

	order, err := env.orders.Create(ctx, CreateOrderInput{
		UserID:     userID,
		Side:       domain.SideBuy,
		PriceType:  domain.PriceTypeLimit,
		Amount:     "100",
		LimitPrice: "0.003",
	})
	require.NoError(t, err)

	_, err = env.orders.Cancel(ctx, order.ID, userID, false)
	require.NoError(t, err)

	_, err = env.orders.Cancel(ctx, order.ID, userID, false)
	require.ErrorIs(t, err, models.ErrAlreadyCanceled)

	// State is unchanged by the second attempt.
	stored, err := env.store.Queries().GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCanceled, stored.Status)
}

func TestCancelFilledOrderRejected(t *testing.T) {
	env := newTestEnv(t)
	env.zeroTradeFees(t)
	ctx := context.Background()
	userID := uuid.New()
	env.fund(t, userID, "1000", "0")

	order, err := env.orders.Create(ctx, CreateOrderInput{
		UserID:    userID,
		Side:      domain.SideBuy,
		PriceType: domain.PriceTypeMarket,
		Amount:    "100",
	})
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusFilled, order.Status)

	_, err = env.orders.Cancel(ctx, order.ID, userID, false)
	require.ErrorIs(t, err, models.ErrNotCancelable)

	stored, err := env.store.Queries().GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusFilled, stored.Status)
}

func TestCancelOwnership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner, stranger, admin := uuid.New(), uuid.New(), uuid.New()
	env.fund(t, owner, "1000", "0")

	order, err := env.orders.Create(ctx, CreateOrderInput{
		UserID:     owner,
		Side:       domain.SideBuy,
		PriceType:  domain.PriceTypeLimit,
		Amount:     "100",
		LimitPrice: "0.003",
	})
	require.NoError(t, err)

	_, err = env.orders.Cancel(ctx, order.ID, stranger, false)
	require.ErrorIs(t, err, models.ErrNotOwned)

	// Admins may cancel on behalf of any user.
	canceled, err := env.orders.Cancel(ctx, order.ID, admin, true)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCanceled, canceled.Status)
}

func TestCancelUnknownOrder(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.orders.Cancel(context.Background(), 12345, uuid.New(), false)
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestListOrdersNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	env.fund(t, userID, "1000", "0")

	first, err := env.orders.Create(ctx, CreateOrderInput{
		UserID: userID, Side: domain.SideBuy, PriceType: domain.PriceTypeLimit,
		Amount: "10", LimitPrice: "0.003",
	})
	require.NoError(t, err)
	second, err := env.orders.Create(ctx, CreateOrderInput{
		UserID: userID, Side: domain.SideBuy, PriceType: domain.PriceTypeLimit,
		Amount: "20", LimitPrice: "0.003",
	})
	require.NoError(t, err)

	orders, err := env.orders.List(ctx, userID, 10, 0)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	require.Equal(t, second.ID, orders[0].ID)
	require.Equal(t, first.ID, orders[1].ID)
}
