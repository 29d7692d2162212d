package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/quantory/tokenmarket/internal/domain"
	"github.com/quantory/tokenmarket/internal/models"
	"github.com/stretchr/testify/require"
)

func createLimitOrder(t *testing.T, env *testEnv, userID uuid.UUID, side, amount, limitPrice string) models.Order {
	t.Helper()
	order, err := env.orders.Create(context.Background(), CreateOrderInput{
		UserID:     userID,
		Side:       side,
		PriceType:  domain.PriceTypeLimit,
		Amount:     amount,
		LimitPrice: limitPrice,
	})
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPending, order.Status)
	return order
}

func TestTickFillsEligibleLimitBuy(t *testing.T) {
	env := newTestEnv(t)
	env.zeroTradeFees(t)
	ctx := context.Background()
	userID := uuid.New()
	env.fund(t, userID, "1000", "0")

	order := createLimitOrder(t, env, userID, domain.SideBuy, "100", "0.0035")

	report, err := env.engine.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.ExecutedCount)
	require.Equal(t, 0, report.SkippedWaitingOnPrice)
	require.Equal(t, 0, report.SkippedOrErroredCount)
	requireDecEqual(t, mustDec("0.0035"), report.CurrentPrice)

	filled, err := env.store.Queries().GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusFilled, filled.Status)
	require.NotNil(t, filled.ExecutedAt)
	requireDecEqual(t, mustDec("28571.42857143"), filled.TokenAmount)

	_, token := env.balances(t, userID)
	requireDecEqual(t, mustDec("28571.42857143"), token)

	quote, err := env.pricing.CurrentPrice(ctx)
	require.NoError(t, err)
	requireDecEqual(t, mustDec("350100"), quote.TotalInvestment)
	requireDecEqual(t, mustDec("0.003501"), quote.Price)
}

func TestTickFeeRouting(t *testing.T) {
	env := newTestEnv(t)
	env.setFee(t, domain.TxTypeBuy, "0.001")
	env.setFee(t, domain.TxTypeSell, "0")
	ctx := context.Background()
	userID := uuid.New()
	env.fund(t, userID, "1000", "0")

	createLimitOrder(t, env, userID, domain.SideBuy, "100", "0.0035")
	_, err := env.engine.RunOnce(ctx)
	require.NoError(t, err)

	// Gross 28571.42857143 tokens, fee 28.57142857, net to buyer.
	_, buyerTokens := env.balances(t, userID)
	_, feeTokens := env.balances(t, testFeeReceiverID)
	requireDecEqual(t, mustDec("28.57142857"), feeTokens)
	requireDecEqual(t, mustDec("28542.85714286"), buyerTokens)
}

func TestSellLimitWaitsOnPrice(t *testing.T) {
	env := newTestEnv(t)
	env.zeroTradeFees(t)
	ctx := context.Background()
	seller := uuid.New()
	env.fund(t, seller, "0", "1000")

	order := createLimitOrder(t, env, seller, domain.SideSell, "1000", "0.0040")

	// Price 0.0035 is below the limit; the order waits across ticks.
	for i := 0; i < 3; i++ {
		report, err := env.engine.RunOnce(ctx)
		require.NoError(t, err)
		require.Equal(t, 0, report.ExecutedCount)
		require.Equal(t, 1, report.SkippedWaitingOnPrice)
	}
	pending, err := env.store.Queries().GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPending, pending.Status)

	// A large buy pushes investment to 400,000 and price to 0.0040.
	buyer := uuid.New()
	env.fund(t, buyer, "50000", "0")
	_, err = env.orders.Create(ctx, CreateOrderInput{
		UserID: buyer, Side: domain.SideBuy, PriceType: domain.PriceTypeMarket, Amount: "50000",
	})
	require.NoError(t, err)

	report, err := env.engine.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.ExecutedCount)

	filled, err := env.store.Queries().GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusFilled, filled.Status)
}

func TestFIFOFairnessUnderScarceBalance(t *testing.T) {
	env := newTestEnv(t)
	env.zeroTradeFees(t)
	ctx := context.Background()
	userID := uuid.New()
	// Enough for one 100-currency order but not two.
	env.fund(t, userID, "150", "0")

	first := createLimitOrder(t, env, userID, domain.SideBuy, "100", "0.0035")
	second := createLimitOrder(t, env, userID, domain.SideBuy, "100", "0.0035")

	report, err := env.engine.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.ExecutedCount)
	require.Equal(t, 1, report.SkippedOrErroredCount)

	firstStored, err := env.store.Queries().GetOrder(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusFilled, firstStored.Status)

	// The younger order keeps its queue position for the next tick.
	secondStored, err := env.store.Queries().GetOrder(ctx, second.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPending, secondStored.Status)
}

func TestSnapshotPriceHoldsForWholeTick(t *testing.T) {
	env := newTestEnv(t)
	env.zeroTradeFees(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	env.fund(t, a, "100", "0")
	env.fund(t, b, "100", "0")

	// Both limits sit exactly at the snapshot price. The first fill moves
	// the live price above 0.0035, but the second order is still judged
	// against the tick snapshot and fills too.
	createLimitOrder(t, env, a, domain.SideBuy, "100", "0.0035")
	createLimitOrder(t, env, b, domain.SideBuy, "100", "0.0035")

	report, err := env.engine.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, report.ExecutedCount)
	require.Equal(t, 0, report.SkippedWaitingOnPrice)
}

func TestSettlementAtomicityOnStorageFault(t *testing.T) {
	env := newTestEnv(t)
	env.zeroTradeFees(t)
	ctx := context.Background()
	userID := uuid.New()
	env.fund(t, userID, "1000", "0")

	order := createLimitOrder(t, env, userID, domain.SideBuy, "100", "0.0035")

	beforeCurrency, beforeToken := env.balances(t, userID)
	beforeQuote, err := env.pricing.CurrentPrice(ctx)
	require.NoError(t, err)

	env.store.FailOnce("InsertTransaction", errors.New("storage connection lost"))

	report, err := env.engine.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, report.ExecutedCount)
	require.Equal(t, 1, report.SkippedOrErroredCount)

	// Everything rolled back: order, balances, accumulator.
	stored, err := env.store.Queries().GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPending, stored.Status)

	afterCurrency, afterToken := env.balances(t, userID)
	requireDecEqual(t, beforeCurrency, afterCurrency)
	requireDecEqual(t, beforeToken, afterToken)

	afterQuote, err := env.pricing.CurrentPrice(ctx)
	require.NoError(t, err)
	requireDecEqual(t, beforeQuote.TotalInvestment, afterQuote.TotalInvestment)

	// The fault was transient; the next tick retries and fills.
	report, err = env.engine.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.ExecutedCount)
}

func TestRunOnceSingleFlight(t *testing.T) {
	env := newTestEnv(t)

	env.engine.running.Store(true)
	_, err := env.engine.RunOnce(context.Background())
	require.ErrorIs(t, err, models.ErrTickInProgress)
	env.engine.running.Store(false)

	_, err = env.engine.RunOnce(context.Background())
	require.NoError(t, err)
}

func TestCancelOnInsufficientFundsPolicy(t *testing.T) {
	env := newTestEnv(t, WithCancelOnInsufficientFunds(true))
	env.zeroTradeFees(t)
	ctx := context.Background()
	userID := uuid.New()
	env.fund(t, userID, "150", "0")

	createLimitOrder(t, env, userID, domain.SideBuy, "100", "0.0035")
	second := createLimitOrder(t, env, userID, domain.SideBuy, "100", "0.0035")

	report, err := env.engine.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.ExecutedCount)
	require.Equal(t, 1, report.SkippedOrErroredCount)

	// Under the strict policy the underfunded order is canceled instead
	// of staying queued.
	stored, err := env.store.Queries().GetOrder(ctx, second.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCanceled, stored.Status)
}

func TestCanceledOrderIgnoredByTick(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	env.fund(t, userID, "1000", "0")

	order := createLimitOrder(t, env, userID, domain.SideBuy, "100", "0.0035")
	_, err := env.orders.Cancel(ctx, order.ID, userID, false)
	require.NoError(t, err)

	report, err := env.engine.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, report.ExecutedCount)
	require.Equal(t, 0, report.SkippedWaitingOnPrice)
	require.Equal(t, 0, report.SkippedOrErroredCount)
}
