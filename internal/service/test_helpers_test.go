package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/quantory/tokenmarket/internal/domain"
	"github.com/quantory/tokenmarket/internal/notify"
	"github.com/quantory/tokenmarket/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testFeeReceiverID = uuid.MustParse("99999999-9999-9999-9999-999999999999")

// testEnv wires the full service stack against the in-memory store, seeded
// with supply 100,000,000 and investment 350,000 so the starting price is
// exactly 0.0035.
type testEnv struct {
	store     *repository.MemoryStore
	pricing   *PricingService
	fees      *FeeService
	wallets   *WalletService
	settler   *Settler
	orders    *OrderService
	engine    *MatchingEngine
	referrals *ReferralService
	recon     *ReconciliationService
}

func newTestEnv(t *testing.T, opts ...MatchingOption) *testEnv {
	t.Helper()
	return newTestEnvWithInvestment(t, "350000", opts...)
}

func newTestEnvWithInvestment(t *testing.T, investment string, opts ...MatchingOption) *testEnv {
	t.Helper()
	ctx := context.Background()

	store := repository.NewMemoryStore()
	pricing := NewPricingService(store)
	require.NoError(t, pricing.EnsurePriceState(ctx,
		decimal.RequireFromString("100000000"),
		decimal.RequireFromString(investment)))

	fees := NewFeeService(store)
	wallets := NewWalletService(store, fees, testFeeReceiverID, time.Second)
	_, err := wallets.EnsureWallet(ctx, testFeeReceiverID)
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	settler := NewSettler(fees, testFeeReceiverID)
	sink := notify.NewNoopSink()

	return &testEnv{
		store:     store,
		pricing:   pricing,
		fees:      fees,
		wallets:   wallets,
		settler:   settler,
		orders:    NewOrderService(store, settler, wallets, sink, node, time.Second),
		engine:    NewMatchingEngine(store, settler, sink, time.Second, opts...),
		referrals: NewReferralService(store, time.Second),
		recon:     NewReconciliationService(store),
	}
}

// fund creates the wallet and credits it directly, bypassing fees.
func (e *testEnv) fund(t *testing.T, userID uuid.UUID, currency, token string) {
	t.Helper()
	ctx := context.Background()
	_, err := e.wallets.EnsureWallet(ctx, userID)
	require.NoError(t, err)
	rows, err := e.store.Queries().AdjustWalletBalances(ctx, repository.AdjustWalletBalancesParams{
		UserID:        userID,
		CurrencyDelta: decimal.RequireFromString(currency),
		TokenDelta:    decimal.RequireFromString(token),
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, rows)
}

// setFee activates an explicit rate for one transaction type.
func (e *testEnv) setFee(t *testing.T, txType, rate string) {
	t.Helper()
	_, err := e.fees.SetFeeConfig(context.Background(), txType, rate, true)
	require.NoError(t, err)
}

// zeroTradeFees disables buy and sell fees so settlement math is exact.
func (e *testEnv) zeroTradeFees(t *testing.T) {
	t.Helper()
	e.setFee(t, domain.TxTypeBuy, "0")
	e.setFee(t, domain.TxTypeSell, "0")
}

func (e *testEnv) balances(t *testing.T, userID uuid.UUID) (currency, token decimal.Decimal) {
	t.Helper()
	w, err := e.wallets.GetBalances(context.Background(), userID)
	require.NoError(t, err)
	return w.CurrencyBalance, w.TokenBalance
}

func mustDec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireDecEqual(t *testing.T, want, got decimal.Decimal) {
	t.Helper()
	require.True(t, want.Equal(got), "want %s, got %s", want, got)
}
