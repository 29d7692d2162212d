package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/quantory/tokenmarket/internal/domain"
	"github.com/quantory/tokenmarket/internal/models"
	"github.com/stretchr/testify/require"
)

func TestEnsureWalletIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	first, err := env.wallets.EnsureWallet(ctx, userID)
	require.NoError(t, err)
	second, err := env.wallets.EnsureWallet(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, first.UserID, second.UserID)
}

func TestDepositCreditsBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	tx, err := env.wallets.Deposit(ctx, userID, domain.AssetCurrency, "250.5")
	require.NoError(t, err)
	requireDecEqual(t, mustDec("250.5"), tx.Net)
	requireDecEqual(t, mustDec("0"), tx.Fee)

	currency, token := env.balances(t, userID)
	requireDecEqual(t, mustDec("250.5"), currency)
	requireDecEqual(t, mustDec("0"), token)
}

func TestDepositValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.wallets.Deposit(ctx, uuid.New(), domain.AssetCurrency, "-5")
	require.ErrorIs(t, err, models.ErrValidation)

	_, err = env.wallets.Deposit(ctx, uuid.New(), "GOLD", "5")
	require.ErrorIs(t, err, models.ErrValidation)
}

func TestTransferRoutesFee(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.setFee(t, domain.TxTypeTransfer, "0.01")

	sender, recipient := uuid.New(), uuid.New()
	env.fund(t, sender, "1000", "0")
	_, err := env.wallets.EnsureWallet(ctx, recipient)
	require.NoError(t, err)

	tx, err := env.wallets.Transfer(ctx, sender, recipient, "100")
	require.NoError(t, err)
	requireDecEqual(t, mustDec("100"), tx.Amount)
	requireDecEqual(t, mustDec("1"), tx.Fee)
	requireDecEqual(t, mustDec("99"), tx.Net)

	senderCurrency, _ := env.balances(t, sender)
	recipientCurrency, _ := env.balances(t, recipient)
	feeCurrency, _ := env.balances(t, testFeeReceiverID)
	requireDecEqual(t, mustDec("900"), senderCurrency)
	requireDecEqual(t, mustDec("99"), recipientCurrency)
	requireDecEqual(t, mustDec("1"), feeCurrency)
}

func TestTransferInsufficientFunds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sender, recipient := uuid.New(), uuid.New()
	env.fund(t, sender, "10", "0")
	_, err := env.wallets.EnsureWallet(ctx, recipient)
	require.NoError(t, err)

	_, err = env.wallets.Transfer(ctx, sender, recipient, "100")
	require.ErrorIs(t, err, models.ErrInsufficientFunds)

	// The failed transfer must not move anything.
	senderCurrency, _ := env.balances(t, sender)
	recipientCurrency, _ := env.balances(t, recipient)
	requireDecEqual(t, mustDec("10"), senderCurrency)
	requireDecEqual(t, mustDec("0"), recipientCurrency)
}

func TestTransferToSelfRejected(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New()
	env.fund(t, userID, "100", "0")

	_, err := env.wallets.Transfer(context.Background(), userID, userID, "10")
	require.ErrorIs(t, err, models.ErrValidation)
}

func TestWithdrawDebitsGrossAndRoutesFee(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.setFee(t, domain.TxTypeWithdraw, "0.02")

	userID := uuid.New()
	env.fund(t, userID, "500", "0")

	tx, err := env.wallets.Withdraw(ctx, userID, "100")
	require.NoError(t, err)
	requireDecEqual(t, mustDec("2"), tx.Fee)
	requireDecEqual(t, mustDec("98"), tx.Net)

	currency, _ := env.balances(t, userID)
	feeCurrency, _ := env.balances(t, testFeeReceiverID)
	requireDecEqual(t, mustDec("400"), currency)
	requireDecEqual(t, mustDec("2"), feeCurrency)
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New()
	env.fund(t, userID, "50", "0")

	_, err := env.wallets.Withdraw(context.Background(), userID, "100")
	require.ErrorIs(t, err, models.ErrInsufficientFunds)

	currency, _ := env.balances(t, userID)
	requireDecEqual(t, mustDec("50"), currency)
}

func TestListTransactionsNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := env.wallets.Deposit(ctx, userID, domain.AssetCurrency, "10")
	require.NoError(t, err)
	_, err = env.wallets.Withdraw(ctx, userID, "5")
	require.NoError(t, err)

	txs, err := env.wallets.ListTransactions(ctx, userID, 10, 0)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	require.Equal(t, domain.TxTypeWithdraw, txs[0].Type)
	require.Equal(t, domain.TxTypeDeposit, txs[1].Type)
}
