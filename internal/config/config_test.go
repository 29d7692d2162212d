package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func mustParse(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("FEE_RECEIVER_ID", "99999999-9999-9999-9999-999999999999")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.HTTPPort)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, 5*time.Second, cfg.MatchingInterval)
	require.EqualValues(t, 500, cfg.MatchingBatchSize)
	require.False(t, cfg.CancelOnInsufficientFunds)
	require.Equal(t, 2*time.Second, cfg.WalletLockTimeout)
	require.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	require.True(t, cfg.TotalTokenSupply.Equal(mustParse(t, "100000000")))
	require.True(t, cfg.InitialInvestment.IsZero())
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("TOKENMARKET_PORT", "9090")
	t.Setenv("TOTAL_TOKEN_SUPPLY", "100000000")
	t.Setenv("INITIAL_INVESTMENT", "350000")
	t.Setenv("MATCHING_INTERVAL", "250ms")
	t.Setenv("CANCEL_ON_INSUFFICIENT_FUNDS", "true")
	t.Setenv("DISTRIBUTED_TICK_LOCK", "true")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "9090", cfg.HTTPPort)
	require.True(t, cfg.InitialInvestment.Equal(mustParse(t, "350000")))
	require.Equal(t, 250*time.Millisecond, cfg.MatchingInterval)
	require.True(t, cfg.CancelOnInsufficientFunds)
	require.True(t, cfg.DistributedTickLock)
}

func TestLoadRejectsMissingSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("FEE_RECEIVER_ID", "99999999-9999-9999-9999-999999999999")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoadRejectsShortSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "too-short")
	t.Setenv("FEE_RECEIVER_ID", "99999999-9999-9999-9999-999999999999")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "32 characters")
}

func TestLoadRejectsBadBootstrapValues(t *testing.T) {
	setRequired(t)
	t.Setenv("TOTAL_TOKEN_SUPPLY", "0")
	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "TOTAL_TOKEN_SUPPLY")

	t.Setenv("TOTAL_TOKEN_SUPPLY", "100000000")
	t.Setenv("INITIAL_INVESTMENT", "-1")
	_, err = Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "INITIAL_INVESTMENT")
}

func TestLoadRejectsBadFeeReceiver(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("FEE_RECEIVER_ID", "not-a-uuid")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "FEE_RECEIVER_ID")
}
