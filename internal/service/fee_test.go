package service

import (
	"context"
	"testing"

	"github.com/quantory/tokenmarket/internal/domain"
	"github.com/quantory/tokenmarket/internal/models"
	"github.com/stretchr/testify/require"
)

func TestComputeFeeDefaultRate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	fee, net, err := env.fees.ComputeFee(ctx, env.store.Queries(), mustDec("1000"), domain.TxTypeBuy)
	require.NoError(t, err)
	requireDecEqual(t, mustDec("1"), fee)
	requireDecEqual(t, mustDec("999"), net)
}

func TestComputeFeeConfiguredRate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.setFee(t, domain.TxTypeBuy, "0.01")

	fee, net, err := env.fees.ComputeFee(ctx, env.store.Queries(), mustDec("1000"), domain.TxTypeBuy)
	require.NoError(t, err)
	requireDecEqual(t, mustDec("10"), fee)
	requireDecEqual(t, mustDec("990"), net)
}

func TestComputeFeeInactiveConfigFallsBack(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.fees.SetFeeConfig(ctx, domain.TxTypeWithdraw, "0.5", false)
	require.NoError(t, err)

	// Inactive row is ignored in favor of the built-in 0.002.
	fee, net, err := env.fees.ComputeFee(ctx, env.store.Queries(), mustDec("1000"), domain.TxTypeWithdraw)
	require.NoError(t, err)
	requireDecEqual(t, mustDec("2"), fee)
	requireDecEqual(t, mustDec("998"), net)
}

func TestSetFeeConfigValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.fees.SetFeeConfig(ctx, "staking", "0.1", true)
	require.ErrorIs(t, err, models.ErrValidation)

	_, err = env.fees.SetFeeConfig(ctx, domain.TxTypeBuy, "1", true)
	require.ErrorIs(t, err, models.ErrValidation)

	_, err = env.fees.SetFeeConfig(ctx, domain.TxTypeBuy, "-0.01", true)
	require.ErrorIs(t, err, models.ErrValidation)
}

func TestListFeeConfigsIncludesDefaults(t *testing.T) {
	env := newTestEnv(t)
	env.setFee(t, domain.TxTypeBuy, "0.005")

	configs, err := env.fees.ListFeeConfigs(context.Background())
	require.NoError(t, err)
	require.Len(t, configs, 6)

	byType := make(map[string]bool, len(configs))
	for _, cfg := range configs {
		byType[cfg.TransactionType] = cfg.Active
	}
	require.True(t, byType[domain.TxTypeBuy])
	require.False(t, byType[domain.TxTypeSell])
}
