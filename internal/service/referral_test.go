package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/quantory/tokenmarket/internal/models"
	"github.com/stretchr/testify/require"
)

func TestRecordStakingPayoutCreditsReferrer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	referrer := uuid.New()
	env.fund(t, referrer, "0", "0")

	earning, err := env.referrals.RecordStakingPayout(ctx, referrer, 42, "1000", "0.05")
	require.NoError(t, err)
	requireDecEqual(t, mustDec("50"), earning.Amount)

	currency, _ := env.balances(t, referrer)
	requireDecEqual(t, mustDec("50"), currency)

	analytics, err := env.referrals.Analytics(ctx, referrer)
	require.NoError(t, err)
	requireDecEqual(t, mustDec("50"), analytics.TotalEarned)
	require.EqualValues(t, 1, analytics.EarningCount)
}

func TestRecordStakingPayoutValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	referrer := uuid.New()
	env.fund(t, referrer, "0", "0")

	_, err := env.referrals.RecordStakingPayout(ctx, referrer, 1, "-10", "0.05")
	require.ErrorIs(t, err, models.ErrValidation)

	_, err = env.referrals.RecordStakingPayout(ctx, referrer, 1, "100", "1.5")
	require.ErrorIs(t, err, models.ErrValidation)

	_, err = env.referrals.RecordStakingPayout(ctx, referrer, 1, "100", "0")
	require.ErrorIs(t, err, models.ErrValidation)
}

func TestReferralAnalyticsAggregates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	referrer, other := uuid.New(), uuid.New()
	env.fund(t, referrer, "0", "0")
	env.fund(t, other, "0", "0")

	_, err := env.referrals.RecordStakingPayout(ctx, referrer, 1, "100", "0.1")
	require.NoError(t, err)
	_, err = env.referrals.RecordStakingPayout(ctx, referrer, 2, "200", "0.1")
	require.NoError(t, err)
	_, err = env.referrals.RecordStakingPayout(ctx, other, 3, "500", "0.1")
	require.NoError(t, err)

	analytics, err := env.referrals.Analytics(ctx, referrer)
	require.NoError(t, err)
	requireDecEqual(t, mustDec("30"), analytics.TotalEarned)
	require.EqualValues(t, 2, analytics.EarningCount)

	earnings, err := env.referrals.ListEarnings(ctx, referrer, 10)
	require.NoError(t, err)
	require.Len(t, earnings, 2)
	require.EqualValues(t, 2, earnings[0].StakingID)
}
