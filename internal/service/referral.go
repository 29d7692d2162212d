package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quantory/tokenmarket/internal/domain"
	"github.com/quantory/tokenmarket/internal/models"
	"github.com/quantory/tokenmarket/internal/repository"
	"github.com/shopspring/decimal"
)

// ReferralService attributes staking-payout commissions to referrers. The
// commission rate arrives with each payout event; it is not part of the
// fee table.
type ReferralService struct {
	store       QueryStore
	lockTimeout time.Duration
}

func NewReferralService(store QueryStore, lockTimeout time.Duration) *ReferralService {
	return &ReferralService{store: store, lockTimeout: lockTimeout}
}

// RecordStakingPayout writes the earning row and credits the referrer in
// one transaction, so a commission is never credited without its audit row
// or vice versa.
func (s *ReferralService) RecordStakingPayout(ctx context.Context, referrerID uuid.UUID, stakingID int64, profitAmount, commissionRate string) (models.ReferralEarning, error) {
	profit, err := domain.ParsePositiveAmount(profitAmount)
	if err != nil {
		return models.ReferralEarning{}, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	rate, err := domain.ParseRate(commissionRate)
	if err != nil {
		return models.ReferralEarning{}, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	commission := profit.Mul(rate).Round(domain.AmountPlaces)
	if !commission.IsPositive() {
		return models.ReferralEarning{}, fmt.Errorf("%w: commission rounds to zero", models.ErrValidation)
	}

	earning := models.ReferralEarning{
		ID:         uuid.New(),
		ReferralID: referrerID,
		StakingID:  stakingID,
		Amount:     commission,
	}
	err = s.store.RunInTx(ctx, func(q repository.Queries) error {
		if err := q.SetLockTimeout(ctx, s.lockTimeout); err != nil {
			return err
		}
		if err := lockWallets(ctx, q, referrerID); err != nil {
			return err
		}
		if err := adjustBalance(ctx, q, referrerID, domain.AssetCurrency, commission); err != nil {
			return err
		}
		if err := q.InsertReferralEarning(ctx, &earning); err != nil {
			return err
		}
		ledgerRow := models.Transaction{
			ID:     uuid.New(),
			Type:   domain.TxTypeReferral,
			UserID: referrerID,
			Asset:  domain.AssetCurrency,
			Amount: commission,
			Fee:    decimal.Zero,
			Net:    commission,
		}
		return q.InsertTransaction(ctx, &ledgerRow)
	})
	if err != nil {
		return models.ReferralEarning{}, fmt.Errorf("record staking payout: %w", err)
	}
	return earning, nil
}

// Analytics aggregates a referrer's lifetime earnings. Read-only.
func (s *ReferralService) Analytics(ctx context.Context, referrerID uuid.UUID) (models.ReferralAnalytics, error) {
	return s.store.Queries().GetReferralAnalytics(ctx, referrerID)
}

// ListEarnings returns the most recent earnings for a referrer.
func (s *ReferralService) ListEarnings(ctx context.Context, referrerID uuid.UUID, limit int32) ([]models.ReferralEarning, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.Queries().ListReferralEarnings(ctx, referrerID, limit)
}
