package service

import (
	"context"
	"fmt"
	"time"

	"github.com/quantory/tokenmarket/internal/domain"
	"github.com/quantory/tokenmarket/internal/models"
	"github.com/quantory/tokenmarket/internal/repository"
	"github.com/shopspring/decimal"
)

// PricingService owns the investment accumulator that the deterministic
// price derives from. It never invents a price: a missing state row is an
// error, not a default quote.
type PricingService struct {
	store QueryStore
}

func NewPricingService(store QueryStore) *PricingService {
	return &PricingService{store: store}
}

// PriceQuote is a point-in-time read of the price model.
type PriceQuote struct {
	Price            decimal.Decimal `json:"price"`
	TotalInvestment  decimal.Decimal `json:"total_investment"`
	TotalTokenSupply decimal.Decimal `json:"total_token_supply"`
	Version          int64           `json:"version"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// EnsurePriceState seeds the singleton price state at startup. Supply must
// be strictly positive so the price quotient is always defined. The insert
// is idempotent; an existing row wins over the configured values.
func (s *PricingService) EnsurePriceState(ctx context.Context, totalTokenSupply, initialInvestment decimal.Decimal) error {
	if !totalTokenSupply.IsPositive() {
		return fmt.Errorf("%w: total token supply must be positive, got %s", models.ErrValidation, totalTokenSupply)
	}
	if initialInvestment.IsNegative() {
		return fmt.Errorf("%w: initial investment must not be negative, got %s", models.ErrValidation, initialInvestment)
	}
	ps := models.PriceState{
		TotalTokenSupply:  totalTokenSupply,
		TotalInvestment:   initialInvestment,
		InitialInvestment: initialInvestment,
	}
	if err := s.store.Queries().InsertPriceState(ctx, &ps); err != nil {
		return fmt.Errorf("ensure price state: %w", err)
	}
	return nil
}

// CurrentPrice returns the live quote derived from the accumulator.
func (s *PricingService) CurrentPrice(ctx context.Context) (PriceQuote, error) {
	ps, err := s.store.Queries().GetPriceState(ctx)
	if err != nil {
		return PriceQuote{}, fmt.Errorf("current price: %w", err)
	}
	return quoteFromState(ps), nil
}

func quoteFromState(ps models.PriceState) PriceQuote {
	return PriceQuote{
		Price:            domain.DerivePrice(ps.TotalInvestment, ps.TotalTokenSupply),
		TotalInvestment:  ps.TotalInvestment,
		TotalTokenSupply: ps.TotalTokenSupply,
		Version:          ps.Version,
		UpdatedAt:        ps.UpdatedAt,
	}
}

// snapshotPrice reads the price once inside a transaction. Settlements and
// tick scans use this so every decision in one atomic unit sees a single
// consistent price.
func snapshotPrice(ctx context.Context, q repository.Queries) (decimal.Decimal, error) {
	ps, err := q.GetPriceState(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("snapshot price: %w", err)
	}
	return domain.DerivePrice(ps.TotalInvestment, ps.TotalTokenSupply), nil
}
