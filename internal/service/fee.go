package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/quantory/tokenmarket/internal/domain"
	"github.com/quantory/tokenmarket/internal/models"
	"github.com/quantory/tokenmarket/internal/repository"
	"github.com/shopspring/decimal"
)

// defaultFeeRates is the built-in rate table used when no active FeeConfig
// row exists for a transaction type.
var defaultFeeRates = map[string]decimal.Decimal{
	domain.TxTypeBuy:      decimal.RequireFromString("0.001"),
	domain.TxTypeSell:     decimal.RequireFromString("0.001"),
	domain.TxTypeTransfer: decimal.RequireFromString("0.0005"),
	domain.TxTypeWithdraw: decimal.RequireFromString("0.002"),
	domain.TxTypeDeposit:  decimal.Zero,
	domain.TxTypeReferral: decimal.Zero,
}

// FeeService computes per-type fees and manages the configurable rate table.
type FeeService struct {
	store QueryStore
}

func NewFeeService(store QueryStore) *FeeService {
	return &FeeService{store: store}
}

// ComputeFee splits amount into fee and net for the given transaction type
// using the active configured rate, falling back to the built-in table when
// the row is absent or inactive.
func (s *FeeService) ComputeFee(ctx context.Context, q repository.Queries, amount decimal.Decimal, txType string) (fee, net decimal.Decimal, err error) {
	rate, err := s.rateFor(ctx, q, txType)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	fee = amount.Mul(rate).Round(domain.AmountPlaces)
	return fee, amount.Sub(fee), nil
}

func (s *FeeService) rateFor(ctx context.Context, q repository.Queries, txType string) (decimal.Decimal, error) {
	cfg, err := q.GetFeeConfig(ctx, txType)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return defaultRate(txType), nil
		}
		return decimal.Zero, fmt.Errorf("fee rate for %s: %w", txType, err)
	}
	if !cfg.Active {
		return defaultRate(txType), nil
	}
	return cfg.Rate, nil
}

func defaultRate(txType string) decimal.Decimal {
	if rate, ok := defaultFeeRates[txType]; ok {
		return rate
	}
	return decimal.Zero
}

// SetFeeConfig upserts the rate for one transaction type. Admin only at the
// API boundary.
func (s *FeeService) SetFeeConfig(ctx context.Context, txType, rate string, active bool) (models.FeeConfig, error) {
	if _, ok := defaultFeeRates[txType]; !ok {
		return models.FeeConfig{}, fmt.Errorf("%w: unknown transaction type %q", models.ErrValidation, txType)
	}
	parsed, err := domain.ParseRate(rate)
	if err != nil {
		return models.FeeConfig{}, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	cfg := models.FeeConfig{TransactionType: txType, Rate: parsed, Active: active}
	if err := s.store.Queries().UpsertFeeConfig(ctx, cfg); err != nil {
		return models.FeeConfig{}, fmt.Errorf("set fee config: %w", err)
	}
	return s.store.Queries().GetFeeConfig(ctx, txType)
}

// ListFeeConfigs returns every configured row plus defaults for types that
// have never been configured, so operators see the effective table.
func (s *FeeService) ListFeeConfigs(ctx context.Context) ([]models.FeeConfig, error) {
	configs, err := s.store.Queries().ListFeeConfigs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list fee configs: %w", err)
	}
	seen := make(map[string]struct{}, len(configs))
	for _, cfg := range configs {
		seen[cfg.TransactionType] = struct{}{}
	}
	for _, txType := range []string{
		domain.TxTypeBuy, domain.TxTypeSell, domain.TxTypeTransfer,
		domain.TxTypeWithdraw, domain.TxTypeDeposit, domain.TxTypeReferral,
	} {
		if _, ok := seen[txType]; !ok {
			configs = append(configs, models.FeeConfig{
				TransactionType: txType,
				Rate:            defaultRate(txType),
				Active:          false,
			})
		}
	}
	return configs, nil
}
