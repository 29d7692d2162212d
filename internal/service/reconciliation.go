package service

import (
	"context"
	"fmt"

	"github.com/quantory/tokenmarket/internal/observability"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReconciliationService cross-checks the price accumulator against the
// trade ledger and scans wallets for impossible balances. It only reports;
// it never repairs.
type ReconciliationService struct {
	store QueryStore
}

func NewReconciliationService(store QueryStore) *ReconciliationService {
	return &ReconciliationService{store: store}
}

// ReconciliationReport summarizes one run.
type ReconciliationReport struct {
	InvestmentBalanced bool            `json:"investment_balanced"`
	InvestmentDrift    decimal.Decimal `json:"investment_drift"`
	NegativeWallets    int             `json:"negative_wallets"`
}

// Run recomputes totalInvestment from the settled trade rows and compares
// it with the live accumulator. Every executed trade moved both inside one
// transaction, so any drift means corruption.
func (s *ReconciliationService) Run(ctx context.Context) (ReconciliationReport, error) {
	var report ReconciliationReport

	ps, err := s.store.Queries().GetPriceState(ctx)
	if err != nil {
		return report, fmt.Errorf("reconciliation price state: %w", err)
	}
	netFromLedger, err := s.store.Queries().SumNetInvestment(ctx)
	if err != nil {
		return report, fmt.Errorf("reconciliation ledger sum: %w", err)
	}

	expected := ps.InitialInvestment.Add(netFromLedger)
	report.InvestmentDrift = ps.TotalInvestment.Sub(expected)
	report.InvestmentBalanced = report.InvestmentDrift.IsZero()
	if !report.InvestmentBalanced {
		observability.IncrementLedgerImbalance("investment")
		zap.L().Error("investment accumulator diverged from trade ledger",
			zap.String("accumulator", ps.TotalInvestment.String()),
			zap.String("expected", expected.String()),
			zap.String("drift", report.InvestmentDrift.String()))
	}

	wallets, err := s.store.Queries().ListWallets(ctx)
	if err != nil {
		return report, fmt.Errorf("reconciliation wallet scan: %w", err)
	}
	for _, w := range wallets {
		if w.CurrencyBalance.IsNegative() || w.TokenBalance.IsNegative() {
			report.NegativeWallets++
			observability.IncrementLedgerImbalance("negative_balance")
			zap.L().Error("wallet holds negative balance",
				zap.String("user_id", w.UserID.String()),
				zap.String("currency_balance", w.CurrencyBalance.String()),
				zap.String("token_balance", w.TokenBalance.String()))
		}
	}
	return report, nil
}
