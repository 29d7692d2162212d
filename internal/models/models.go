package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet holds a user's currency and token balances. Exactly one wallet
// exists per user and both balances are never allowed to go negative.
type Wallet struct {
	UserID          uuid.UUID       `json:"user_id"`
	CurrencyBalance decimal.Decimal `json:"currency_balance"`
	TokenBalance    decimal.Decimal `json:"token_balance"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Order is a buy/sell request against the token market.
// LimitPrice is set iff PriceType is LIMIT. For BUY orders Amount is the
// currency to spend; for SELL orders TokenAmount is the tokens to sell and
// Amount is derived at execution time from the fill price.
type Order struct {
	ID           int64            `json:"id,string"`
	UserID       uuid.UUID        `json:"user_id"`
	Side         string           `json:"side"`
	PriceType    string           `json:"price_type"`
	Amount       decimal.Decimal  `json:"amount"`
	TokenAmount  decimal.Decimal  `json:"token_amount"`
	LimitPrice   *decimal.Decimal `json:"limit_price,omitempty"`
	Status       string           `json:"status"`
	FilledAmount decimal.Decimal  `json:"filled_amount"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	ExecutedAt   *time.Time       `json:"executed_at,omitempty"`
	CanceledAt   *time.Time       `json:"canceled_at,omitempty"`
}

// PriceState is the single versioned record backing the deterministic price
// model: price = TotalInvestment / TotalTokenSupply. TotalTokenSupply is
// fixed at bootstrap; TotalInvestment moves only via atomic in-transaction
// increments tied to settled trades.
type PriceState struct {
	TotalTokenSupply  decimal.Decimal `json:"total_token_supply"`
	TotalInvestment   decimal.Decimal `json:"total_investment"`
	InitialInvestment decimal.Decimal `json:"initial_investment"`
	Version           int64           `json:"version"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// FeeConfig is a per-transaction-type fee rate that can be toggled
// independently. Absent or inactive rows fall back to built-in defaults.
type FeeConfig struct {
	TransactionType string          `json:"transaction_type"`
	Rate            decimal.Decimal `json:"rate"`
	Active          bool            `json:"active"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Transaction is an immutable audit row recorded for every settlement leg.
type Transaction struct {
	ID             uuid.UUID        `json:"id"`
	Type           string           `json:"type"`
	UserID         uuid.UUID        `json:"user_id"`
	CounterpartyID *uuid.UUID       `json:"counterparty_id,omitempty"`
	OrderID        *int64           `json:"order_id,omitempty,string"`
	Asset          string           `json:"asset"`
	Amount         decimal.Decimal  `json:"amount"`
	Fee            decimal.Decimal  `json:"fee"`
	Net            decimal.Decimal  `json:"net"`
	Price          *decimal.Decimal `json:"price,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// ReferralEarning is an append-only commission entry derived from a staking
// payout event attributed to a referred user.
type ReferralEarning struct {
	ID         uuid.UUID       `json:"id"`
	ReferralID uuid.UUID       `json:"referral_id"`
	StakingID  int64           `json:"staking_id"`
	Amount     decimal.Decimal `json:"amount"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ReferralAnalytics is a read-only aggregation for reporting.
type ReferralAnalytics struct {
	ReferralID   uuid.UUID       `json:"referral_id"`
	TotalEarned  decimal.Decimal `json:"total_earned"`
	EarningCount int64           `json:"earning_count"`
}
