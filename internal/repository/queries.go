package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/quantory/tokenmarket/internal/models"
	"github.com/shopspring/decimal"
)

// Queries is the data-access contract shared by the Postgres and in-memory
// stores. All methods that can find nothing return models.ErrNotFound so
// services never depend on a driver error.
type Queries interface {
	// Wallets
	CreateWallet(ctx context.Context, w *models.Wallet) error
	GetWallet(ctx context.Context, userID uuid.UUID) (models.Wallet, error)
	GetWalletForUpdate(ctx context.Context, userID uuid.UUID) (models.Wallet, error)
	AdjustWalletBalances(ctx context.Context, arg AdjustWalletBalancesParams) (int64, error)
	ListWallets(ctx context.Context) ([]models.Wallet, error)

	// Orders
	InsertOrder(ctx context.Context, o *models.Order) error
	GetOrder(ctx context.Context, id int64) (models.Order, error)
	ListOrdersByUser(ctx context.Context, arg ListOrdersByUserParams) ([]models.Order, error)
	ListPendingLimitOrders(ctx context.Context, limit int32) ([]models.Order, error)
	UpdateOrderStatusCAS(ctx context.Context, arg UpdateOrderStatusParams) (int64, error)

	// Price state
	InsertPriceState(ctx context.Context, ps *models.PriceState) error
	GetPriceState(ctx context.Context) (models.PriceState, error)
	GetPriceStateForUpdate(ctx context.Context) (models.PriceState, error)
	ApplyInvestmentDelta(ctx context.Context, delta decimal.Decimal) (int64, error)

	// Fee configs
	GetFeeConfig(ctx context.Context, txType string) (models.FeeConfig, error)
	UpsertFeeConfig(ctx context.Context, cfg models.FeeConfig) error
	ListFeeConfigs(ctx context.Context) ([]models.FeeConfig, error)

	// Transactions
	InsertTransaction(ctx context.Context, t *models.Transaction) error
	ListTransactionsByUser(ctx context.Context, arg ListTransactionsByUserParams) ([]models.Transaction, error)
	SumNetInvestment(ctx context.Context) (decimal.Decimal, error)

	// Referral earnings
	InsertReferralEarning(ctx context.Context, e *models.ReferralEarning) error
	GetReferralAnalytics(ctx context.Context, referralID uuid.UUID) (models.ReferralAnalytics, error)
	ListReferralEarnings(ctx context.Context, referralID uuid.UUID, limit int32) ([]models.ReferralEarning, error)

	// SetLockTimeout bounds row-lock waits for the remainder of the current
	// transaction. Outside a transaction it is a no-op.
	SetLockTimeout(ctx context.Context, d time.Duration) error
}

// AdjustWalletBalancesParams applies signed deltas to both balances of one
// wallet. The update refuses to drive either balance negative; callers check
// the affected row count.
type AdjustWalletBalancesParams struct {
	UserID        uuid.UUID
	CurrencyDelta decimal.Decimal
	TokenDelta    decimal.Decimal
}

// UpdateOrderStatusParams is a compare-and-swap on order status so a late
// cancel cannot clobber a concurrent fill (and vice versa).
type UpdateOrderStatusParams struct {
	ID           int64
	FromStatus   string
	ToStatus     string
	FilledAmount *decimal.Decimal
	Amount       *decimal.Decimal
	TokenAmount  *decimal.Decimal
	ExecutedAt   *time.Time
	CanceledAt   *time.Time
}

type ListOrdersByUserParams struct {
	UserID uuid.UUID
	Limit  int32
	Offset int32
}

type ListTransactionsByUserParams struct {
	UserID uuid.UUID
	Limit  int32
	Offset int32
}
