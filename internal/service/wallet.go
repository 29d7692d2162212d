package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/quantory/tokenmarket/internal/domain"
	"github.com/quantory/tokenmarket/internal/models"
	"github.com/quantory/tokenmarket/internal/repository"
	"github.com/shopspring/decimal"
)

// WalletService manages user balances. Every mutation runs inside one
// transaction with wallet rows locked in a consistent order, so a scheduled
// tick and a user-initiated operation on the same wallet serialize instead
// of losing updates.
type WalletService struct {
	store         QueryStore
	fees          *FeeService
	feeReceiverID uuid.UUID
	lockTimeout   time.Duration
}

func NewWalletService(store QueryStore, fees *FeeService, feeReceiverID uuid.UUID, lockTimeout time.Duration) *WalletService {
	return &WalletService{
		store:         store,
		fees:          fees,
		feeReceiverID: feeReceiverID,
		lockTimeout:   lockTimeout,
	}
}

// EnsureWallet creates the wallet for a user on first contact. Safe to call
// repeatedly.
func (s *WalletService) EnsureWallet(ctx context.Context, userID uuid.UUID) (models.Wallet, error) {
	w, err := s.store.Queries().GetWallet(ctx, userID)
	if err == nil {
		return w, nil
	}
	w = models.Wallet{
		UserID:          userID,
		CurrencyBalance: decimal.Zero,
		TokenBalance:    decimal.Zero,
	}
	if err := s.store.Queries().CreateWallet(ctx, &w); err != nil {
		// Lost a create race; the existing row is authoritative.
		if existing, getErr := s.store.Queries().GetWallet(ctx, userID); getErr == nil {
			return existing, nil
		}
		return models.Wallet{}, fmt.Errorf("ensure wallet: %w", err)
	}
	return w, nil
}

// GetBalances returns the wallet for a user.
func (s *WalletService) GetBalances(ctx context.Context, userID uuid.UUID) (models.Wallet, error) {
	return s.store.Queries().GetWallet(ctx, userID)
}

// ListTransactions returns the user's settlement history, newest first.
func (s *WalletService) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int32) ([]models.Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.Queries().ListTransactionsByUser(ctx, repository.ListTransactionsByUserParams{
		UserID: userID,
		Limit:  limit,
		Offset: offset,
	})
}

// lockWallets acquires row locks in ascending UUID order to prevent
// deadlocks between concurrent multi-wallet settlements.
func lockWallets(ctx context.Context, q repository.Queries, ids ...uuid.UUID) error {
	sorted := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		sorted = append(sorted, id)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].String() < sorted[j].String()
	})
	for _, id := range sorted {
		if _, err := q.GetWalletForUpdate(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func adjustBalance(ctx context.Context, q repository.Queries, userID uuid.UUID, asset string, delta decimal.Decimal) error {
	arg := repository.AdjustWalletBalancesParams{UserID: userID}
	switch asset {
	case domain.AssetCurrency:
		arg.CurrencyDelta = delta
	case domain.AssetToken:
		arg.TokenDelta = delta
	default:
		return fmt.Errorf("%w: unknown asset %q", models.ErrValidation, asset)
	}
	rows, err := q.AdjustWalletBalances(ctx, arg)
	if err != nil {
		return err
	}
	if rows != 1 {
		if delta.IsNegative() {
			return models.ErrInsufficientFunds
		}
		return fmt.Errorf("adjust balance for %s: %w", userID, models.ErrNotFound)
	}
	return nil
}

// Deposit credits an asset to a wallet and records the ledger row. Used by
// the funding endpoint; deposits carry the deposit fee rate, zero by
// default.
func (s *WalletService) Deposit(ctx context.Context, userID uuid.UUID, asset, amount string) (models.Transaction, error) {
	parsed, err := domain.ParsePositiveAmount(amount)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	if asset != domain.AssetCurrency && asset != domain.AssetToken {
		return models.Transaction{}, fmt.Errorf("%w: unknown asset %q", models.ErrValidation, asset)
	}
	if _, err := s.EnsureWallet(ctx, userID); err != nil {
		return models.Transaction{}, err
	}

	var txRow models.Transaction
	err = s.store.RunInTx(ctx, func(q repository.Queries) error {
		if err := q.SetLockTimeout(ctx, s.lockTimeout); err != nil {
			return err
		}
		if err := lockWallets(ctx, q, userID); err != nil {
			return err
		}
		fee, net, err := s.fees.ComputeFee(ctx, q, parsed, domain.TxTypeDeposit)
		if err != nil {
			return err
		}
		if err := adjustBalance(ctx, q, userID, asset, net); err != nil {
			return err
		}
		if fee.IsPositive() {
			if err := adjustBalance(ctx, q, s.feeReceiverID, asset, fee); err != nil {
				return err
			}
		}
		txRow = models.Transaction{
			ID:     uuid.New(),
			Type:   domain.TxTypeDeposit,
			UserID: userID,
			Asset:  asset,
			Amount: parsed,
			Fee:    fee,
			Net:    net,
		}
		return q.InsertTransaction(ctx, &txRow)
	})
	if err != nil {
		return models.Transaction{}, err
	}
	return txRow, nil
}

// Transfer moves currency between two users. The sender is debited the
// gross amount; the recipient receives the net after the transfer fee; the
// fee goes to the fee receiver in the same transaction.
func (s *WalletService) Transfer(ctx context.Context, fromID, toID uuid.UUID, amount string) (models.Transaction, error) {
	parsed, err := domain.ParsePositiveAmount(amount)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	if fromID == toID {
		return models.Transaction{}, fmt.Errorf("%w: cannot transfer to the same wallet", models.ErrValidation)
	}

	var txRow models.Transaction
	err = s.store.RunInTx(ctx, func(q repository.Queries) error {
		if err := q.SetLockTimeout(ctx, s.lockTimeout); err != nil {
			return err
		}
		if err := lockWallets(ctx, q, fromID, toID, s.feeReceiverID); err != nil {
			return err
		}
		fee, net, err := s.fees.ComputeFee(ctx, q, parsed, domain.TxTypeTransfer)
		if err != nil {
			return err
		}
		if err := adjustBalance(ctx, q, fromID, domain.AssetCurrency, parsed.Neg()); err != nil {
			return err
		}
		if err := adjustBalance(ctx, q, toID, domain.AssetCurrency, net); err != nil {
			return err
		}
		if fee.IsPositive() {
			if err := adjustBalance(ctx, q, s.feeReceiverID, domain.AssetCurrency, fee); err != nil {
				return err
			}
		}
		txRow = models.Transaction{
			ID:             uuid.New(),
			Type:           domain.TxTypeTransfer,
			UserID:         fromID,
			CounterpartyID: &toID,
			Asset:          domain.AssetCurrency,
			Amount:         parsed,
			Fee:            fee,
			Net:            net,
		}
		return q.InsertTransaction(ctx, &txRow)
	})
	if err != nil {
		return models.Transaction{}, err
	}
	return txRow, nil
}

// Withdraw debits currency from a wallet. The net amount leaves the system;
// only the fee stays, credited to the fee receiver.
func (s *WalletService) Withdraw(ctx context.Context, userID uuid.UUID, amount string) (models.Transaction, error) {
	parsed, err := domain.ParsePositiveAmount(amount)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}

	var txRow models.Transaction
	err = s.store.RunInTx(ctx, func(q repository.Queries) error {
		if err := q.SetLockTimeout(ctx, s.lockTimeout); err != nil {
			return err
		}
		if err := lockWallets(ctx, q, userID, s.feeReceiverID); err != nil {
			return err
		}
		fee, net, err := s.fees.ComputeFee(ctx, q, parsed, domain.TxTypeWithdraw)
		if err != nil {
			return err
		}
		if err := adjustBalance(ctx, q, userID, domain.AssetCurrency, parsed.Neg()); err != nil {
			return err
		}
		if fee.IsPositive() {
			if err := adjustBalance(ctx, q, s.feeReceiverID, domain.AssetCurrency, fee); err != nil {
				return err
			}
		}
		txRow = models.Transaction{
			ID:     uuid.New(),
			Type:   domain.TxTypeWithdraw,
			UserID: userID,
			Asset:  domain.AssetCurrency,
			Amount: parsed,
			Fee:    fee,
			Net:    net,
		}
		return q.InsertTransaction(ctx, &txRow)
	})
	if err != nil {
		return models.Transaction{}, err
	}
	return txRow, nil
}
