package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quantory/tokenmarket/internal/models"
	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process Store used by tests and local development.
// RunInTx clones the whole state, runs the callback against the clone and
// swaps it in only on success, which gives the same all-or-nothing
// visibility as a database transaction. A single mutex serializes all
// access, matching the serializable behavior services assume.
type MemoryStore struct {
	mu       sync.Mutex
	state    *memState
	failures map[string]error
}

type memState struct {
	wallets      map[uuid.UUID]models.Wallet
	orders       map[int64]models.Order
	priceState   *models.PriceState
	feeConfigs   map[string]models.FeeConfig
	transactions []models.Transaction
	earnings     []models.ReferralEarning
}

func newMemState() *memState {
	return &memState{
		wallets:    make(map[uuid.UUID]models.Wallet),
		orders:     make(map[int64]models.Order),
		feeConfigs: make(map[string]models.FeeConfig),
	}
}

func (st *memState) clone() *memState {
	c := newMemState()
	for k, v := range st.wallets {
		c.wallets[k] = v
	}
	for k, v := range st.orders {
		c.orders[k] = v
	}
	for k, v := range st.feeConfigs {
		c.feeConfigs[k] = v
	}
	if st.priceState != nil {
		ps := *st.priceState
		c.priceState = &ps
	}
	c.transactions = append([]models.Transaction(nil), st.transactions...)
	c.earnings = append([]models.ReferralEarning(nil), st.earnings...)
	return c
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state:    newMemState(),
		failures: make(map[string]error),
	}
}

// FailOnce arranges for the next call of the named query method to return
// err. Tests use it to verify that settlements roll back atomically.
func (s *MemoryStore) FailOnce(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = err
}

func (s *MemoryStore) takeFailure(method string) error {
	if err, ok := s.failures[method]; ok {
		delete(s.failures, method)
		return err
	}
	return nil
}

// Queries returns the non-transactional query set.
func (s *MemoryStore) Queries() Queries {
	return &memQueries{store: s}
}

// RunInTx executes fn against a clone of the state and commits the clone
// only when fn succeeds.
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(q Queries) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := s.state.clone()
	if err := fn(&memQueries{store: s, tx: clone}); err != nil {
		return err
	}
	s.state = clone
	return nil
}

// memQueries operates either on the live state (locking per call) or on a
// transaction clone (lock already held by RunInTx).
type memQueries struct {
	store *MemoryStore
	tx    *memState
}

func (q *memQueries) with(method string, fn func(st *memState) error) error {
	if q.tx != nil {
		if err := q.store.takeFailure(method); err != nil {
			return err
		}
		return fn(q.tx)
	}
	q.store.mu.Lock()
	defer q.store.mu.Unlock()
	if err := q.store.takeFailure(method); err != nil {
		return err
	}
	return fn(q.store.state)
}

func (q *memQueries) CreateWallet(ctx context.Context, w *models.Wallet) error {
	return q.with("CreateWallet", func(st *memState) error {
		if _, ok := st.wallets[w.UserID]; ok {
			return fmt.Errorf("create wallet: duplicate user %s", w.UserID)
		}
		now := time.Now().UTC()
		w.CreatedAt = now
		w.UpdatedAt = now
		st.wallets[w.UserID] = *w
		return nil
	})
}

func (q *memQueries) GetWallet(ctx context.Context, userID uuid.UUID) (models.Wallet, error) {
	var w models.Wallet
	err := q.with("GetWallet", func(st *memState) error {
		stored, ok := st.wallets[userID]
		if !ok {
			return fmt.Errorf("get wallet: %w", models.ErrNotFound)
		}
		w = stored
		return nil
	})
	return w, err
}

func (q *memQueries) GetWalletForUpdate(ctx context.Context, userID uuid.UUID) (models.Wallet, error) {
	var w models.Wallet
	err := q.with("GetWalletForUpdate", func(st *memState) error {
		stored, ok := st.wallets[userID]
		if !ok {
			return fmt.Errorf("lock wallet: %w", models.ErrNotFound)
		}
		w = stored
		return nil
	})
	return w, err
}

func (q *memQueries) AdjustWalletBalances(ctx context.Context, arg AdjustWalletBalancesParams) (int64, error) {
	var rows int64
	err := q.with("AdjustWalletBalances", func(st *memState) error {
		w, ok := st.wallets[arg.UserID]
		if !ok {
			return nil
		}
		currency := w.CurrencyBalance.Add(arg.CurrencyDelta)
		token := w.TokenBalance.Add(arg.TokenDelta)
		if currency.IsNegative() || token.IsNegative() {
			return nil
		}
		w.CurrencyBalance = currency
		w.TokenBalance = token
		w.UpdatedAt = time.Now().UTC()
		st.wallets[arg.UserID] = w
		rows = 1
		return nil
	})
	return rows, err
}

func (q *memQueries) ListWallets(ctx context.Context) ([]models.Wallet, error) {
	var wallets []models.Wallet
	err := q.with("ListWallets", func(st *memState) error {
		for _, w := range st.wallets {
			wallets = append(wallets, w)
		}
		sort.Slice(wallets, func(i, j int) bool {
			return wallets[i].CreatedAt.Before(wallets[j].CreatedAt)
		})
		return nil
	})
	return wallets, err
}

func (q *memQueries) InsertOrder(ctx context.Context, o *models.Order) error {
	return q.with("InsertOrder", func(st *memState) error {
		if _, ok := st.orders[o.ID]; ok {
			return fmt.Errorf("insert order: duplicate id %d", o.ID)
		}
		now := time.Now().UTC()
		o.CreatedAt = now
		o.UpdatedAt = now
		st.orders[o.ID] = *o
		return nil
	})
}

func (q *memQueries) GetOrder(ctx context.Context, id int64) (models.Order, error) {
	var o models.Order
	err := q.with("GetOrder", func(st *memState) error {
		stored, ok := st.orders[id]
		if !ok {
			return fmt.Errorf("get order: %w", models.ErrNotFound)
		}
		o = stored
		return nil
	})
	return o, err
}

func (q *memQueries) ListOrdersByUser(ctx context.Context, arg ListOrdersByUserParams) ([]models.Order, error) {
	var orders []models.Order
	err := q.with("ListOrdersByUser", func(st *memState) error {
		for _, o := range st.orders {
			if o.UserID == arg.UserID {
				orders = append(orders, o)
			}
		}
		sort.Slice(orders, func(i, j int) bool {
			return orders[i].ID > orders[j].ID
		})
		orders = paginate(orders, arg.Limit, arg.Offset)
		return nil
	})
	return orders, err
}

func (q *memQueries) ListPendingLimitOrders(ctx context.Context, limit int32) ([]models.Order, error) {
	var orders []models.Order
	err := q.with("ListPendingLimitOrders", func(st *memState) error {
		for _, o := range st.orders {
			if o.Status == "PENDING" && o.PriceType == "LIMIT" {
				orders = append(orders, o)
			}
		}
		sort.Slice(orders, func(i, j int) bool {
			if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
				return orders[i].ID < orders[j].ID
			}
			return orders[i].CreatedAt.Before(orders[j].CreatedAt)
		})
		if limit > 0 && int(limit) < len(orders) {
			orders = orders[:limit]
		}
		return nil
	})
	return orders, err
}

func (q *memQueries) UpdateOrderStatusCAS(ctx context.Context, arg UpdateOrderStatusParams) (int64, error) {
	var rows int64
	err := q.with("UpdateOrderStatusCAS", func(st *memState) error {
		o, ok := st.orders[arg.ID]
		if !ok || o.Status != arg.FromStatus {
			return nil
		}
		o.Status = arg.ToStatus
		if arg.FilledAmount != nil {
			o.FilledAmount = *arg.FilledAmount
		}
		if arg.Amount != nil {
			o.Amount = *arg.Amount
		}
		if arg.TokenAmount != nil {
			o.TokenAmount = *arg.TokenAmount
		}
		if arg.ExecutedAt != nil {
			t := *arg.ExecutedAt
			o.ExecutedAt = &t
		}
		if arg.CanceledAt != nil {
			t := *arg.CanceledAt
			o.CanceledAt = &t
		}
		o.UpdatedAt = time.Now().UTC()
		st.orders[arg.ID] = o
		rows = 1
		return nil
	})
	return rows, err
}

func (q *memQueries) InsertPriceState(ctx context.Context, ps *models.PriceState) error {
	return q.with("InsertPriceState", func(st *memState) error {
		if st.priceState != nil {
			return nil
		}
		now := time.Now().UTC()
		stored := *ps
		stored.Version = 1
		stored.UpdatedAt = now
		st.priceState = &stored
		return nil
	})
}

func (q *memQueries) GetPriceState(ctx context.Context) (models.PriceState, error) {
	var ps models.PriceState
	err := q.with("GetPriceState", func(st *memState) error {
		if st.priceState == nil {
			return fmt.Errorf("get price state: %w", models.ErrNotFound)
		}
		ps = *st.priceState
		return nil
	})
	return ps, err
}

func (q *memQueries) GetPriceStateForUpdate(ctx context.Context) (models.PriceState, error) {
	var ps models.PriceState
	err := q.with("GetPriceStateForUpdate", func(st *memState) error {
		if st.priceState == nil {
			return fmt.Errorf("lock price state: %w", models.ErrNotFound)
		}
		ps = *st.priceState
		return nil
	})
	return ps, err
}

func (q *memQueries) ApplyInvestmentDelta(ctx context.Context, delta decimal.Decimal) (int64, error) {
	var rows int64
	err := q.with("ApplyInvestmentDelta", func(st *memState) error {
		if st.priceState == nil {
			return nil
		}
		next := st.priceState.TotalInvestment.Add(delta)
		if next.IsNegative() {
			return nil
		}
		st.priceState.TotalInvestment = next
		st.priceState.Version++
		st.priceState.UpdatedAt = time.Now().UTC()
		rows = 1
		return nil
	})
	return rows, err
}

func (q *memQueries) GetFeeConfig(ctx context.Context, txType string) (models.FeeConfig, error) {
	var cfg models.FeeConfig
	err := q.with("GetFeeConfig", func(st *memState) error {
		stored, ok := st.feeConfigs[txType]
		if !ok {
			return fmt.Errorf("get fee config: %w", models.ErrNotFound)
		}
		cfg = stored
		return nil
	})
	return cfg, err
}

func (q *memQueries) UpsertFeeConfig(ctx context.Context, cfg models.FeeConfig) error {
	return q.with("UpsertFeeConfig", func(st *memState) error {
		cfg.UpdatedAt = time.Now().UTC()
		st.feeConfigs[cfg.TransactionType] = cfg
		return nil
	})
}

func (q *memQueries) ListFeeConfigs(ctx context.Context) ([]models.FeeConfig, error) {
	var configs []models.FeeConfig
	err := q.with("ListFeeConfigs", func(st *memState) error {
		for _, cfg := range st.feeConfigs {
			configs = append(configs, cfg)
		}
		sort.Slice(configs, func(i, j int) bool {
			return configs[i].TransactionType < configs[j].TransactionType
		})
		return nil
	})
	return configs, err
}

func (q *memQueries) InsertTransaction(ctx context.Context, t *models.Transaction) error {
	return q.with("InsertTransaction", func(st *memState) error {
		t.CreatedAt = time.Now().UTC()
		st.transactions = append(st.transactions, *t)
		return nil
	})
}

func (q *memQueries) ListTransactionsByUser(ctx context.Context, arg ListTransactionsByUserParams) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := q.with("ListTransactionsByUser", func(st *memState) error {
		for i := len(st.transactions) - 1; i >= 0; i-- {
			if st.transactions[i].UserID == arg.UserID {
				txs = append(txs, st.transactions[i])
			}
		}
		txs = paginate(txs, arg.Limit, arg.Offset)
		return nil
	})
	return txs, err
}

func (q *memQueries) SumNetInvestment(ctx context.Context) (decimal.Decimal, error) {
	sum := decimal.Zero
	err := q.with("SumNetInvestment", func(st *memState) error {
		for _, t := range st.transactions {
			switch t.Type {
			case "buy":
				sum = sum.Add(t.Amount)
			case "sell":
				sum = sum.Sub(t.Amount)
			}
		}
		return nil
	})
	return sum, err
}

func (q *memQueries) InsertReferralEarning(ctx context.Context, e *models.ReferralEarning) error {
	return q.with("InsertReferralEarning", func(st *memState) error {
		for _, existing := range st.earnings {
			if existing.ReferralID == e.ReferralID && existing.StakingID == e.StakingID {
				return fmt.Errorf("insert referral earning: duplicate (%s, %d)", e.ReferralID, e.StakingID)
			}
		}
		e.CreatedAt = time.Now().UTC()
		st.earnings = append(st.earnings, *e)
		return nil
	})
}

func (q *memQueries) GetReferralAnalytics(ctx context.Context, referralID uuid.UUID) (models.ReferralAnalytics, error) {
	analytics := models.ReferralAnalytics{ReferralID: referralID, TotalEarned: decimal.Zero}
	err := q.with("GetReferralAnalytics", func(st *memState) error {
		for _, e := range st.earnings {
			if e.ReferralID == referralID {
				analytics.TotalEarned = analytics.TotalEarned.Add(e.Amount)
				analytics.EarningCount++
			}
		}
		return nil
	})
	return analytics, err
}

func (q *memQueries) ListReferralEarnings(ctx context.Context, referralID uuid.UUID, limit int32) ([]models.ReferralEarning, error) {
	var earnings []models.ReferralEarning
	err := q.with("ListReferralEarnings", func(st *memState) error {
		for i := len(st.earnings) - 1; i >= 0; i-- {
			if st.earnings[i].ReferralID == referralID {
				earnings = append(earnings, st.earnings[i])
			}
		}
		if limit > 0 && int(limit) < len(earnings) {
			earnings = earnings[:limit]
		}
		return nil
	})
	return earnings, err
}

func (q *memQueries) SetLockTimeout(ctx context.Context, d time.Duration) error {
	return nil
}

func paginate[T any](items []T, limit, offset int32) []T {
	if offset > 0 {
		if int(offset) >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && int(limit) < len(items) {
		items = items[:limit]
	}
	return items
}
