package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/quantory/tokenmarket/internal/models"
	"github.com/shopspring/decimal"
)

// DBTX abstracts a pgx pool or transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// pgQueries is the Postgres implementation of Queries.
type pgQueries struct {
	db   DBTX
	inTx bool
}

// New returns a Queries implementation bound to the given connection or
// transaction.
func New(db DBTX) Queries {
	return &pgQueries{db: db}
}

func newTxQueries(tx pgx.Tx) Queries {
	return &pgQueries{db: tx, inTx: true}
}

const lockNotAvailable = "55P03"

func mapPgError(err error, operation string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", operation, models.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == lockNotAvailable {
		return fmt.Errorf("%s: %w", operation, models.ErrWalletLockTimeout)
	}
	return fmt.Errorf("%s: %w", operation, err)
}

func (q *pgQueries) CreateWallet(ctx context.Context, w *models.Wallet) error {
	err := q.db.QueryRow(ctx, `
		INSERT INTO wallets (user_id, currency_balance, token_balance, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING created_at, updated_at`,
		w.UserID, w.CurrencyBalance, w.TokenBalance,
	).Scan(&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return mapPgError(err, "create wallet")
	}
	return nil
}

const walletColumns = `user_id, currency_balance, token_balance, created_at, updated_at`

func scanWallet(row pgx.Row) (models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(&w.UserID, &w.CurrencyBalance, &w.TokenBalance, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

func (q *pgQueries) GetWallet(ctx context.Context, userID uuid.UUID) (models.Wallet, error) {
	w, err := scanWallet(q.db.QueryRow(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID))
	if err != nil {
		return models.Wallet{}, mapPgError(err, "get wallet")
	}
	return w, nil
}

func (q *pgQueries) GetWalletForUpdate(ctx context.Context, userID uuid.UUID) (models.Wallet, error) {
	w, err := scanWallet(q.db.QueryRow(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 FOR UPDATE`, userID))
	if err != nil {
		return models.Wallet{}, mapPgError(err, "lock wallet")
	}
	return w, nil
}

func (q *pgQueries) AdjustWalletBalances(ctx context.Context, arg AdjustWalletBalancesParams) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE wallets
		SET currency_balance = currency_balance + $2,
		    token_balance    = token_balance + $3,
		    updated_at       = NOW()
		WHERE user_id = $1
		  AND currency_balance + $2 >= 0
		  AND token_balance + $3 >= 0`,
		arg.UserID, arg.CurrencyDelta, arg.TokenDelta)
	if err != nil {
		return 0, mapPgError(err, "adjust wallet balances")
	}
	return tag.RowsAffected(), nil
}

func (q *pgQueries) ListWallets(ctx context.Context) ([]models.Wallet, error) {
	rows, err := q.db.Query(ctx, `SELECT `+walletColumns+` FROM wallets ORDER BY created_at`)
	if err != nil {
		return nil, mapPgError(err, "list wallets")
	}
	defer rows.Close()

	var wallets []models.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

const orderColumns = `id, user_id, side, price_type, amount, token_amount, limit_price,
	status, filled_amount, created_at, updated_at, executed_at, canceled_at`

func scanOrder(row pgx.Row) (models.Order, error) {
	var (
		o          models.Order
		limitPrice decimal.NullDecimal
	)
	err := row.Scan(&o.ID, &o.UserID, &o.Side, &o.PriceType, &o.Amount, &o.TokenAmount,
		&limitPrice, &o.Status, &o.FilledAmount, &o.CreatedAt, &o.UpdatedAt,
		&o.ExecutedAt, &o.CanceledAt)
	if err != nil {
		return models.Order{}, err
	}
	if limitPrice.Valid {
		o.LimitPrice = &limitPrice.Decimal
	}
	return o, nil
}

func (q *pgQueries) InsertOrder(ctx context.Context, o *models.Order) error {
	limitPrice := decimal.NullDecimal{}
	if o.LimitPrice != nil {
		limitPrice = decimal.NullDecimal{Decimal: *o.LimitPrice, Valid: true}
	}
	err := q.db.QueryRow(ctx, `
		INSERT INTO orders (id, user_id, side, price_type, amount, token_amount,
			limit_price, status, filled_amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING created_at, updated_at`,
		o.ID, o.UserID, o.Side, o.PriceType, o.Amount, o.TokenAmount,
		limitPrice, o.Status, o.FilledAmount,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return mapPgError(err, "insert order")
	}
	return nil
}

func (q *pgQueries) GetOrder(ctx context.Context, id int64) (models.Order, error) {
	o, err := scanOrder(q.db.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return models.Order{}, mapPgError(err, "get order")
	}
	return o, nil
}

func (q *pgQueries) ListOrdersByUser(ctx context.Context, arg ListOrdersByUserParams) ([]models.Order, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`,
		arg.UserID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, mapPgError(err, "list orders by user")
	}
	defer rows.Close()
	return collectOrders(rows)
}

// ListPendingLimitOrders returns the pending limit-order queue in strict
// FIFO order. Snowflake IDs are time-ordered, so the id tiebreak keeps the
// ordering total when created_at collides.
func (q *pgQueries) ListPendingLimitOrders(ctx context.Context, limit int32) ([]models.Order, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status = 'PENDING' AND price_type = 'LIMIT'
		ORDER BY created_at ASC, id ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, mapPgError(err, "list pending limit orders")
	}
	defer rows.Close()
	return collectOrders(rows)
}

func collectOrders(rows pgx.Rows) ([]models.Order, error) {
	var orders []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (q *pgQueries) UpdateOrderStatusCAS(ctx context.Context, arg UpdateOrderStatusParams) (int64, error) {
	filled := decimal.NullDecimal{}
	if arg.FilledAmount != nil {
		filled = decimal.NullDecimal{Decimal: *arg.FilledAmount, Valid: true}
	}
	amount := decimal.NullDecimal{}
	if arg.Amount != nil {
		amount = decimal.NullDecimal{Decimal: *arg.Amount, Valid: true}
	}
	tokenAmount := decimal.NullDecimal{}
	if arg.TokenAmount != nil {
		tokenAmount = decimal.NullDecimal{Decimal: *arg.TokenAmount, Valid: true}
	}
	tag, err := q.db.Exec(ctx, `
		UPDATE orders
		SET status        = $3,
		    filled_amount = COALESCE($4, filled_amount),
		    amount        = COALESCE($5, amount),
		    token_amount  = COALESCE($6, token_amount),
		    executed_at   = COALESCE($7, executed_at),
		    canceled_at   = COALESCE($8, canceled_at),
		    updated_at    = NOW()
		WHERE id = $1 AND status = $2`,
		arg.ID, arg.FromStatus, arg.ToStatus, filled, amount, tokenAmount,
		arg.ExecutedAt, arg.CanceledAt)
	if err != nil {
		return 0, mapPgError(err, "update order status")
	}
	return tag.RowsAffected(), nil
}

func (q *pgQueries) InsertPriceState(ctx context.Context, ps *models.PriceState) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO price_states (id, total_token_supply, total_investment, initial_investment, version, updated_at)
		VALUES (1, $1, $2, $3, 1, NOW())
		ON CONFLICT (id) DO NOTHING`,
		ps.TotalTokenSupply, ps.TotalInvestment, ps.InitialInvestment)
	if err != nil {
		return mapPgError(err, "insert price state")
	}
	return nil
}

const priceStateColumns = `total_token_supply, total_investment, initial_investment, version, updated_at`

func scanPriceState(row pgx.Row) (models.PriceState, error) {
	var ps models.PriceState
	err := row.Scan(&ps.TotalTokenSupply, &ps.TotalInvestment, &ps.InitialInvestment, &ps.Version, &ps.UpdatedAt)
	return ps, err
}

func (q *pgQueries) GetPriceState(ctx context.Context) (models.PriceState, error) {
	ps, err := scanPriceState(q.db.QueryRow(ctx,
		`SELECT `+priceStateColumns+` FROM price_states WHERE id = 1`))
	if err != nil {
		return models.PriceState{}, mapPgError(err, "get price state")
	}
	return ps, nil
}

func (q *pgQueries) GetPriceStateForUpdate(ctx context.Context) (models.PriceState, error) {
	ps, err := scanPriceState(q.db.QueryRow(ctx,
		`SELECT `+priceStateColumns+` FROM price_states WHERE id = 1 FOR UPDATE`))
	if err != nil {
		return models.PriceState{}, mapPgError(err, "lock price state")
	}
	return ps, nil
}

// ApplyInvestmentDelta is the only price-moving write. It is an atomic
// increment plus version bump so concurrent settlements never
// read-modify-write the accumulator outside a transaction boundary.
func (q *pgQueries) ApplyInvestmentDelta(ctx context.Context, delta decimal.Decimal) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE price_states
		SET total_investment = total_investment + $1,
		    version          = version + 1,
		    updated_at       = NOW()
		WHERE id = 1 AND total_investment + $1 >= 0`, delta)
	if err != nil {
		return 0, mapPgError(err, "apply investment delta")
	}
	return tag.RowsAffected(), nil
}

func (q *pgQueries) GetFeeConfig(ctx context.Context, txType string) (models.FeeConfig, error) {
	var cfg models.FeeConfig
	err := q.db.QueryRow(ctx, `
		SELECT transaction_type, rate, active, updated_at
		FROM fee_configs WHERE transaction_type = $1`, txType,
	).Scan(&cfg.TransactionType, &cfg.Rate, &cfg.Active, &cfg.UpdatedAt)
	if err != nil {
		return models.FeeConfig{}, mapPgError(err, "get fee config")
	}
	return cfg, nil
}

func (q *pgQueries) UpsertFeeConfig(ctx context.Context, cfg models.FeeConfig) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO fee_configs (transaction_type, rate, active, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (transaction_type)
		DO UPDATE SET rate = EXCLUDED.rate, active = EXCLUDED.active, updated_at = NOW()`,
		cfg.TransactionType, cfg.Rate, cfg.Active)
	if err != nil {
		return mapPgError(err, "upsert fee config")
	}
	return nil
}

func (q *pgQueries) ListFeeConfigs(ctx context.Context) ([]models.FeeConfig, error) {
	rows, err := q.db.Query(ctx, `
		SELECT transaction_type, rate, active, updated_at
		FROM fee_configs ORDER BY transaction_type`)
	if err != nil {
		return nil, mapPgError(err, "list fee configs")
	}
	defer rows.Close()

	var configs []models.FeeConfig
	for rows.Next() {
		var cfg models.FeeConfig
		if err := rows.Scan(&cfg.TransactionType, &cfg.Rate, &cfg.Active, &cfg.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan fee config: %w", err)
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

func (q *pgQueries) InsertTransaction(ctx context.Context, t *models.Transaction) error {
	counterparty := uuid.NullUUID{}
	if t.CounterpartyID != nil {
		counterparty = uuid.NullUUID{UUID: *t.CounterpartyID, Valid: true}
	}
	price := decimal.NullDecimal{}
	if t.Price != nil {
		price = decimal.NullDecimal{Decimal: *t.Price, Valid: true}
	}
	err := q.db.QueryRow(ctx, `
		INSERT INTO transactions (id, type, user_id, counterparty_id, order_id,
			asset, amount, fee, net, price, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		RETURNING created_at`,
		t.ID, t.Type, t.UserID, counterparty, t.OrderID, t.Asset,
		t.Amount, t.Fee, t.Net, price,
	).Scan(&t.CreatedAt)
	if err != nil {
		return mapPgError(err, "insert transaction")
	}
	return nil
}

func (q *pgQueries) ListTransactionsByUser(ctx context.Context, arg ListTransactionsByUserParams) ([]models.Transaction, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, type, user_id, counterparty_id, order_id, asset, amount, fee, net, price, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		arg.UserID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, mapPgError(err, "list transactions by user")
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		var (
			t            models.Transaction
			counterparty uuid.NullUUID
			price        decimal.NullDecimal
		)
		if err := rows.Scan(&t.ID, &t.Type, &t.UserID, &counterparty, &t.OrderID,
			&t.Asset, &t.Amount, &t.Fee, &t.Net, &price, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if counterparty.Valid {
			t.CounterpartyID = &counterparty.UUID
		}
		if price.Valid {
			t.Price = &price.Decimal
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// SumNetInvestment recomputes the net investment delta implied by the
// settled trade ledger, used by reconciliation to cross-check the
// accumulator.
func (q *pgQueries) SumNetInvestment(ctx context.Context) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := q.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(CASE type WHEN 'buy' THEN amount WHEN 'sell' THEN -amount ELSE 0 END), 0)
		FROM transactions`).Scan(&sum)
	if err != nil {
		return decimal.Zero, mapPgError(err, "sum net investment")
	}
	return sum, nil
}

func (q *pgQueries) InsertReferralEarning(ctx context.Context, e *models.ReferralEarning) error {
	err := q.db.QueryRow(ctx, `
		INSERT INTO referral_earnings (id, referral_id, staking_id, amount, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING created_at`,
		e.ID, e.ReferralID, e.StakingID, e.Amount,
	).Scan(&e.CreatedAt)
	if err != nil {
		return mapPgError(err, "insert referral earning")
	}
	return nil
}

func (q *pgQueries) GetReferralAnalytics(ctx context.Context, referralID uuid.UUID) (models.ReferralAnalytics, error) {
	analytics := models.ReferralAnalytics{ReferralID: referralID}
	err := q.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0), COUNT(*)
		FROM referral_earnings WHERE referral_id = $1`, referralID,
	).Scan(&analytics.TotalEarned, &analytics.EarningCount)
	if err != nil {
		return models.ReferralAnalytics{}, mapPgError(err, "get referral analytics")
	}
	return analytics, nil
}

func (q *pgQueries) ListReferralEarnings(ctx context.Context, referralID uuid.UUID, limit int32) ([]models.ReferralEarning, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, referral_id, staking_id, amount, created_at
		FROM referral_earnings
		WHERE referral_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, referralID, limit)
	if err != nil {
		return nil, mapPgError(err, "list referral earnings")
	}
	defer rows.Close()

	var earnings []models.ReferralEarning
	for rows.Next() {
		var e models.ReferralEarning
		if err := rows.Scan(&e.ID, &e.ReferralID, &e.StakingID, &e.Amount, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan referral earning: %w", err)
		}
		earnings = append(earnings, e)
	}
	return earnings, rows.Err()
}

func (q *pgQueries) SetLockTimeout(ctx context.Context, d time.Duration) error {
	if !q.inTx {
		return nil
	}
	// SET LOCAL does not accept bind parameters.
	_, err := q.db.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", d.Milliseconds()))
	if err != nil {
		return fmt.Errorf("set lock timeout: %w", err)
	}
	return nil
}
