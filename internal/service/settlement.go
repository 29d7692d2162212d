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

// Settler executes one order against a price inside a caller-provided
// transaction. Market orders and the matching engine share it, so both
// paths settle with identical semantics: debit the source asset, credit
// the destination asset net of fee, route the fee, move the investment
// accumulator, record the ledger row and flip the order status. Any error
// aborts the whole transaction.
type Settler struct {
	fees          *FeeService
	feeReceiverID uuid.UUID
}

func NewSettler(fees *FeeService, feeReceiverID uuid.UUID) *Settler {
	return &Settler{fees: fees, feeReceiverID: feeReceiverID}
}

// Settle fills the order completely at price. The caller owns the
// transaction and the lock timeout. Returns the updated order.
func (s *Settler) Settle(ctx context.Context, q repository.Queries, order models.Order, price decimal.Decimal) (models.Order, error) {
	if !price.IsPositive() {
		return models.Order{}, fmt.Errorf("settle order %d: non-positive price %s", order.ID, price)
	}
	if err := lockWallets(ctx, q, order.UserID, s.feeReceiverID); err != nil {
		return models.Order{}, err
	}

	var (
		txType          string
		destAsset       string
		currencyGross   decimal.Decimal
		destGross       decimal.Decimal
		investmentDelta decimal.Decimal
	)
	switch order.Side {
	case domain.SideBuy:
		txType = domain.TxTypeBuy
		destAsset = domain.AssetToken
		currencyGross = order.Amount
		destGross = domain.TokensFor(currencyGross, price)
		investmentDelta = currencyGross
		if err := adjustBalance(ctx, q, order.UserID, domain.AssetCurrency, currencyGross.Neg()); err != nil {
			return models.Order{}, err
		}
	case domain.SideSell:
		txType = domain.TxTypeSell
		destAsset = domain.AssetCurrency
		currencyGross = domain.CurrencyFor(order.TokenAmount, price)
		destGross = currencyGross
		investmentDelta = currencyGross.Neg()
		if err := adjustBalance(ctx, q, order.UserID, domain.AssetToken, order.TokenAmount.Neg()); err != nil {
			return models.Order{}, err
		}
	default:
		return models.Order{}, fmt.Errorf("settle order %d: unknown side %q", order.ID, order.Side)
	}

	fee, net, err := s.fees.ComputeFee(ctx, q, destGross, txType)
	if err != nil {
		return models.Order{}, err
	}
	if err := adjustBalance(ctx, q, order.UserID, destAsset, net); err != nil {
		return models.Order{}, err
	}
	if fee.IsPositive() {
		if err := adjustBalance(ctx, q, s.feeReceiverID, destAsset, fee); err != nil {
			return models.Order{}, err
		}
	}

	rows, err := q.ApplyInvestmentDelta(ctx, investmentDelta)
	if err != nil {
		return models.Order{}, err
	}
	if err := requireExactlyOne(rows, fmt.Sprintf("apply investment delta for order %d", order.ID)); err != nil {
		return models.Order{}, err
	}

	priceCopy := price
	ledgerRow := models.Transaction{
		ID:      uuid.New(),
		Type:    txType,
		UserID:  order.UserID,
		OrderID: &order.ID,
		Asset:   destAsset,
		Amount:  currencyGross,
		Fee:     fee,
		Net:     net,
		Price:   &priceCopy,
	}
	if err := q.InsertTransaction(ctx, &ledgerRow); err != nil {
		return models.Order{}, err
	}

	now := time.Now().UTC()
	arg := repository.UpdateOrderStatusParams{
		ID:         order.ID,
		FromStatus: order.Status,
		ToStatus:   domain.OrderStatusFilled,
		ExecutedAt: &now,
	}
	if order.Side == domain.SideBuy {
		arg.FilledAmount = &order.Amount
		arg.TokenAmount = &destGross
		order.TokenAmount = destGross
		order.FilledAmount = order.Amount
	} else {
		arg.FilledAmount = &order.TokenAmount
		arg.Amount = &currencyGross
		order.Amount = currencyGross
		order.FilledAmount = order.TokenAmount
	}
	rows, err = q.UpdateOrderStatusCAS(ctx, arg)
	if err != nil {
		return models.Order{}, err
	}
	// Zero rows means the status moved underneath us, e.g. a cancel that
	// won the race. Abort so the trade never settles against a dead order.
	if err := requireExactlyOne(rows, fmt.Sprintf("fill order %d", order.ID)); err != nil {
		return models.Order{}, err
	}

	order.Status = domain.OrderStatusFilled
	order.ExecutedAt = &now
	return order, nil
}
