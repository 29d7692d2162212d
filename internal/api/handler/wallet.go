package handler

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/quantory/tokenmarket/internal/models"
	"github.com/quantory/tokenmarket/internal/service"
	"github.com/shopspring/decimal"
)

type WalletHandler struct {
	wallets *service.WalletService
	pricing *service.PricingService
}

func NewWalletHandler(wallets *service.WalletService, pricing *service.PricingService) *WalletHandler {
	return &WalletHandler{wallets: wallets, pricing: pricing}
}

type walletResponse struct {
	UserID          uuid.UUID       `json:"user_id"`
	CurrencyBalance decimal.Decimal `json:"currency_balance"`
	TokenBalance    decimal.Decimal `json:"token_balance"`
	CurrentPrice    decimal.Decimal `json:"current_price"`
}

// Get returns the caller's balances together with the current model price.
func (h *WalletHandler) Get(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}

	wallet, err := h.wallets.EnsureWallet(r.Context(), actorID)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	quote, err := h.pricing.CurrentPrice(r.Context())
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, walletResponse{
		UserID:          wallet.UserID,
		CurrencyBalance: wallet.CurrencyBalance,
		TokenBalance:    wallet.TokenBalance,
		CurrentPrice:    quote.Price,
	})
}

// Transactions returns the caller's settlement history.
func (h *WalletHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}

	txs, err := h.wallets.ListTransactions(r.Context(), actorID, queryInt32(r, "limit", 50), queryInt32(r, "offset", 0))
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	if txs == nil {
		txs = []models.Transaction{}
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{"transactions": txs})
}

// Transfer moves currency from the caller to another user.
func (h *WalletHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}

	var req struct {
		ToUserID string `json:"to_user_id"`
		Amount   string `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "invalid request body")
		return
	}
	toID, err := uuid.Parse(req.ToUserID)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-user-id", "invalid to_user_id")
		return
	}

	tx, err := h.wallets.Transfer(r.Context(), actorID, toID, req.Amount)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, tx)
}

// Withdraw debits currency from the caller's wallet.
func (h *WalletHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}

	var req struct {
		Amount string `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "invalid request body")
		return
	}

	tx, err := h.wallets.Withdraw(r.Context(), actorID, req.Amount)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, tx)
}

// Deposit credits a wallet. Admin only; this is the funding entry point.
func (h *WalletHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		Asset  string `json:"asset"`
		Amount string `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "invalid request body")
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-user-id", "invalid user_id")
		return
	}

	tx, err := h.wallets.Deposit(r.Context(), userID, req.Asset, req.Amount)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, tx)
}
