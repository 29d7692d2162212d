package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/quantory/tokenmarket/internal/service"
)

type OrderHandler struct {
	svc *service.OrderService
}

func NewOrderHandler(svc *service.OrderService) *OrderHandler {
	return &OrderHandler{svc: svc}
}

// Create accepts a new market or limit order. Market orders settle before
// the response is written.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}

	var req struct {
		Side       string `json:"side"`
		PriceType  string `json:"price_type"`
		Amount     string `json:"amount"`
		LimitPrice string `json:"limit_price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "invalid request body")
		return
	}

	order, err := h.svc.Create(r.Context(), service.CreateOrderInput{
		UserID:     actorID,
		Side:       req.Side,
		PriceType:  req.PriceType,
		Amount:     req.Amount,
		LimitPrice: req.LimitPrice,
	})
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, order)
}

// Cancel transitions a pending order to CANCELED.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actorID, admin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}
	orderID, err := orderIDParam(r)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-order-id", "invalid order id")
		return
	}

	order, err := h.svc.Cancel(r.Context(), orderID, actorID, admin)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, order)
}

// Get returns one order.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	actorID, admin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}
	orderID, err := orderIDParam(r)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-order-id", "invalid order id")
		return
	}

	order, err := h.svc.Get(r.Context(), orderID, actorID, admin)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, order)
}

// List returns the caller's orders, newest first.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}

	orders, err := h.svc.List(r.Context(), actorID, queryInt32(r, "limit", 50), queryInt32(r, "offset", 0))
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{"orders": orders})
}

func orderIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
