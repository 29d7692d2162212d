package handler

import (
	"encoding/json"
	"net/http"

	"github.com/quantory/tokenmarket/internal/service"
)

type FeeHandler struct {
	svc *service.FeeService
}

func NewFeeHandler(svc *service.FeeService) *FeeHandler {
	return &FeeHandler{svc: svc}
}

// List returns the effective fee table, configured rows and defaults.
func (h *FeeHandler) List(w http.ResponseWriter, r *http.Request) {
	configs, err := h.svc.ListFeeConfigs(r.Context())
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{"fee_configs": configs})
}

// Set upserts the rate for one transaction type.
func (h *FeeHandler) Set(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TransactionType string `json:"transaction_type"`
		Rate            string `json:"rate"`
		Active          bool   `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "invalid request body")
		return
	}

	cfg, err := h.svc.SetFeeConfig(r.Context(), req.TransactionType, req.Rate, req.Active)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, cfg)
}
