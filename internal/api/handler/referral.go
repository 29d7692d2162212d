package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/quantory/tokenmarket/internal/models"
	"github.com/quantory/tokenmarket/internal/service"
)

type ReferralHandler struct {
	svc *service.ReferralService
}

func NewReferralHandler(svc *service.ReferralService) *ReferralHandler {
	return &ReferralHandler{svc: svc}
}

// RecordPayout ingests a staking payout event and credits the referrer's
// commission. Admin only; the staking system is the caller.
func (h *ReferralHandler) RecordPayout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReferrerID     string `json:"referrer_id"`
		StakingID      string `json:"staking_id"`
		ProfitAmount   string `json:"profit_amount"`
		CommissionRate string `json:"commission_rate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "invalid request body")
		return
	}
	referrerID, err := uuid.Parse(req.ReferrerID)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-user-id", "invalid referrer_id")
		return
	}
	stakingID, err := strconv.ParseInt(req.StakingID, 10, 64)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-staking-id", "invalid staking_id")
		return
	}

	earning, err := h.svc.RecordStakingPayout(r.Context(), referrerID, stakingID, req.ProfitAmount, req.CommissionRate)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, earning)
}

// Analytics returns the caller's lifetime referral earnings.
func (h *ReferralHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}

	analytics, err := h.svc.Analytics(r.Context(), actorID)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, analytics)
}

// Earnings returns the caller's most recent commission entries.
func (h *ReferralHandler) Earnings(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}

	earnings, err := h.svc.ListEarnings(r.Context(), actorID, queryInt32(r, "limit", 50))
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	if earnings == nil {
		earnings = []models.ReferralEarning{}
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{"earnings": earnings})
}
