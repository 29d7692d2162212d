package handler

import (
	"net/http"

	"github.com/quantory/tokenmarket/internal/service"
)

// MarketHandler exposes the public price quote and the admin tick trigger.
type MarketHandler struct {
	pricing *service.PricingService
	engine  *service.MatchingEngine
}

func NewMarketHandler(pricing *service.PricingService, engine *service.MatchingEngine) *MarketHandler {
	return &MarketHandler{pricing: pricing, engine: engine}
}

// Price returns the current model price.
func (h *MarketHandler) Price(w http.ResponseWriter, r *http.Request) {
	quote, err := h.pricing.CurrentPrice(r.Context())
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, quote)
}

// RunMatching triggers one matching tick and returns its report. The
// scheduler worker calls the same engine; a concurrent manual trigger gets
// a conflict response.
func (h *MarketHandler) RunMatching(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.RunOnce(r.Context())
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, report)
}
