package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/quantory/tokenmarket/internal/api/middleware"
	"github.com/quantory/tokenmarket/internal/api/problem"
	"github.com/quantory/tokenmarket/internal/models"
)

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondError writes an RFC 7807 error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

// RespondServiceError maps the service error taxonomy onto HTTP statuses.
func RespondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		RespondError(w, r, http.StatusBadRequest, "request/validation", err.Error())
	case errors.Is(err, models.ErrInsufficientFunds):
		RespondError(w, r, http.StatusUnprocessableEntity, "wallet/insufficient-funds", "insufficient funds")
	case errors.Is(err, models.ErrNotFound):
		RespondError(w, r, http.StatusNotFound, "resource/not-found", "resource not found")
	case errors.Is(err, models.ErrNotOwned):
		RespondError(w, r, http.StatusForbidden, "order/not-owned", "order belongs to another user")
	case errors.Is(err, models.ErrAlreadyCanceled):
		RespondError(w, r, http.StatusConflict, "order/already-canceled", "order is already canceled")
	case errors.Is(err, models.ErrNotCancelable):
		RespondError(w, r, http.StatusConflict, "order/not-cancelable", "order is in a terminal state")
	case errors.Is(err, models.ErrTickInProgress):
		RespondError(w, r, http.StatusConflict, "matching/tick-in-progress", "a matching tick is already running")
	case errors.Is(err, models.ErrWalletLockTimeout):
		RespondError(w, r, http.StatusServiceUnavailable, "wallet/lock-timeout", "wallet is busy, retry shortly")
	default:
		RespondError(w, r, http.StatusInternalServerError, "internal-server-error", "unexpected server error")
	}
}

func requestActor(r *http.Request) (uuid.UUID, bool, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		return uuid.Nil, false, errors.New("missing user in auth context")
	}

	actorID, err := uuid.Parse(userID)
	if err != nil {
		return uuid.Nil, false, errors.New("invalid user_id in auth context")
	}

	return actorID, middleware.UserRoleFromContext(r.Context()) == "admin", nil
}

func queryInt32(r *http.Request, name string, fallback int32) int32 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || parsed < 0 {
		return fallback
	}
	return int32(parsed)
}
