// internal/handler/response.go
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"wallet-topup-service/internal/domain"
	"wallet-topup-service/pkg/xerrors"
)

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func sendSuccess(w http.ResponseWriter, statusCode int, message string, data any) {
	writeJSON(w, statusCode, envelope{Success: true, Message: message, Data: data})
}

func sendError(w http.ResponseWriter, statusCode int, message string, err error) {
	resp := envelope{Success: false, Message: message}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, statusCode, resp)
}

// SendError is used by router middleware for auth and rate limit failures.
func SendError(w http.ResponseWriter, statusCode int, message string, err error) {
	sendError(w, statusCode, message, err)
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

// statusFor maps sentinel errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, xerrors.ErrInvalidRequest),
		errors.Is(err, xerrors.ErrInvalidAmount),
		errors.Is(err, xerrors.ErrCurrencyMismatch):
		return http.StatusBadRequest
	case errors.Is(err, xerrors.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, xerrors.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, xerrors.ErrLockNotFound),
		errors.Is(err, xerrors.ErrWalletNotFound),
		errors.Is(err, xerrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, xerrors.ErrLockExpired):
		return http.StatusGone
	case errors.Is(err, xerrors.ErrInvalidLockState),
		errors.Is(err, xerrors.ErrLockCompleted),
		errors.Is(err, xerrors.ErrDuplicate),
		errors.Is(err, xerrors.ErrVersionConflict),
		errors.Is(err, xerrors.ErrLockBusy):
		return http.StatusConflict
	case errors.Is(err, xerrors.ErrAmountMismatch),
		errors.Is(err, xerrors.ErrInsufficientFunds),
		errors.Is(err, xerrors.ErrWalletInactive):
		return http.StatusUnprocessableEntity
	case errors.Is(err, xerrors.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, xerrors.ErrAllocationExhausted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func pageFromQuery(r *http.Request) domain.PageRequest {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	return domain.NewPageRequest(page, size)
}
