// internal/handler/admin_handler.go
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"wallet-topup-service/internal/domain"
	"wallet-topup-service/pkg/xerrors"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type PaymentLister interface {
	ListPayments(ctx context.Context, processed *bool, page domain.PageRequest) (domain.PagedResult[domain.BankSmsPayment], error)
}

type LockAdmin interface {
	ListLocks(ctx context.Context, status *domain.TopupLockStatus, page domain.PageRequest) (domain.PagedResult[domain.TopupLock], error)
	VerifyAndComplete(ctx context.Context, reference string, paid decimal.Decimal) (*domain.VerifyTopupResponse, error)
}

type AdminHandler struct {
	payments PaymentLister
	locks    LockAdmin
	logger   *zap.Logger
}

func NewAdminHandler(payments PaymentLister, locks LockAdmin, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		payments: payments,
		locks:    locks,
		logger:   logger,
	}
}

// HandleListPayments lists stored bank SMS, optionally filtered by ?processed=true|false.
func (h *AdminHandler) HandleListPayments(w http.ResponseWriter, r *http.Request) {
	var processed *bool
	if raw := r.URL.Query().Get("processed"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			sendError(w, http.StatusBadRequest, "invalid processed filter",
				fmt.Errorf("%w: processed=%q", xerrors.ErrInvalidRequest, raw))
			return
		}
		processed = &v
	}

	resp, err := h.payments.ListPayments(r.Context(), processed, pageFromQuery(r))
	if err != nil {
		h.logger.Error("failed to list bank sms payments", zap.Error(err))
		sendError(w, statusFor(err), "failed to list bank sms payments", err)
		return
	}
	sendSuccess(w, http.StatusOK, "bank sms payments retrieved", resp)
}

// HandleListLocks lists topup locks, optionally filtered by ?status=.
func (h *AdminHandler) HandleListLocks(w http.ResponseWriter, r *http.Request) {
	var status *domain.TopupLockStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		st, err := domain.ParseTopupLockStatus(raw)
		if err != nil {
			sendError(w, http.StatusBadRequest, "invalid status filter", err)
			return
		}
		status = &st
	}

	resp, err := h.locks.ListLocks(r.Context(), status, pageFromQuery(r))
	if err != nil {
		h.logger.Error("failed to list topup locks", zap.Error(err))
		sendError(w, statusFor(err), "failed to list topup locks", err)
		return
	}
	sendSuccess(w, http.StatusOK, "topup locks retrieved", resp)
}

// HandleVerifyTopup completes a lock by hand after the operator saw the payment.
func (h *AdminHandler) HandleVerifyTopup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reference := chi.URLParam(r, "reference")

	var req domain.VerifyTopupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := req.Validate(); err != nil {
		sendError(w, http.StatusBadRequest, "invalid paid amount", err)
		return
	}

	adminID, _ := GetUserID(ctx)
	h.logger.Info("manual topup verification",
		zap.String("admin_id", adminID),
		zap.String("reference", reference),
		zap.String("paid_amount", req.PaidAmount.String()))

	resp, err := h.locks.VerifyAndComplete(ctx, reference, req.PaidAmount)
	if err != nil {
		h.logger.Warn("manual topup verification failed",
			zap.String("reference", reference),
			zap.Error(err))
		sendError(w, statusFor(err), "failed to verify topup", err)
		return
	}
	sendSuccess(w, http.StatusOK, "topup verified and wallet credited", resp)
}
