// internal/handler/topup_handler.go
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"wallet-topup-service/internal/domain"
	"wallet-topup-service/pkg/xerrors"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type TopupService interface {
	RequestTopup(ctx context.Context, userID string, req *domain.TopupRequest) (*domain.TopupResponse, error)
	MarkPaymentInitiated(ctx context.Context, userID, reference string) (*domain.PaymentInitiatedResponse, error)
	GetBalance(ctx context.Context, userID string) (*domain.BalanceResponse, error)
}

type LedgerReader interface {
	ListTransactions(ctx context.Context, userID string, page domain.PageRequest) (domain.PagedResult[domain.WalletTransaction], error)
}

type TopupHandler struct {
	topups TopupService
	ledger LedgerReader
	logger *zap.Logger
}

func NewTopupHandler(topups TopupService, ledger LedgerReader, logger *zap.Logger) *TopupHandler {
	return &TopupHandler{
		topups: topups,
		ledger: ledger,
		logger: logger,
	}
}

// HandleRequestTopup reserves an amount and returns the QR payload to pay it.
func (h *TopupHandler) HandleRequestTopup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(w, http.StatusUnauthorized, "unauthorized", xerrors.ErrUnauthorized)
		return
	}

	var req domain.TopupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	h.logger.Info("topup requested",
		zap.String("user_id", userID),
		zap.String("amount", req.Amount.String()),
		zap.String("currency", req.Currency))

	resp, err := h.topups.RequestTopup(ctx, userID, &req)
	if err != nil {
		h.logger.Warn("topup request failed", zap.String("user_id", userID), zap.Error(err))
		sendError(w, statusFor(err), "failed to create topup request", err)
		return
	}
	sendSuccess(w, http.StatusCreated, resp.Message, resp)
}

func (h *TopupHandler) HandlePaymentInitiated(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(w, http.StatusUnauthorized, "unauthorized", xerrors.ErrUnauthorized)
		return
	}
	reference := chi.URLParam(r, "reference")

	resp, err := h.topups.MarkPaymentInitiated(ctx, userID, reference)
	if err != nil {
		h.logger.Warn("mark payment initiated failed",
			zap.String("user_id", userID),
			zap.String("reference", reference),
			zap.Error(err))
		sendError(w, statusFor(err), "failed to mark payment as initiated", err)
		return
	}
	sendSuccess(w, http.StatusOK, resp.Message, resp)
}

func (h *TopupHandler) HandleGetBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(w, http.StatusUnauthorized, "unauthorized", xerrors.ErrUnauthorized)
		return
	}

	resp, err := h.topups.GetBalance(ctx, userID)
	if err != nil {
		h.logger.Error("failed to load balance", zap.String("user_id", userID), zap.Error(err))
		sendError(w, statusFor(err), "failed to load balance", err)
		return
	}
	sendSuccess(w, http.StatusOK, "balance retrieved", resp)
}

func (h *TopupHandler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(w, http.StatusUnauthorized, "unauthorized", xerrors.ErrUnauthorized)
		return
	}

	resp, err := h.ledger.ListTransactions(ctx, userID, pageFromQuery(r))
	if err != nil {
		h.logger.Error("failed to list transactions", zap.String("user_id", userID), zap.Error(err))
		sendError(w, statusFor(err), "failed to list transactions", err)
		return
	}
	sendSuccess(w, http.StatusOK, "transactions retrieved", resp)
}
