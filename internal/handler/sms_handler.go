// internal/handler/sms_handler.go
package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"wallet-topup-service/internal/domain"
	"wallet-topup-service/pkg/xerrors"

	"go.uber.org/zap"
)

const HeaderWebhookSecret = "X-Webhook-Secret"

type Reconciler interface {
	Reconcile(ctx context.Context, rawText string) domain.ReconcileOutcome
}

type BankSmsHandler struct {
	reconciler Reconciler
	secret     string
	logger     *zap.Logger
}

// NewBankSmsHandler builds the SMS forwarder webhook. An empty secret
// disables the shared secret check.
func NewBankSmsHandler(reconciler Reconciler, secret string, logger *zap.Logger) *BankSmsHandler {
	if secret == "" {
		logger.Warn("bank sms webhook secret not configured; accepting unauthenticated calls")
	}
	return &BankSmsHandler{
		reconciler: reconciler,
		secret:     secret,
		logger:     logger,
	}
}

// HandleBankSms receives one forwarded bank SMS.
func (h *BankSmsHandler) HandleBankSms(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	h.logger.Info("received bank sms webhook",
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("user_agent", r.UserAgent()))

	var req domain.BankSmsWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode bank sms request", zap.Error(err))
		sendError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := req.Validate(); err != nil {
		sendError(w, http.StatusBadRequest, "Missing sms text", err)
		return
	}

	provided := req.Secret
	if provided == "" {
		provided = r.Header.Get(HeaderWebhookSecret)
	}
	if !h.authorized(provided) {
		h.logger.Warn("bank sms webhook rejected: invalid secret",
			zap.String("remote_addr", r.RemoteAddr))
		sendError(w, http.StatusUnauthorized, "Invalid webhook secret", xerrors.ErrUnauthorized)
		return
	}

	if req.UserID != "" {
		h.logger.Info("bank sms forwarded for user", zap.String("user_id", req.UserID))
	}

	out := h.reconciler.Reconcile(ctx, req.SmsText)
	if !out.Accepted {
		writeJSON(w, http.StatusUnprocessableEntity, envelope{Success: false, Message: out.Message, Data: out})
		return
	}
	sendSuccess(w, http.StatusOK, out.Message, out)
}

func (h *BankSmsHandler) authorized(provided string) bool {
	if h.secret == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(h.secret)) == 1
}
