// internal/domain/dto.go
package domain

import (
	"fmt"
	"strings"
	"time"

	"wallet-topup-service/pkg/xerrors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BankSmsWebhookRequest is the body posted by the SMS forwarder.
type BankSmsWebhookRequest struct {
	SmsText string `json:"smsText"`
	Secret  string `json:"secret,omitempty"`
	UserID  string `json:"userId,omitempty"`
}

func (r *BankSmsWebhookRequest) Validate() error {
	if strings.TrimSpace(r.SmsText) == "" {
		return fmt.Errorf("%w: smsText is required", xerrors.ErrInvalidRequest)
	}
	if r.UserID != "" {
		if _, err := uuid.Parse(r.UserID); err != nil {
			return fmt.Errorf("%w: userId must be a UUID", xerrors.ErrInvalidRequest)
		}
	}
	return nil
}

// ReconcileOutcome is what the webhook reports back. Message doubles as the
// stored processing result.
type ReconcileOutcome struct {
	Accepted     bool   `json:"accepted"`
	Message      string `json:"message"`
	SmsPaymentID string `json:"smsPaymentId,omitempty"`
}

type TopupRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency,omitempty"`
}

func (r *TopupRequest) Validate() error {
	if !r.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be greater than zero", xerrors.ErrInvalidAmount)
	}
	if !r.Amount.Equal(r.Amount.Truncate(0)) {
		return fmt.Errorf("%w: amount must be a whole number", xerrors.ErrInvalidAmount)
	}
	return nil
}

type TopupResponse struct {
	LockID               string          `json:"lockId"`
	EffectiveAmount      decimal.Decimal `json:"effectiveAmount"`
	RequestedAmount      decimal.Decimal `json:"requestedAmount"`
	Currency             string          `json:"currency"`
	QRPayload            string          `json:"qrPayload"`
	TransactionReference string          `json:"transactionReference"`
	CurrentBalance       decimal.Decimal `json:"currentBalance"`
	ExpiresAt            time.Time       `json:"expiresAt"`
	Message              string          `json:"message"`
}

type PaymentInitiatedResponse struct {
	TransactionReference string          `json:"transactionReference"`
	Status               TopupLockStatus `json:"status"`
	ExpiresAt            time.Time       `json:"expiresAt"`
	Message              string          `json:"message"`
}

type VerifyTopupRequest struct {
	PaidAmount decimal.Decimal `json:"paidAmount"`
}

func (r *VerifyTopupRequest) Validate() error {
	if !r.PaidAmount.IsPositive() {
		return fmt.Errorf("%w: paidAmount must be greater than zero", xerrors.ErrInvalidAmount)
	}
	return nil
}

type VerifyTopupResponse struct {
	TransactionReference string          `json:"transactionReference"`
	UserID               string          `json:"userId"`
	CreditedAmount       decimal.Decimal `json:"creditedAmount"`
	BalanceAfter         decimal.Decimal `json:"balanceAfter"`
	Currency             string          `json:"currency"`
}

type BalanceResponse struct {
	UserID   string          `json:"userId"`
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageRequest is 1-based.
type PageRequest struct {
	Page     int
	PageSize int
}

func NewPageRequest(page, pageSize int) PageRequest {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return PageRequest{Page: page, PageSize: pageSize}
}

func (p PageRequest) Offset() int { return (p.Page - 1) * p.PageSize }

type PagedResult[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	TotalPages int   `json:"totalPages"`
}

func NewPagedResult[T any](items []T, total int64, p PageRequest) PagedResult[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if total > 0 {
		pages = int((total + int64(p.PageSize) - 1) / int64(p.PageSize))
	}
	return PagedResult[T]{Items: items, TotalCount: total, Page: p.Page, PageSize: p.PageSize, TotalPages: pages}
}
