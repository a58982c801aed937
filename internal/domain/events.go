// internal/domain/events.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventTopupAllocated  = "topup.allocated"
	EventTopupReconciled = "topup.reconciled"
	EventTopupUnmatched  = "topup.unmatched"
)

// TopupEvent is published after the owning transaction commits.
type TopupEvent struct {
	EventType     string          `json:"event_type"`
	SmsPaymentID  string          `json:"sms_payment_id,omitempty"`
	LockID        string          `json:"lock_id,omitempty"`
	UserID        string          `json:"user_id,omitempty"`
	WalletID      string          `json:"wallet_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Reference     string          `json:"reference,omitempty"`
	Message       string          `json:"message"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Key partitions events per user; unmatched payments fall back to the
// payment id.
func (e TopupEvent) Key() string {
	if e.UserID != "" {
		return e.UserID
	}
	return e.SmsPaymentID
}
