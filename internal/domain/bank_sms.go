// internal/domain/bank_sms.go
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Processing result messages stored on BankSmsPayment.
const (
	ResultDuplicateTransaction = "Duplicate transaction id; already processed"
	ResultParseIncomplete      = "Parse incomplete: amount not found"
	ResultLockExpired          = "Lock expired"
	ResultNoUserMatched        = "No users matched name or amount criteria"
	ResultInvalidMatchAmount   = "Invalid amount for automatic matching"
)

// BankSmsPayment is the stored copy of one bank credit SMS. It is persisted
// before any credit is attempted, so every delivery leaves a trace.
type BankSmsPayment struct {
	ID                string           `json:"id"`
	RawText           string           `json:"raw_text"`
	RawTextHash       string           `json:"raw_text_hash"`
	TransactionID     *string          `json:"transaction_id,omitempty"`
	Amount            decimal.Decimal  `json:"amount"`
	Currency          string           `json:"currency"`
	PaidAt            *time.Time       `json:"paid_at,omitempty"`
	SenderName        *string          `json:"sender_name,omitempty"`
	SenderPhone       *string          `json:"sender_phone,omitempty"`
	Processed         bool             `json:"processed"`
	ProcessingResult  string           `json:"processing_result"`
	CreditedAmount    *decimal.Decimal `json:"credited_amount,omitempty"`
	UserID            *string          `json:"user_id,omitempty"`
	WalletID          *string          `json:"wallet_id,omitempty"`
	WalletTopupLockID *string          `json:"wallet_topup_lock_id,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// HashRawText identifies a redelivery of the same SMS when the bank sent
// no transaction id. Surrounding whitespace is ignored.
func HashRawText(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}

func (p *BankSmsPayment) TxnID() string {
	if p.TransactionID == nil {
		return ""
	}
	return *p.TransactionID
}

func (p *BankSmsPayment) Sender() string {
	if p.SenderName == nil {
		return ""
	}
	return *p.SenderName
}

func (p *BankSmsPayment) Money() Money {
	return NewMoney(p.Amount, p.Currency)
}

// MarkProcessed records a terminal success. Callers pass the ids they know.
func (p *BankSmsPayment) MarkProcessed(result string, now time.Time) {
	p.Processed = true
	p.ProcessingResult = result
	p.UpdatedAt = now
}

// MarkUnprocessed leaves the payment for manual review.
func (p *BankSmsPayment) MarkUnprocessed(result string, now time.Time) {
	p.Processed = false
	p.ProcessingResult = result
	p.UpdatedAt = now
}

// AttachCredit links the payment to the wallet movement it caused.
func (p *BankSmsPayment) AttachCredit(userID, walletID, lockID string, credited decimal.Decimal) {
	p.UserID = optional(userID)
	p.WalletID = optional(walletID)
	p.WalletTopupLockID = optional(lockID)
	p.CreditedAmount = &credited
}

// DetachCredit drops the links set by AttachCredit after a rollback.
func (p *BankSmsPayment) DetachCredit() {
	p.UserID = nil
	p.WalletID = nil
	p.WalletTopupLockID = nil
	p.CreditedAmount = nil
}
