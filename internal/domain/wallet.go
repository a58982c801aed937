// internal/domain/wallet.go
package domain

import (
	"fmt"
	"time"

	"wallet-topup-service/pkg/xerrors"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeCredit TransactionType = "credit"
	TransactionTypeDebit  TransactionType = "debit"
)

const (
	ReferenceTypeTopupLock   = "topup_lock"
	ReferenceTypeBankSms     = "bank_sms_payment"
	ReferenceTypeManualTopup = "manual_topup"
)

// Wallet balance only changes through Credit and Debit, each of which
// returns the WalletTransaction that has to be stored with it.
type Wallet struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	IsActive  bool            `json:"is_active"`
	Version   int64           `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// WalletTransaction is insert-only. Amount is always positive; Type carries
// the direction.
type WalletTransaction struct {
	ID                string          `json:"id"`
	WalletID          string          `json:"wallet_id"`
	Type              TransactionType `json:"type"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Reason            string          `json:"reason"`
	ExternalReference *string         `json:"external_reference,omitempty"`
	ReferenceID       *string         `json:"reference_id,omitempty"`
	ReferenceType     *string         `json:"reference_type,omitempty"`
	BalanceAfter      decimal.Decimal `json:"balance_after"`
	CreatedAt         time.Time       `json:"created_at"`
}

// LedgerEntry carries the optional references recorded with a ledger move.
type LedgerEntry struct {
	Reason            string
	ExternalReference string
	ReferenceID       string
	ReferenceType     string
}

func NewWallet(userID, currency string) *Wallet {
	return &Wallet{
		UserID:   userID,
		Balance:  decimal.Zero,
		Currency: NormalizeCurrency(currency),
		IsActive: true,
	}
}

func (w *Wallet) Credit(amount Money, entry LedgerEntry, now time.Time) (*WalletTransaction, error) {
	if err := w.guard(amount); err != nil {
		return nil, err
	}
	w.Balance = w.Balance.Add(amount.Amount)
	w.UpdatedAt = now
	return w.newTransaction(TransactionTypeCredit, amount, entry, now), nil
}

func (w *Wallet) Debit(amount Money, entry LedgerEntry, now time.Time) (*WalletTransaction, error) {
	if err := w.guard(amount); err != nil {
		return nil, err
	}
	if w.Balance.LessThan(amount.Amount) {
		return nil, fmt.Errorf("%w: balance %s, requested %s",
			xerrors.ErrInsufficientFunds, w.Balance.StringFixed(2), amount.Amount.StringFixed(2))
	}
	w.Balance = w.Balance.Sub(amount.Amount)
	w.UpdatedAt = now
	return w.newTransaction(TransactionTypeDebit, amount, entry, now), nil
}

func (w *Wallet) Deactivate(now time.Time) {
	w.IsActive = false
	w.UpdatedAt = now
}

func (w *Wallet) Activate(now time.Time) {
	w.IsActive = true
	w.UpdatedAt = now
}

func (w *Wallet) guard(amount Money) error {
	if !w.IsActive {
		return xerrors.ErrWalletInactive
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s", xerrors.ErrInvalidAmount, amount.Amount.String())
	}
	if amount.Currency != w.Currency {
		return fmt.Errorf("%w: wallet %s, amount %s", xerrors.ErrCurrencyMismatch, w.Currency, amount.Currency)
	}
	return nil
}

func (w *Wallet) newTransaction(typ TransactionType, amount Money, entry LedgerEntry, now time.Time) *WalletTransaction {
	return &WalletTransaction{
		WalletID:          w.ID,
		Type:              typ,
		Amount:            amount.Amount,
		Currency:          amount.Currency,
		Reason:            entry.Reason,
		ExternalReference: optional(entry.ExternalReference),
		ReferenceID:       optional(entry.ReferenceID),
		ReferenceType:     optional(entry.ReferenceType),
		BalanceAfter:      w.Balance,
		CreatedAt:         now,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
