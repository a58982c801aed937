package domain

import (
	"testing"
	"time"

	"wallet-topup-service/pkg/xerrors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 9, 27, 8, 0, 0, 0, time.UTC)

func pkr(s string) Money { return NewMoney(decimal.RequireFromString(s), "PKR") }

func TestWallet_Credit(t *testing.T) {
	w := NewWallet("u1", "pkr")
	w.ID = "w1"

	tx, err := w.Credit(pkr("428"), LedgerEntry{
		Reason:            "Bank SMS top-up: SM1",
		ExternalReference: "SM1",
		ReferenceID:       "lock1",
		ReferenceType:     ReferenceTypeTopupLock,
	}, now)
	require.NoError(t, err)

	assert.True(t, w.Balance.Equal(decimal.NewFromInt(428)))
	assert.Equal(t, TransactionTypeCredit, tx.Type)
	assert.Equal(t, "w1", tx.WalletID)
	assert.True(t, tx.BalanceAfter.Equal(w.Balance))
	require.NotNil(t, tx.ReferenceType)
	assert.Equal(t, ReferenceTypeTopupLock, *tx.ReferenceType)
	assert.Equal(t, now, w.UpdatedAt)
}

func TestWallet_Guards(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(w *Wallet)
		amount  Money
		debit   bool
		wantErr error
	}{
		{
			name:    "Given an inactive wallet When credited Then ErrWalletInactive",
			setup:   func(w *Wallet) { w.Deactivate(now) },
			amount:  pkr("10"),
			wantErr: xerrors.ErrWalletInactive,
		},
		{
			name:    "Given a USD amount When credited to a PKR wallet Then ErrCurrencyMismatch",
			amount:  NewMoney(decimal.NewFromInt(10), "USD"),
			wantErr: xerrors.ErrCurrencyMismatch,
		},
		{
			name:    "Given a zero amount When credited Then ErrInvalidAmount",
			amount:  pkr("0"),
			wantErr: xerrors.ErrInvalidAmount,
		},
		{
			name:    "Given a negative amount When debited Then ErrInvalidAmount",
			amount:  pkr("-5"),
			debit:   true,
			wantErr: xerrors.ErrInvalidAmount,
		},
		{
			name:    "Given balance 50 When debiting 51 Then ErrInsufficientFunds",
			setup:   func(w *Wallet) { w.Balance = decimal.NewFromInt(50) },
			amount:  pkr("51"),
			debit:   true,
			wantErr: xerrors.ErrInsufficientFunds,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWallet("u1", "PKR")
			if tt.setup != nil {
				tt.setup(w)
			}
			before := w.Balance

			var err error
			if tt.debit {
				_, err = w.Debit(tt.amount, LedgerEntry{}, now)
			} else {
				_, err = w.Credit(tt.amount, LedgerEntry{}, now)
			}

			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, w.Balance.Equal(before), "balance must not move on error")
		})
	}
}

func TestWallet_DebitToZero(t *testing.T) {
	w := NewWallet("u1", "PKR")
	_, err := w.Credit(pkr("100.50"), LedgerEntry{}, now)
	require.NoError(t, err)

	tx, err := w.Debit(pkr("100.50"), LedgerEntry{Reason: "withdrawal"}, now)
	require.NoError(t, err)

	assert.True(t, w.Balance.IsZero())
	assert.Equal(t, TransactionTypeDebit, tx.Type)
	assert.True(t, tx.Amount.IsPositive())
	assert.Nil(t, tx.ExternalReference)
}

func TestWallet_ReactivateAllowsCredit(t *testing.T) {
	w := NewWallet("u1", "PKR")
	w.Deactivate(now)
	w.Activate(now)

	_, err := w.Credit(pkr("1"), LedgerEntry{}, now)
	assert.NoError(t, err)
}
