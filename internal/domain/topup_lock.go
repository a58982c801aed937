// internal/domain/topup_lock.go
package domain

import (
	"fmt"
	"time"

	"wallet-topup-service/pkg/xerrors"
)

type TopupLockStatus string

const (
	TopupLockStatusLocked               TopupLockStatus = "locked"
	TopupLockStatusAwaitingConfirmation TopupLockStatus = "awaiting_confirmation"
	TopupLockStatusCompleted            TopupLockStatus = "completed"
	TopupLockStatusExpired              TopupLockStatus = "expired"
)

// MaxLockTTL bounds both the initial reservation and any extension.
const MaxLockTTL = 2 * time.Minute

func ParseTopupLockStatus(s string) (TopupLockStatus, error) {
	switch st := TopupLockStatus(s); st {
	case TopupLockStatusLocked, TopupLockStatusAwaitingConfirmation,
		TopupLockStatusCompleted, TopupLockStatusExpired:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown lock status %q", xerrors.ErrInvalidRequest, s)
}

// TopupLock reserves an (amount, currency) slot for one user so that the
// amount alone identifies the payer when the bank SMS arrives.
//
//	locked -> awaiting_confirmation -> completed
//	locked | awaiting_confirmation -> expired
type TopupLock struct {
	ID                   string          `json:"id"`
	UserID               string          `json:"user_id"`
	Amount               Money           `json:"amount"`
	LockedAt             time.Time       `json:"locked_at"`
	ExpiresAt            time.Time       `json:"expires_at"`
	Status               TopupLockStatus `json:"status"`
	TransactionReference string          `json:"transaction_reference"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// EffectiveLockTTL caps the configured TTL at MaxLockTTL. Non-positive
// values mean MaxLockTTL.
func EffectiveLockTTL(configured time.Duration) time.Duration {
	if configured <= 0 || configured > MaxLockTTL {
		return MaxLockTTL
	}
	return configured
}

func NewTopupLock(userID string, amount Money, ttl time.Duration, reference string, now time.Time) *TopupLock {
	return &TopupLock{
		UserID:               userID,
		Amount:               amount,
		LockedAt:             now,
		ExpiresAt:            now.Add(EffectiveLockTTL(ttl)),
		Status:               TopupLockStatusLocked,
		TransactionReference: reference,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

func (l *TopupLock) IsExpired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

func (l *TopupLock) IsPending() bool {
	return l.Status == TopupLockStatusLocked || l.Status == TopupLockStatusAwaitingConfirmation
}

// IsActive is true while the lock still holds its amount slot.
func (l *TopupLock) IsActive(now time.Time) bool {
	return l.IsPending() && !l.IsExpired(now)
}

func (l *TopupLock) IsTerminal() bool {
	return l.Status == TopupLockStatusCompleted || l.Status == TopupLockStatusExpired
}

// MarkAwaitingConfirmation records that the payer says they have paid. The
// expiry may move out to now+min(extend, MaxLockTTL) but never shrinks.
func (l *TopupLock) MarkAwaitingConfirmation(extend time.Duration, now time.Time) error {
	if !l.IsPending() {
		return fmt.Errorf("%w: cannot await confirmation from %s", xerrors.ErrInvalidLockState, l.Status)
	}
	if l.IsExpired(now) {
		return xerrors.ErrLockExpired
	}
	l.Status = TopupLockStatusAwaitingConfirmation
	if extend > MaxLockTTL {
		extend = MaxLockTTL
	}
	if capped := now.Add(extend); capped.After(l.ExpiresAt) {
		l.ExpiresAt = capped
	}
	l.UpdatedAt = now
	return nil
}

func (l *TopupLock) MarkCompleted(now time.Time) error {
	if !l.IsPending() {
		return fmt.Errorf("%w: cannot complete lock in status %s", xerrors.ErrInvalidLockState, l.Status)
	}
	if l.IsExpired(now) {
		return xerrors.ErrLockExpired
	}
	l.Status = TopupLockStatusCompleted
	l.UpdatedAt = now
	return nil
}

// MarkExpired is a no-op on an already expired lock.
func (l *TopupLock) MarkExpired(now time.Time) error {
	switch l.Status {
	case TopupLockStatusCompleted:
		return xerrors.ErrLockCompleted
	case TopupLockStatusExpired:
		return nil
	}
	l.Status = TopupLockStatusExpired
	l.UpdatedAt = now
	return nil
}

// ForceExpireNow pulls ExpiresAt back to now so a paid QR can never be
// scanned again. It never extends the lock.
func (l *TopupLock) ForceExpireNow(now time.Time) {
	if l.ExpiresAt.After(now) {
		l.ExpiresAt = now
	}
	l.UpdatedAt = now
}
