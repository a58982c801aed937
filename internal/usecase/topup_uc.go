// internal/usecase/topup_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallet-topup-service/internal/domain"
	"wallet-topup-service/internal/repository"
	"wallet-topup-service/pkg/cache"
	"wallet-topup-service/pkg/id"
	"wallet-topup-service/pkg/qrpay"
	"wallet-topup-service/pkg/xerrors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	// MaxAllocationProbes bounds the +1 search for a free amount slot.
	MaxAllocationProbes = 100

	msgTopupCreated     = "Topup request created successfully. Please scan the QR code to complete payment."
	msgPaymentInitiated = "Payment marked as initiated. Awaiting confirmation."
)

type TopupConfig struct {
	LockTTL         time.Duration
	DefaultCurrency string
	Location        *time.Location
}

// TopupUsecase allocates amount slots and drives the lock state machine.
type TopupUsecase struct {
	txm       repository.TxManager
	lockRepo  repository.TopupLockRepository
	ledger    *LedgerUsecase
	locker    cache.Locker
	encoder   *qrpay.Encoder
	publisher EventPublisher
	cfg       TopupConfig
	logger    *zap.Logger
	now       Clock
}

func NewTopupUsecase(
	txm repository.TxManager,
	lockRepo repository.TopupLockRepository,
	ledger *LedgerUsecase,
	locker cache.Locker,
	encoder *qrpay.Encoder,
	publisher EventPublisher,
	cfg TopupConfig,
	logger *zap.Logger,
) *TopupUsecase {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	cfg.DefaultCurrency = domain.NormalizeCurrency(cfg.DefaultCurrency)
	return &TopupUsecase{
		txm:       txm,
		lockRepo:  lockRepo,
		ledger:    ledger,
		locker:    locker,
		encoder:   encoder,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		now:       systemClock,
	}
}

func allocationKey(currency string) string {
	return "topup-alloc:" + currency
}

// Allocate reserves the requested amount for userID, or the nearest free
// amount above it when another user holds it. A user asking again for an
// amount they already hold supersedes their older lock.
func (uc *TopupUsecase) Allocate(ctx context.Context, userID string, requested domain.Money) (*domain.TopupLock, error) {
	if !requested.IsPositive() {
		return nil, fmt.Errorf("%w: %s", xerrors.ErrInvalidAmount, requested)
	}

	unlock, err := uc.locker.Lock(ctx, allocationKey(requested.Currency))
	if err != nil {
		return nil, fmt.Errorf("acquire allocation lock: %w", err)
	}
	defer unlock()

	now := uc.now()
	if _, err := uc.CleanupExpiredLocks(ctx); err != nil {
		return nil, err
	}

	amount := requested
	for probe := 0; probe < MaxAllocationProbes; probe++ {
		holder, err := uc.lockRepo.FindActiveAt(ctx, nil, amount, now)
		switch {
		case errors.Is(err, xerrors.ErrLockNotFound):
		case err != nil:
			return nil, err
		case probe == 0 && holder.UserID == userID:
			if err := uc.supersede(ctx, holder, now); err != nil {
				return nil, err
			}
		default:
			amount = amount.Plus(1)
			continue
		}

		lock := domain.NewTopupLock(userID, amount, uc.cfg.LockTTL, id.GenerateTopupReference(now), now)
		lock.ID = id.GenerateUUID("wtl")
		err = uc.lockRepo.Create(ctx, nil, lock)
		if errors.Is(err, xerrors.ErrDuplicate) {
			amount = amount.Plus(1)
			continue
		}
		if err != nil {
			return nil, err
		}

		result := "exact"
		if !amount.Equal(requested) {
			result = "bumped"
		}
		allocationsTotal.WithLabelValues(result).Inc()
		uc.logger.Info("topup lock allocated",
			zap.String("user_id", userID),
			zap.String("lock_id", lock.ID),
			zap.String("requested", requested.String()),
			zap.String("effective", amount.String()),
			zap.String("reference", lock.TransactionReference),
			zap.Time("expires_at", lock.ExpiresAt))

		publishEvent(ctx, uc.publisher, uc.logger, domain.TopupEvent{
			EventType: domain.EventTopupAllocated,
			LockID:    lock.ID,
			UserID:    userID,
			Amount:    amount.Amount,
			Currency:  amount.Currency,
			Reference: lock.TransactionReference,
			Message:   fmt.Sprintf("Allocated %s", amount),
			Timestamp: now,
		})
		return lock, nil
	}

	uc.logger.Warn("no free amount slot",
		zap.String("user_id", userID),
		zap.String("requested", requested.String()),
		zap.Int("probes", MaxAllocationProbes))
	return nil, xerrors.ErrAllocationExhausted
}

func (uc *TopupUsecase) supersede(ctx context.Context, old *domain.TopupLock, now time.Time) error {
	if err := old.MarkExpired(now); err != nil {
		return err
	}
	if err := uc.lockRepo.Update(ctx, nil, old); err != nil && !errors.Is(err, xerrors.ErrInvalidLockState) {
		return err
	}
	uc.logger.Info("superseded own pending lock",
		zap.String("user_id", old.UserID),
		zap.String("lock_id", old.ID),
		zap.String("reference", old.TransactionReference))
	return nil
}

func (uc *TopupUsecase) RequestTopup(ctx context.Context, userID string, req *domain.TopupRequest) (*domain.TopupResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	currency := uc.cfg.DefaultCurrency
	if req.Currency != "" {
		currency = domain.NormalizeCurrency(req.Currency)
	}
	requested := domain.NewMoney(req.Amount, currency)

	lock, err := uc.Allocate(ctx, userID, requested)
	if err != nil {
		return nil, err
	}

	balance, err := uc.ledger.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	msg := msgTopupCreated
	if !lock.Amount.Equal(requested) {
		msg = fmt.Sprintf("Amount %s %s was busy. Assigned unique amount %s %s.",
			currency, requested.Amount.String(), currency, lock.Amount.Amount.String())
	}

	return &domain.TopupResponse{
		LockID:               lock.ID,
		EffectiveAmount:      lock.Amount.Amount,
		RequestedAmount:      requested.Amount,
		Currency:             currency,
		QRPayload:            uc.encoder.Encode(lock.Amount.Amount, lock.ExpiresAt.In(uc.cfg.Location)),
		TransactionReference: lock.TransactionReference,
		CurrentBalance:       balance.Balance,
		ExpiresAt:            lock.ExpiresAt,
		Message:              msg,
	}, nil
}

// MarkPaymentInitiated moves the caller's lock to awaiting_confirmation and
// may extend it once more by up to MaxLockTTL.
func (uc *TopupUsecase) MarkPaymentInitiated(ctx context.Context, userID, reference string) (*domain.PaymentInitiatedResponse, error) {
	tx, err := uc.txm.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	lock, err := uc.lockRepo.GetByReference(ctx, tx, reference, true)
	if err != nil {
		return nil, err
	}
	if lock.UserID != userID {
		return nil, xerrors.ErrLockNotFound
	}

	now := uc.now()
	if lock.Status == domain.TopupLockStatusExpired {
		return nil, xerrors.ErrLockExpired
	}
	if lock.IsPending() && lock.IsExpired(now) {
		if err := uc.expireTx(ctx, tx, lock, now); err != nil {
			return nil, err
		}
		return nil, xerrors.ErrLockExpired
	}

	if err := lock.MarkAwaitingConfirmation(domain.MaxLockTTL, now); err != nil {
		return nil, err
	}
	if err := uc.lockRepo.Update(ctx, tx, lock); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	uc.logger.Info("payment marked as initiated",
		zap.String("user_id", userID),
		zap.String("reference", reference),
		zap.Time("expires_at", lock.ExpiresAt))

	return &domain.PaymentInitiatedResponse{
		TransactionReference: reference,
		Status:               lock.Status,
		ExpiresAt:            lock.ExpiresAt,
		Message:              msgPaymentInitiated,
	}, nil
}

// VerifyAndComplete is the operator path: credit the lock owner for an
// exact payment, complete the lock and burn its QR, all in one transaction.
func (uc *TopupUsecase) VerifyAndComplete(ctx context.Context, reference string, paid decimal.Decimal) (*domain.VerifyTopupResponse, error) {
	tx, err := uc.txm.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	lock, err := uc.lockRepo.GetByReference(ctx, tx, reference, true)
	if err != nil {
		return nil, err
	}

	now := uc.now()
	switch {
	case lock.Status == domain.TopupLockStatusExpired:
		return nil, xerrors.ErrLockExpired
	case lock.IsTerminal():
		return nil, fmt.Errorf("%w: lock is %s", xerrors.ErrInvalidLockState, lock.Status)
	case lock.IsExpired(now):
		if err := uc.expireTx(ctx, tx, lock, now); err != nil {
			return nil, err
		}
		return nil, xerrors.ErrLockExpired
	case !paid.Equal(lock.Amount.Amount):
		return nil, fmt.Errorf("%w: paid %s vs lock %s", xerrors.ErrAmountMismatch, paid, lock.Amount.Amount)
	}

	w, txn, err := uc.ledger.CreditTx(ctx, tx, lock.UserID, lock.Amount, domain.LedgerEntry{
		Reason:            "Wallet topup via QR payment - " + reference,
		ExternalReference: reference,
		ReferenceID:       lock.ID,
		ReferenceType:     domain.ReferenceTypeManualTopup,
	})
	if err != nil {
		return nil, err
	}
	if err := lock.MarkCompleted(now); err != nil {
		return nil, err
	}
	lock.ForceExpireNow(now)
	if err := uc.lockRepo.Update(ctx, tx, lock); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	uc.logger.Info("wallet topup completed",
		zap.String("user_id", lock.UserID),
		zap.String("amount", lock.Amount.String()),
		zap.String("reference", reference))

	publishEvent(ctx, uc.publisher, uc.logger, domain.TopupEvent{
		EventType: domain.EventTopupReconciled,
		LockID:    lock.ID,
		UserID:    lock.UserID,
		WalletID:  w.ID,
		Amount:    lock.Amount.Amount,
		Currency:  lock.Amount.Currency,
		Reference: reference,
		Message:   "Wallet credited: " + lock.Amount.Amount.String(),
		Timestamp: now,
	})

	return &domain.VerifyTopupResponse{
		TransactionReference: reference,
		UserID:               lock.UserID,
		CreditedAmount:       lock.Amount.Amount,
		BalanceAfter:         txn.BalanceAfter,
		Currency:             lock.Amount.Currency,
	}, nil
}

// CleanupExpiredLocks moves every lapsed pending lock to expired.
func (uc *TopupUsecase) CleanupExpiredLocks(ctx context.Context) (int64, error) {
	n, err := uc.lockRepo.ExpireStale(ctx, nil, uc.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		expiredLocksTotal.Add(float64(n))
		uc.logger.Info("cleaned up expired topup locks", zap.Int64("count", n))
	}
	return n, nil
}

func (uc *TopupUsecase) GetBalance(ctx context.Context, userID string) (*domain.BalanceResponse, error) {
	return uc.ledger.GetBalance(ctx, userID)
}

func (uc *TopupUsecase) ListLocks(ctx context.Context, status *domain.TopupLockStatus, page domain.PageRequest) (domain.PagedResult[domain.TopupLock], error) {
	items, total, err := uc.lockRepo.List(ctx, status, page)
	if err != nil {
		return domain.PagedResult[domain.TopupLock]{}, err
	}
	return domain.NewPagedResult(items, total, page), nil
}

// expireTx persists the expiry and commits so the caller can report it.
func (uc *TopupUsecase) expireTx(ctx context.Context, tx pgx.Tx, lock *domain.TopupLock, now time.Time) error {
	if err := lock.MarkExpired(now); err != nil {
		return err
	}
	if err := uc.lockRepo.Update(ctx, tx, lock); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	uc.logger.Info("topup lock expired",
		zap.String("lock_id", lock.ID),
		zap.String("reference", lock.TransactionReference))
	return nil
}
