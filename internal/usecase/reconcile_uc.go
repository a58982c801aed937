// internal/usecase/reconcile_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallet-topup-service/internal/domain"
	"wallet-topup-service/internal/repository"
	"wallet-topup-service/pkg/id"
	"wallet-topup-service/pkg/smsparser"
	"wallet-topup-service/pkg/xerrors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReconcileUsecase turns one inbound bank SMS into at most one wallet
// credit. Every SMS is stored before anything else happens.
type ReconcileUsecase struct {
	txm       repository.TxManager
	smsRepo   repository.BankSmsPaymentRepository
	lockRepo  repository.TopupLockRepository
	ledger    *LedgerUsecase
	matcher   *FallbackMatcher
	parser    *smsparser.Parser
	publisher EventPublisher
	logger    *zap.Logger
	now       Clock
}

func NewReconcileUsecase(
	txm repository.TxManager,
	smsRepo repository.BankSmsPaymentRepository,
	lockRepo repository.TopupLockRepository,
	ledger *LedgerUsecase,
	matcher *FallbackMatcher,
	parser *smsparser.Parser,
	publisher EventPublisher,
	logger *zap.Logger,
) *ReconcileUsecase {
	return &ReconcileUsecase{
		txm:       txm,
		smsRepo:   smsRepo,
		lockRepo:  lockRepo,
		ledger:    ledger,
		matcher:   matcher,
		parser:    parser,
		publisher: publisher,
		logger:    logger,
		now:       systemClock,
	}
}

type reconcileResult struct {
	outcome  string
	accepted bool
}

// Reconcile never returns an error: every failure is stored on the
// payment and reported in the outcome.
func (uc *ReconcileUsecase) Reconcile(ctx context.Context, rawText string) domain.ReconcileOutcome {
	start := time.Now()
	parsed := uc.parser.Parse(rawText)
	p := uc.newPayment(rawText, parsed)

	log := uc.logger.With(
		zap.String("sms_payment_id", p.ID),
		zap.String("transaction_id", parsed.TransactionID),
		zap.String("amount", p.Amount.StringFixed(2)),
		zap.String("sender", parsed.SenderName),
	)

	if err := uc.smsRepo.Create(ctx, nil, p); err != nil {
		log.Error("failed to persist bank sms", zap.Error(err))
		uc.observe(outcomeError, start)
		return domain.ReconcileOutcome{Accepted: false, Message: "Error: " + err.Error()}
	}

	res, err := uc.reconcileTx(ctx, p)
	if err != nil {
		res = uc.recordFailure(ctx, p, err, log)
	}

	log.Info("bank sms reconciled",
		zap.String("outcome", res.outcome),
		zap.Bool("accepted", res.accepted),
		zap.Bool("processed", p.Processed),
		zap.String("result", p.ProcessingResult),
		zap.Stringp("user_id", p.UserID),
		zap.Stringp("lock_id", p.WalletTopupLockID))
	uc.observe(res.outcome, start)
	uc.publish(ctx, p, res)

	return domain.ReconcileOutcome{Accepted: res.accepted, Message: p.ProcessingResult, SmsPaymentID: p.ID}
}

func (uc *ReconcileUsecase) newPayment(raw string, parsed smsparser.Result) *domain.BankSmsPayment {
	now := uc.now()
	p := &domain.BankSmsPayment{
		ID:          id.GenerateUUID("sms"),
		RawText:     raw,
		RawTextHash: domain.HashRawText(raw),
		Amount:      decimal.Zero,
		Currency:    domain.NormalizeCurrency(parsed.Currency),
		PaidAt:      parsed.PaidAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if parsed.HasAmount() {
		p.Amount = parsed.Amount.Decimal
	}
	if parsed.TransactionID != "" {
		p.TransactionID = &parsed.TransactionID
	}
	if parsed.SenderName != "" {
		p.SenderName = &parsed.SenderName
	}
	if parsed.SenderPhone != "" {
		p.SenderPhone = &parsed.SenderPhone
	}
	return p
}

func (uc *ReconcileUsecase) reconcileTx(ctx context.Context, p *domain.BankSmsPayment) (reconcileResult, error) {
	tx, err := uc.txm.BeginTx(ctx)
	if err != nil {
		return reconcileResult{}, err
	}
	defer tx.Rollback(ctx)

	res, err := uc.decide(ctx, tx, p)
	if err != nil {
		return reconcileResult{}, err
	}
	if err := uc.smsRepo.Update(ctx, tx, p); err != nil {
		return reconcileResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return reconcileResult{}, fmt.Errorf("commit: %w", err)
	}
	return res, nil
}

// decide applies one outcome to p (and to the lock and wallet) inside tx.
// The caller stores p and commits.
func (uc *ReconcileUsecase) decide(ctx context.Context, tx pgx.Tx, p *domain.BankSmsPayment) (reconcileResult, error) {
	now := uc.now()

	dup, err := uc.alreadyProcessed(ctx, tx, p)
	if err != nil {
		return reconcileResult{}, err
	}
	if dup {
		p.MarkProcessed(domain.ResultDuplicateTransaction, now)
		return reconcileResult{outcome: outcomeDuplicate, accepted: true}, nil
	}

	if !p.Amount.IsPositive() {
		p.MarkUnprocessed(domain.ResultParseIncomplete, now)
		return reconcileResult{outcome: outcomeParseIncomplete}, nil
	}

	ref := smsparser.ExtractReference(p.TxnID())
	lock, err := uc.lockRepo.FindActiveForUpdate(ctx, tx, p.Money(), ref, now)
	if errors.Is(err, xerrors.ErrLockNotFound) {
		return uc.creditFallback(ctx, tx, p)
	}
	if err != nil {
		return reconcileResult{}, err
	}
	return uc.creditLock(ctx, tx, p, lock)
}

// alreadyProcessed keys on the bank transaction id, or on the raw text
// when the SMS carries none.
func (uc *ReconcileUsecase) alreadyProcessed(ctx context.Context, tx pgx.Tx, p *domain.BankSmsPayment) (bool, error) {
	if txnID := p.TxnID(); txnID != "" {
		return uc.smsRepo.ExistsProcessedTransaction(ctx, tx, txnID, p.ID)
	}
	return uc.smsRepo.ExistsProcessedRawText(ctx, tx, p.RawTextHash, p.ID)
}

func (uc *ReconcileUsecase) creditLock(ctx context.Context, tx pgx.Tx, p *domain.BankSmsPayment, lock *domain.TopupLock) (reconcileResult, error) {
	// re-validate under the row lock
	now := uc.now()
	p.WalletTopupLockID = &lock.ID

	if lock.IsExpired(now) {
		if err := lock.MarkExpired(now); err != nil {
			return reconcileResult{}, err
		}
		if err := uc.lockRepo.Update(ctx, tx, lock); err != nil {
			return reconcileResult{}, err
		}
		p.MarkUnprocessed(domain.ResultLockExpired, now)
		return reconcileResult{outcome: outcomeLockExpired}, nil
	}

	if !p.Money().Equal(lock.Amount) {
		p.MarkUnprocessed(fmt.Sprintf("Amount mismatch: SMS amount %s vs Lock amount %s",
			p.Amount.StringFixed(2), lock.Amount.Amount.StringFixed(2)), now)
		return reconcileResult{outcome: outcomeAmountMismatch}, nil
	}

	reference := p.TxnID()
	if reference == "" {
		reference = lock.TransactionReference
	}
	w, _, err := uc.ledger.CreditTx(ctx, tx, lock.UserID, lock.Amount, domain.LedgerEntry{
		Reason:            "Bank SMS top-up: " + reference,
		ExternalReference: p.TxnID(),
		ReferenceID:       lock.ID,
		ReferenceType:     domain.ReferenceTypeTopupLock,
	})
	if err != nil {
		return reconcileResult{}, err
	}

	if err := lock.MarkCompleted(now); err != nil {
		return reconcileResult{}, err
	}
	lock.ForceExpireNow(now)
	if err := uc.lockRepo.Update(ctx, tx, lock); err != nil {
		return reconcileResult{}, err
	}

	p.AttachCredit(lock.UserID, w.ID, lock.ID, lock.Amount.Amount)
	p.MarkProcessed("Wallet credited: "+lock.Amount.Amount.StringFixed(2), now)
	return reconcileResult{outcome: outcomeCredited, accepted: true}, nil
}

func (uc *ReconcileUsecase) creditFallback(ctx context.Context, tx pgx.Tx, p *domain.BankSmsPayment) (reconcileResult, error) {
	match, err := uc.matcher.Match(ctx, tx, p)
	if err != nil {
		return reconcileResult{}, err
	}
	now := uc.now()

	if match.Kind != MatchKindMatched {
		uc.logger.Info("fallback match declined",
			zap.String("sms_payment_id", p.ID),
			zap.String("sender", p.Sender()),
			zap.Error(match.Err()))
		p.MarkUnprocessed(match.Reason, now)
		outcome := outcomeNoMatch
		if match.Kind == MatchKindAmbiguous {
			outcome = outcomeAmbiguous
		}
		return reconcileResult{outcome: outcome}, nil
	}

	reference := p.TxnID()
	if reference == "" {
		reference = p.ID
	}
	w, _, err := uc.ledger.CreditTx(ctx, tx, match.UserID, match.CreditAmount, domain.LedgerEntry{
		Reason:            "Bank SMS top-up: " + reference,
		ExternalReference: p.TxnID(),
		ReferenceID:       p.ID,
		ReferenceType:     domain.ReferenceTypeBankSms,
	})
	if err != nil {
		return reconcileResult{}, err
	}

	p.AttachCredit(match.UserID, w.ID, "", match.CreditAmount.Amount)
	p.MarkProcessed(fmt.Sprintf("Auto-credited %s %s to wallet (%s)",
		match.CreditAmount.Currency, match.CreditAmount.Amount.StringFixed(2), match.Reason), now)
	return reconcileResult{outcome: outcomeFallbackCredit, accepted: true}, nil
}

// recordFailure runs after the reconcile transaction rolled back. A unique
// violation on the credited transaction id means a concurrent delivery won.
func (uc *ReconcileUsecase) recordFailure(ctx context.Context, p *domain.BankSmsPayment, cause error, log *zap.Logger) reconcileResult {
	now := uc.now()
	p.DetachCredit()

	res := reconcileResult{outcome: outcomeError}
	if errors.Is(cause, xerrors.ErrDuplicate) {
		p.MarkProcessed(domain.ResultDuplicateTransaction, now)
		res = reconcileResult{outcome: outcomeDuplicate, accepted: true}
	} else {
		p.MarkUnprocessed("Error: "+cause.Error(), now)
		log.Error("bank sms reconciliation failed", zap.Error(cause))
	}

	if err := uc.smsRepo.Update(context.WithoutCancel(ctx), nil, p); err != nil {
		log.Error("failed to store reconciliation result", zap.Error(err))
	}
	return res
}

func (uc *ReconcileUsecase) observe(outcome string, start time.Time) {
	reconcileTotal.WithLabelValues(outcome).Inc()
	reconcileDuration.Observe(time.Since(start).Seconds())
}

func (uc *ReconcileUsecase) publish(ctx context.Context, p *domain.BankSmsPayment, res reconcileResult) {
	if res.outcome == outcomeDuplicate {
		return
	}
	event := domain.TopupEvent{
		EventType:     domain.EventTopupUnmatched,
		SmsPaymentID:  p.ID,
		Amount:        p.Amount,
		Currency:      p.Currency,
		TransactionID: p.TxnID(),
		Message:       p.ProcessingResult,
		Timestamp:     p.UpdatedAt,
	}
	if p.WalletTopupLockID != nil {
		event.LockID = *p.WalletTopupLockID
	}
	if p.Processed && p.UserID != nil {
		event.EventType = domain.EventTopupReconciled
		event.UserID = *p.UserID
		if p.WalletID != nil {
			event.WalletID = *p.WalletID
		}
		if p.CreditedAmount != nil {
			event.Amount = *p.CreditedAmount
		}
	}
	publishEvent(ctx, uc.publisher, uc.logger, event)
}

func (uc *ReconcileUsecase) ListPayments(ctx context.Context, processed *bool, page domain.PageRequest) (domain.PagedResult[domain.BankSmsPayment], error) {
	items, total, err := uc.smsRepo.List(ctx, processed, page)
	if err != nil {
		return domain.PagedResult[domain.BankSmsPayment]{}, err
	}
	return domain.NewPagedResult(items, total, page), nil
}
