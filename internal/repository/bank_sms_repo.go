// internal/repository/bank_sms_repo.go
package repository

import (
	"context"
	"errors"
	"fmt"

	"wallet-topup-service/internal/domain"
	"wallet-topup-service/pkg/xerrors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type BankSmsPaymentRepository interface {
	Create(ctx context.Context, tx pgx.Tx, p *domain.BankSmsPayment) error
	// Update fails with ErrDuplicate when a second payment tries to credit
	// the same bank transaction id, or the same raw text when there is none.
	Update(ctx context.Context, tx pgx.Tx, p *domain.BankSmsPayment) error
	ExistsProcessedTransaction(ctx context.Context, tx pgx.Tx, transactionID, excludeID string) (bool, error)
	ExistsProcessedRawText(ctx context.Context, tx pgx.Tx, rawTextHash, excludeID string) (bool, error)
	ExistsProcessedAmount(ctx context.Context, tx pgx.Tx, amount domain.Money, excludeID string) (bool, error)
	List(ctx context.Context, processed *bool, page domain.PageRequest) ([]domain.BankSmsPayment, int64, error)
}

type bankSmsRepo struct {
	db *pgxpool.Pool
}

func NewBankSmsPaymentRepository(db *pgxpool.Pool) BankSmsPaymentRepository {
	return &bankSmsRepo{db: db}
}

const smsColumns = `
	id, raw_text, raw_text_hash, transaction_id, amount, currency, paid_at, sender_name, sender_phone,
	processed, processing_result, credited_amount, user_id, wallet_id, wallet_topup_lock_id,
	created_at, updated_at`

func scanSms(row pgx.Row) (*domain.BankSmsPayment, error) {
	var p domain.BankSmsPayment
	err := row.Scan(
		&p.ID,
		&p.RawText,
		&p.RawTextHash,
		&p.TransactionID,
		&p.Amount,
		&p.Currency,
		&p.PaidAt,
		&p.SenderName,
		&p.SenderPhone,
		&p.Processed,
		&p.ProcessingResult,
		&p.CreditedAmount,
		&p.UserID,
		&p.WalletID,
		&p.WalletTopupLockID,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan bank sms payment: %w", err)
	}
	return &p, nil
}

func (r *bankSmsRepo) Create(ctx context.Context, tx pgx.Tx, p *domain.BankSmsPayment) error {
	query := `
		INSERT INTO bank_sms_payments (` + smsColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err := conn(r.db, tx).Exec(ctx, query,
		p.ID,
		p.RawText,
		p.RawTextHash,
		p.TransactionID,
		p.Amount,
		p.Currency,
		p.PaidAt,
		p.SenderName,
		p.SenderPhone,
		p.Processed,
		p.ProcessingResult,
		p.CreditedAmount,
		p.UserID,
		p.WalletID,
		p.WalletTopupLockID,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create bank sms payment: %w", err)
	}
	return nil
}

func (r *bankSmsRepo) Update(ctx context.Context, tx pgx.Tx, p *domain.BankSmsPayment) error {
	query := `
		UPDATE bank_sms_payments
		SET processed = $1, processing_result = $2, credited_amount = $3,
		    user_id = $4, wallet_id = $5, wallet_topup_lock_id = $6, updated_at = $7
		WHERE id = $8
	`
	tag, err := conn(r.db, tx).Exec(ctx, query,
		p.Processed,
		p.ProcessingResult,
		p.CreditedAmount,
		p.UserID,
		p.WalletID,
		p.WalletTopupLockID,
		p.UpdatedAt,
		p.ID,
	)
	if err != nil {
		if xerrors.IsUniqueViolation(err) {
			return fmt.Errorf("%w: payment %s already credited", xerrors.ErrDuplicate, p.ID)
		}
		return fmt.Errorf("failed to update bank sms payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (r *bankSmsRepo) ExistsProcessedTransaction(ctx context.Context, tx pgx.Tx, transactionID, excludeID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM bank_sms_payments
			WHERE processed AND transaction_id = $1 AND id <> $2
		)
	`
	var exists bool
	if err := conn(r.db, tx).QueryRow(ctx, query, transactionID, excludeID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check processed transaction: %w", err)
	}
	return exists, nil
}

// ExistsProcessedRawText only considers payments without a transaction id.
func (r *bankSmsRepo) ExistsProcessedRawText(ctx context.Context, tx pgx.Tx, rawTextHash, excludeID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM bank_sms_payments
			WHERE processed AND transaction_id IS NULL AND raw_text_hash = $1 AND id <> $2
		)
	`
	var exists bool
	if err := conn(r.db, tx).QueryRow(ctx, query, rawTextHash, excludeID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check processed raw text: %w", err)
	}
	return exists, nil
}

func (r *bankSmsRepo) ExistsProcessedAmount(ctx context.Context, tx pgx.Tx, amount domain.Money, excludeID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM bank_sms_payments
			WHERE processed AND amount = $1 AND currency = $2 AND id <> $3
		)
	`
	var exists bool
	if err := conn(r.db, tx).QueryRow(ctx, query, amount.Amount, amount.Currency, excludeID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check processed amount: %w", err)
	}
	return exists, nil
}

func (r *bankSmsRepo) List(ctx context.Context, processed *bool, page domain.PageRequest) ([]domain.BankSmsPayment, int64, error) {
	var total int64
	countQuery := `SELECT COUNT(*) FROM bank_sms_payments WHERE ($1::boolean IS NULL OR processed = $1)`
	if err := r.db.QueryRow(ctx, countQuery, processed).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count bank sms payments: %w", err)
	}

	query := `
		SELECT ` + smsColumns + `
		FROM bank_sms_payments
		WHERE ($1::boolean IS NULL OR processed = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, processed, page.PageSize, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list bank sms payments: %w", err)
	}
	defer rows.Close()

	var out []domain.BankSmsPayment
	for rows.Next() {
		p, err := scanSms(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *p)
	}
	return out, total, rows.Err()
}
