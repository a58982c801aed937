// internal/repository/topup_lock_repo.go
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallet-topup-service/internal/domain"
	"wallet-topup-service/pkg/xerrors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TopupLockRepository interface {
	// Create fails with ErrDuplicate when the amount slot is already held.
	Create(ctx context.Context, tx pgx.Tx, lock *domain.TopupLock) error
	Update(ctx context.Context, tx pgx.Tx, lock *domain.TopupLock) error
	ExpireStale(ctx context.Context, tx pgx.Tx, now time.Time) (int64, error)

	FindActiveAt(ctx context.Context, tx pgx.Tx, amount domain.Money, now time.Time) (*domain.TopupLock, error)
	FindActiveForUpdate(ctx context.Context, tx pgx.Tx, amount domain.Money, reference string, now time.Time) (*domain.TopupLock, error)
	GetByReference(ctx context.Context, tx pgx.Tx, reference string, forUpdate bool) (*domain.TopupLock, error)
	DistinctUsersWithLockAt(ctx context.Context, tx pgx.Tx, amount domain.Money, since time.Time) ([]string, error)
	List(ctx context.Context, status *domain.TopupLockStatus, page domain.PageRequest) ([]domain.TopupLock, int64, error)
}

type topupLockRepo struct {
	db *pgxpool.Pool
}

func NewTopupLockRepository(db *pgxpool.Pool) TopupLockRepository {
	return &topupLockRepo{db: db}
}

const lockColumns = `id, user_id, amount, currency, locked_at, expires_at, status, transaction_reference, created_at, updated_at`

func scanLock(row pgx.Row) (*domain.TopupLock, error) {
	var l domain.TopupLock
	err := row.Scan(
		&l.ID,
		&l.UserID,
		&l.Amount.Amount,
		&l.Amount.Currency,
		&l.LockedAt,
		&l.ExpiresAt,
		&l.Status,
		&l.TransactionReference,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrLockNotFound
		}
		return nil, fmt.Errorf("failed to scan topup lock: %w", err)
	}
	return &l, nil
}

func (r *topupLockRepo) Create(ctx context.Context, tx pgx.Tx, l *domain.TopupLock) error {
	// ON CONFLICT keeps a surrounding transaction usable after a collision.
	query := `
		INSERT INTO wallet_topup_locks (` + lockColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (amount, currency) WHERE status IN ('locked', 'awaiting_confirmation') DO NOTHING
		RETURNING id
	`
	var id string
	err := conn(r.db, tx).QueryRow(ctx, query,
		l.ID,
		l.UserID,
		l.Amount.Amount,
		l.Amount.Currency,
		l.LockedAt,
		l.ExpiresAt,
		l.Status,
		l.TransactionReference,
		l.CreatedAt,
		l.UpdatedAt,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || xerrors.IsUniqueViolation(err) {
			return fmt.Errorf("%w: amount %s already locked", xerrors.ErrDuplicate, l.Amount)
		}
		return fmt.Errorf("failed to create topup lock: %w", err)
	}
	return nil
}

// Update persists a transition. It only applies to a lock that is still
// pending in storage, so a concurrent sweep or completion wins cleanly.
func (r *topupLockRepo) Update(ctx context.Context, tx pgx.Tx, l *domain.TopupLock) error {
	query := `
		UPDATE wallet_topup_locks
		SET status = $1, expires_at = $2, updated_at = $3
		WHERE id = $4 AND status IN ('locked', 'awaiting_confirmation')
	`
	tag, err := conn(r.db, tx).Exec(ctx, query, l.Status, l.ExpiresAt, l.UpdatedAt, l.ID)
	if err != nil {
		return fmt.Errorf("failed to update topup lock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: lock %s is no longer pending", xerrors.ErrInvalidLockState, l.ID)
	}
	return nil
}

func (r *topupLockRepo) ExpireStale(ctx context.Context, tx pgx.Tx, now time.Time) (int64, error) {
	query := `
		UPDATE wallet_topup_locks
		SET status = 'expired', updated_at = $1
		WHERE status IN ('locked', 'awaiting_confirmation') AND expires_at <= $1
	`
	tag, err := conn(r.db, tx).Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale locks: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *topupLockRepo) FindActiveAt(ctx context.Context, tx pgx.Tx, amount domain.Money, now time.Time) (*domain.TopupLock, error) {
	query := `
		SELECT ` + lockColumns + `
		FROM wallet_topup_locks
		WHERE amount = $1 AND currency = $2
		  AND status IN ('locked', 'awaiting_confirmation')
		  AND expires_at > $3
		LIMIT 1
	`
	return scanLock(conn(r.db, tx).QueryRow(ctx, query, amount.Amount, amount.Currency, now))
}

// FindActiveForUpdate picks the most recently locked candidate at the exact
// amount, narrowed to reference when one is given, and row-locks it.
func (r *topupLockRepo) FindActiveForUpdate(ctx context.Context, tx pgx.Tx, amount domain.Money, reference string, now time.Time) (*domain.TopupLock, error) {
	if tx == nil {
		return nil, errors.New("transaction cannot be nil")
	}
	query := `
		SELECT ` + lockColumns + `
		FROM wallet_topup_locks
		WHERE amount = $1 AND currency = $2
		  AND status IN ('locked', 'awaiting_confirmation')
		  AND expires_at > $3
		  AND ($4::text = '' OR transaction_reference = $4::text)
		ORDER BY locked_at DESC
		LIMIT 1
		FOR UPDATE
	`
	return scanLock(tx.QueryRow(ctx, query, amount.Amount, amount.Currency, now, reference))
}

func (r *topupLockRepo) GetByReference(ctx context.Context, tx pgx.Tx, reference string, forUpdate bool) (*domain.TopupLock, error) {
	query := `SELECT ` + lockColumns + ` FROM wallet_topup_locks WHERE transaction_reference = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	return scanLock(conn(r.db, tx).QueryRow(ctx, query, reference))
}

func (r *topupLockRepo) DistinctUsersWithLockAt(ctx context.Context, tx pgx.Tx, amount domain.Money, since time.Time) ([]string, error) {
	query := `
		SELECT DISTINCT user_id
		FROM wallet_topup_locks
		WHERE amount = $1 AND currency = $2 AND created_at > $3
		ORDER BY user_id
	`
	rows, err := conn(r.db, tx).Query(ctx, query, amount.Amount, amount.Currency, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query lock users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan lock user: %w", err)
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

func (r *topupLockRepo) List(ctx context.Context, status *domain.TopupLockStatus, page domain.PageRequest) ([]domain.TopupLock, int64, error) {
	var filter any
	if status != nil {
		filter = string(*status)
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM wallet_topup_locks WHERE ($1::text IS NULL OR status = $1)`
	if err := r.db.QueryRow(ctx, countQuery, filter).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count topup locks: %w", err)
	}

	query := `
		SELECT ` + lockColumns + `
		FROM wallet_topup_locks
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, filter, page.PageSize, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list topup locks: %w", err)
	}
	defer rows.Close()

	var out []domain.TopupLock
	for rows.Next() {
		l, err := scanLock(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *l)
	}
	return out, total, rows.Err()
}
