// internal/repository/wallet_repo.go
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

// WalletRepository methods take an optional tx; nil runs on the pool.
type WalletRepository interface {
	GetByUserID(ctx context.Context, tx pgx.Tx, userID string) (*domain.Wallet, error)
	GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID string) (*domain.Wallet, error)
	CreateIfMissing(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet) error
	UpdateBalance(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet) error
	InsertTransaction(ctx context.Context, tx pgx.Tx, txn *domain.WalletTransaction) error
	ListTransactions(ctx context.Context, walletID string, limit, offset int) ([]domain.WalletTransaction, int64, error)
}

type walletRepo struct {
	db *pgxpool.Pool
}

func NewWalletRepository(db *pgxpool.Pool) WalletRepository {
	return &walletRepo{db: db}
}

const walletColumns = `id, user_id, balance, currency, is_active, version, created_at, updated_at`

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	var w domain.Wallet
	err := row.Scan(&w.ID, &w.UserID, &w.Balance, &w.Currency, &w.IsActive, &w.Version, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to scan wallet: %w", err)
	}
	return &w, nil
}

func (r *walletRepo) GetByUserID(ctx context.Context, tx pgx.Tx, userID string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1`
	return scanWallet(conn(r.db, tx).QueryRow(ctx, query, userID))
}

// GetByUserIDForUpdate row-locks the wallet until tx ends.
func (r *walletRepo) GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID string) (*domain.Wallet, error) {
	if tx == nil {
		return nil, errors.New("transaction cannot be nil")
	}
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1 FOR UPDATE`
	return scanWallet(tx.QueryRow(ctx, query, userID))
}

// CreateIfMissing inserts the wallet unless the user already has one. It
// never fails on a concurrent insert, so it is safe inside a transaction.
func (r *walletRepo) CreateIfMissing(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error {
	query := `
		INSERT INTO wallets (id, user_id, balance, currency, is_active, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $6)
		ON CONFLICT (user_id) DO NOTHING
	`
	_, err := conn(r.db, tx).Exec(ctx, query, w.ID, w.UserID, w.Balance, w.Currency, w.IsActive, w.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	return nil
}

// UpdateBalance writes balance and bumps version, failing with
// ErrVersionConflict when the row moved since it was read.
func (r *walletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error {
	query := `
		UPDATE wallets
		SET balance = $1, is_active = $2, version = version + 1, updated_at = $3
		WHERE id = $4 AND version = $5
		RETURNING version
	`
	err := conn(r.db, tx).QueryRow(ctx, query, w.Balance, w.IsActive, w.UpdatedAt, w.ID, w.Version).Scan(&w.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return xerrors.ErrVersionConflict
		}
		return fmt.Errorf("failed to update wallet balance: %w", err)
	}
	return nil
}

func (r *walletRepo) InsertTransaction(ctx context.Context, tx pgx.Tx, t *domain.WalletTransaction) error {
	query := `
		INSERT INTO wallet_transactions (
			id, wallet_id, type, amount, currency, reason,
			external_reference, reference_id, reference_type, balance_after, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := conn(r.db, tx).Exec(ctx, query,
		t.ID,
		t.WalletID,
		t.Type,
		t.Amount,
		t.Currency,
		t.Reason,
		t.ExternalReference,
		t.ReferenceID,
		t.ReferenceType,
		t.BalanceAfter,
		t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert wallet transaction: %w", err)
	}
	return nil
}

func (r *walletRepo) ListTransactions(ctx context.Context, walletID string, limit, offset int) ([]domain.WalletTransaction, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM wallet_transactions WHERE wallet_id = $1`, walletID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count wallet transactions: %w", err)
	}

	query := `
		SELECT id, wallet_id, type, amount, currency, reason,
		       external_reference, reference_id, reference_type, balance_after, created_at
		FROM wallet_transactions
		WHERE wallet_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, walletID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list wallet transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.WalletTransaction
	for rows.Next() {
		var t domain.WalletTransaction
		if err := rows.Scan(
			&t.ID,
			&t.WalletID,
			&t.Type,
			&t.Amount,
			&t.Currency,
			&t.Reason,
			&t.ExternalReference,
			&t.ReferenceID,
			&t.ReferenceType,
			&t.BalanceAfter,
			&t.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan wallet transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}
