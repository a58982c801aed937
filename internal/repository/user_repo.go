// internal/repository/user_repo.go
package repository

import (
	"context"
	"fmt"

	"wallet-topup-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository is a read-only view of the users directory.
type UserRepository interface {
	ListAll(ctx context.Context, tx pgx.Tx) ([]domain.User, error)
}

type userRepo struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) ListAll(ctx context.Context, tx pgx.Tx) ([]domain.User, error) {
	rows, err := conn(r.db, tx).Query(ctx, `SELECT id, first_name, last_name FROM users`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.FirstName, &u.LastName); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
