package xerrors

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

// ParsePGErrorCode returns the SQLSTATE of a postgres error, or "unknown".
func ParsePGErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return "unknown"
}

func IsUniqueViolation(err error) bool {
	return ParsePGErrorCode(err) == pgUniqueViolation
}

// Generic
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not found")
	ErrDuplicate      = errors.New("duplicate record")
	ErrRateLimited    = errors.New("rate limit exceeded")
)

// Ledger guards
var (
	ErrInvalidAmount     = errors.New("amount must be greater than zero")
	ErrCurrencyMismatch  = errors.New("currency mismatch")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrWalletInactive    = errors.New("wallet is not active")
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrVersionConflict   = errors.New("wallet was modified concurrently")
)

// Top-up locks
var (
	ErrLockNotFound        = errors.New("topup lock not found")
	ErrLockExpired         = errors.New("lock expired")
	ErrLockCompleted       = errors.New("cannot expire completed lock")
	ErrInvalidLockState    = errors.New("invalid lock state transition")
	ErrAllocationExhausted = errors.New("no free amount slot found")
	ErrLockBusy            = errors.New("resource is locked by another holder")
)

// Reconciliation
var (
	ErrParseIncomplete = errors.New("parse incomplete: amount not found")
	ErrAmountMismatch  = errors.New("amount mismatch")
	ErrNoMatch         = errors.New("no matching user")
	ErrAmbiguous       = errors.New("ambiguous match, manual review required")
)
