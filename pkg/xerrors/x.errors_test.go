package xerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"Given a 23505 pg error When checked Then it is a unique violation", &pgconn.PgError{Code: "23505"}, true},
		{"Given a wrapped 23505 When checked Then it is still detected", fmt.Errorf("insert lock: %w", &pgconn.PgError{Code: "23505"}), true},
		{"Given a foreign key violation When checked Then it is not a unique violation", &pgconn.PgError{Code: "23503"}, false},
		{"Given a plain error When checked Then it is not a unique violation", errors.New("boom"), false},
		{"Given nil When checked Then it is not a unique violation", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUniqueViolation(tt.err))
		})
	}
}

func TestParsePGErrorCode_Unknown(t *testing.T) {
	assert.Equal(t, "unknown", ParsePGErrorCode(errors.New("x")))
}
