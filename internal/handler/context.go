// internal/handler/context.go
package handler

import (
	"context"

	"wallet-topup-service/pkg/jwtutil"
)

type contextKey string

const (
	ContextUserID contextKey = "userID"
	ContextRole   contextKey = "role"
)

// WithClaims stores the authenticated caller on ctx.
func WithClaims(ctx context.Context, claims *jwtutil.Claims) context.Context {
	ctx = context.WithValue(ctx, ContextUserID, claims.UserID)
	return context.WithValue(ctx, ContextRole, claims.Role)
}

func GetUserID(ctx context.Context) (string, bool) {
	val, ok := ctx.Value(ContextUserID).(string)
	return val, ok && val != ""
}

func GetRole(ctx context.Context) string {
	val, _ := ctx.Value(ContextRole).(string)
	return val
}
