// internal/router/middleware.go
package router

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"wallet-topup-service/internal/handler"
	"wallet-topup-service/pkg/jwtutil"
	"wallet-topup-service/pkg/xerrors"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// LoggerMiddleware logs HTTP requests
func LoggerMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("user_agent", r.UserAgent()))
		})
	}
}

func extractToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return ""
}

// RequireAuth verifies the bearer token and, when roles are given, the
// caller's role. Admins pass every role check; a token without a role
// counts as a user.
func RequireAuth(verifier *jwtutil.Verifier, logger *zap.Logger, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				handler.SendError(w, http.StatusUnauthorized, "missing bearer token", xerrors.ErrUnauthorized)
				return
			}
			claims, err := verifier.ParseAndValidate(token)
			if err != nil {
				logger.Debug("token rejected", zap.Error(err))
				handler.SendError(w, http.StatusUnauthorized, "invalid token", xerrors.ErrUnauthorized)
				return
			}
			role := claims.Role
			if role == "" {
				role = jwtutil.RoleUser
			}
			if len(roles) > 0 && !claims.IsAdmin() && !contains(roles, role) {
				logger.Warn("forbidden",
					zap.String("user_id", claims.UserID),
					zap.String("role", claims.Role),
					zap.String("path", r.URL.Path))
				handler.SendError(w, http.StatusForbidden, "insufficient role", xerrors.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(handler.WithClaims(r.Context(), claims)))
		})
	}
}

// RateLimiter is satisfied by *cache.CacheService.
type RateLimiter interface {
	RateLimit(ctx context.Context, key string, maxRequests int, window time.Duration) (bool, error)
}

// RateLimitByIP applies a fixed window per client IP. It fails open when
// the limiter is unavailable.
func RateLimitByIP(limiter RateLimiter, limit int, window time.Duration, keyPrefix string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil || limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyPrefix + ":ip:" + clientIP(r)
			allowed, err := limiter.RateLimit(r.Context(), key, limit, window)
			if err != nil {
				logger.Warn("rate limiter unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				handler.SendError(w, http.StatusTooManyRequests, "Too Many Requests", xerrors.ErrRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP relies on middleware.RealIP having rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func contains(list []string, item string) bool {
	for _, v := range list {
		if v == item {
			return true
		}
	}
	return false
}
