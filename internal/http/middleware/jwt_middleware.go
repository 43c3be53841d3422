package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/grantdelgado/unveil-sub008/internal/domain"
	"github.com/grantdelgado/unveil-sub008/internal/http/response"
	"github.com/grantdelgado/unveil-sub008/pkg/auth"
)

type ctxKey string

const CtxCaller ctxKey = "caller"

// RequireJWT authenticates the request and stores the caller identity in the
// request context.
func RequireJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(authz, "Bearer ") {
				response.Unauthorized(w, "missing authorization header")
				return
			}
			claims, err := auth.Parse(strings.TrimPrefix(authz, "Bearer "), secret)
			if err != nil {
				response.WriteError(w, http.StatusUnauthorized, "invalid or expired token", response.CodeInvalidToken)
				return
			}
			caller := domain.Caller{UserID: claims.UserID, Phone: claims.Phone}
			ctx := context.WithValue(r.Context(), CtxCaller, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Caller returns the authenticated caller, or the zero value when the route
// is unauthenticated.
func Caller(r *http.Request) domain.Caller {
	v := r.Context().Value(CtxCaller)
	if v == nil {
		return domain.Caller{}
	}
	return v.(domain.Caller)
}

// RequireCronSecret guards operational endpoints invoked by the external
// time trigger.
func RequireCronSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" || r.Header.Get("X-Cron-Secret") != secret {
				response.Unauthorized(w, "invalid cron secret")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
