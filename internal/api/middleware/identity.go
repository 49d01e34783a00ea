package middleware

import (
	"context"
	"net/http"

	"github.com/spellhq/spellgate/internal/api/response"
)

type contextKey string

const userIDKey contextKey = "user_id"

// RequireIdentity extracts the caller's user ID from the X-User-ID header
// set by the upstream identity service. The core trusts whatever identifier
// it is handed and performs no verification of its own.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			response.WriteError(w, http.StatusUnauthorized, "missing user identity")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// WithUserID returns a context carrying the given user ID, for callers
// outside the HTTP chain.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserID returns the authenticated user ID from the request context, or ""
// outside the RequireIdentity chain.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}
