package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// UserID extracts the authenticated user from the X-User-ID header set by
// the edge gateway. Requests without a valid UUID are rejected before they
// reach a handler; the dispatcher itself performs no authentication.
func UserID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid := r.Header.Get("X-User-ID")
		if _, err := uuid.Parse(uid); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized","message":"missing or invalid user identity"}`))
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, uid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}
