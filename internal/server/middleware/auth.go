package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/sluicedb/sluice/internal/access"
	"github.com/sluicedb/sluice/internal/model"
	"github.com/sluicedb/sluice/internal/session"
)

type contextKeyAuth string

// IdentityKey is the context key for the authenticated identity.
const IdentityKey contextKeyAuth = "identity"

// Authenticate returns an HTTP middleware that resolves the Bearer session
// token from the Authorization header. An expired session is treated exactly
// like a missing one. On success the Identity is attached to the request
// context.
func Authenticate(sessions *session.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") {
				writeAuthError(w, http.StatusUnauthorized, "Authentication required")
				return
			}

			identity, err := sessions.Resolve(strings.TrimPrefix(h, "Bearer "))
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "Session expired or invalid")
				return
			}

			ctx := context.WithValue(r.Context(), IdentityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireCapability returns an HTTP middleware enforcing a capability on the
// authenticated identity. Every mutating route goes through this same gate;
// there are no per-operation allow-lists. Must be used after Authenticate.
func RequireCapability(c access.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := access.Require(GetIdentity(r.Context()), c); err != nil {
				writeAuthError(w, http.StatusForbidden, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetIdentity extracts the authenticated identity from the context. Returns
// nil if the request is unauthenticated.
func GetIdentity(ctx context.Context) *model.Identity {
	if id, ok := ctx.Value(IdentityKey).(*model.Identity); ok {
		return id
	}
	return nil
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Manually construct JSON to avoid an import cycle with the handler
	// package.
	w.Write([]byte(`{"error":{"code":` + statusString(status) + `,"message":"` + message + `"}}`))
}

func statusString(code int) string {
	switch code {
	case http.StatusUnauthorized:
		return "401"
	case http.StatusForbidden:
		return "403"
	default:
		return "500"
	}
}
