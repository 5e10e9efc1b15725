package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/libraryhub/backend/internal/models"
)

type contextKey string

const identityKey contextKey = "identity"

// IdentityResolver turns a bearer token into the identity behind it
type IdentityResolver interface {
	CurrentIdentity(ctx context.Context, token string) models.Identity
}

// Identify resolves the caller once per request. Requests without a usable
// token continue as anonymous; services decide what anonymous may do.
func Identify(resolver IdentityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := models.Anonymous
			if token := BearerToken(r); token != "" {
				identity = resolver.CurrentIdentity(r.Context(), token)
			}

			ctx := context.WithValue(r.Context(), identityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer" header
func BearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

// IdentityFrom returns the identity stored by Identify
func IdentityFrom(ctx context.Context) models.Identity {
	identity, ok := ctx.Value(identityKey).(models.Identity)
	if !ok {
		return models.Anonymous
	}
	return identity
}

func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}
