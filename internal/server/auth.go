// ABOUTME: Bearer-token authentication middleware resolving callers to {role, id} principals.
// ABOUTME: A configured static admin token is compared first and bypasses the identity oracle.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

type principalKey struct{}

// WithPrincipal stores p in ctx for downstream handlers to retrieve.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom retrieves the Principal AuthMiddleware attached to ctx.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

var publicPaths = map[string]bool{
	"/":       true,
	"/health": true,
}

// AuthMiddleware resolves the caller's bearer token to a Principal via
// oracle. If staticAdminToken is non-empty, a bearer token matching it
// (constant-time) resolves to a local admin principal without calling the
// oracle — this is MAIL's single-operator bootstrap path (spec.md §6:
// "Authorization: Bearer <api_key>").
func AuthMiddleware(oracle *IdentityOracle, staticAdminToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			token := bearerToken(r)
			if token == "" {
				unauthorized(w, "missing bearer token")
				return
			}

			if staticAdminToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(staticAdminToken)) == 1 {
				next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), Principal{Role: RoleAdmin, ID: "local"})))
				return
			}

			principal, err := oracle.Resolve(token)
			if err != nil {
				unauthorized(w, "invalid bearer token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimPrefix(auth, prefix)
}

func unauthorized(w http.ResponseWriter, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": reason})
}

// RequireRole rejects requests whose resolved principal isn't one of allowed.
func RequireRole(allowed ...Role) func(http.Handler) http.Handler {
	permitted := make(map[Role]bool, len(allowed))
	for _, r := range allowed {
		permitted[r] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFrom(r.Context())
			if !ok || !permitted[principal.Role] {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "forbidden"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
