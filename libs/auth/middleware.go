package auth

import (
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/counselbook/libs/httpx"
)

const (
	HeaderUserID = "X-User-Id"
	HeaderRole   = "X-Role"
)

// Authenticate resolves the caller. With a secret, a bearer token is
// required; otherwise the gateway-supplied identity headers are trusted.
// Requests without any identity pass through anonymously.
func Authenticate(secret string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var p Principal
			if secret != "" {
				authHeader := r.Header.Get("Authorization")
				if authHeader == "" {
					next.ServeHTTP(w, r)
					return
				}
				if !strings.HasPrefix(authHeader, "Bearer ") {
					httpx.WriteError(w, http.StatusUnauthorized, "missing bearer token")
					return
				}
				claims, err := ParseAndVerifyHS256(strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer ")), secret)
				if err != nil {
					httpx.WriteError(w, http.StatusUnauthorized, "invalid token")
					return
				}
				role, err := ParseRole(claims.Role)
				if err != nil {
					httpx.WriteError(w, http.StatusUnauthorized, "invalid token role")
					return
				}
				p = Principal{UserID: claims.Subject, Role: role}
			} else {
				userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
				if userID == "" {
					next.ServeHTTP(w, r)
					return
				}
				role, err := ParseRole(r.Header.Get(HeaderRole))
				if err != nil {
					httpx.WriteError(w, http.StatusUnauthorized, "invalid role header")
					return
				}
				p = Principal{UserID: userID, Role: role}
			}
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
		})
	}
}

// RequireRole rejects anonymous callers with 401 and callers outside roles
// with 403.
func RequireRole(next http.Handler, roles ...Role) http.Handler {
	allowed := make(map[Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			httpx.WriteError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if _, ok := allowed[p.Role]; !ok {
			httpx.WriteError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}
