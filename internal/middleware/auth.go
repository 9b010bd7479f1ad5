package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/onnwee/swipestack/internal/auth"
)

// TokenValidator validates an access token and returns its claims.
// *auth.JWTService satisfies it.
type TokenValidator interface {
	ValidateAccessToken(token string) (*auth.Claims, error)
}

// RequireAuth rejects requests without a valid bearer access token and
// stores the token subject as the user id. Browsers cannot set headers on
// websocket upgrades, so the token may also arrive as the access_token
// query parameter on GET requests.
func RequireAuth(v TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="swipestack"`)
				writeError(w, r, http.StatusUnauthorized, "auth_failed", "Missing bearer token")
				return
			}
			claims, err := v.ValidateAccessToken(token)
			if err != nil {
				msg := "Invalid token"
				if errors.Is(err, auth.ErrExpiredToken) {
					msg = "Token has expired"
				}
				w.Header().Set("WWW-Authenticate", `Bearer realm="swipestack", error="invalid_token"`)
				writeError(w, r, http.StatusUnauthorized, "auth_failed", msg)
				return
			}
			ctx := SetUserID(r.Context(), claims.UserID())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if r.Method == http.MethodGet {
		return r.URL.Query().Get("access_token")
	}
	return ""
}
