// File: internal/formserver/auth.go
package formserver

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenIssuer is stamped on bearer tokens minted for form registration.
const TokenIssuer = "formbridge"

// MintBearer signs a short-lived HS256 token that RequireBearer accepts.
func MintBearer(secret string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("bearer secret is empty")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    TokenIssuer,
		Subject:   "form-registration",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func verifyBearer(secret, token string) error {
	_, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithExpirationRequired(),
	)
	return err
}

// RequireBearer rejects requests without a valid bearer token. An empty
// secret disables the check.
func (h *Handlers) RequireBearer(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(raw, "Bearer ")
			if !ok || token == "" {
				h.respondWithError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			if err := verifyBearer(secret, token); err != nil {
				h.respondWithError(w, http.StatusUnauthorized, fmt.Sprintf("invalid bearer token: %v", err))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
