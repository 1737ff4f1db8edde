package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey struct{}

// Claims identifies the caller; the subject is the owner id.
type Claims struct {
	jwt.RegisteredClaims
}

var errNoOwner = errors.New("missing owner")

// Authenticator resolves the owner of each request. With a secret it
// requires a bearer HS256 token; without one it trusts X-User-ID, which
// is only meant for local development.
func Authenticator(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			owner, err := ownerFromRequest(r, secret)
			if err != nil {
				respondError(w, http.StatusUnauthorized, "unauthorized: "+err.Error())
				return
			}
			ctx := context.WithValue(r.Context(), ctxKey{}, owner)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func ownerFromRequest(r *http.Request, secret []byte) (string, error) {
	if len(secret) == 0 {
		owner := strings.TrimSpace(r.Header.Get("X-User-ID"))
		if owner == "" {
			return "", errNoOwner
		}
		return owner, nil
	}

	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || raw == "" {
		return "", errors.New("missing bearer token")
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errNoOwner
	}
	return claims.Subject, nil
}

// OwnerFromContext returns the owner set by Authenticator.
func OwnerFromContext(ctx context.Context) string {
	owner, _ := ctx.Value(ctxKey{}).(string)
	return owner
}

// IssueToken signs a token for owner, valid for ttl.
func IssueToken(secret []byte, owner string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   owner,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		Issuer:    "meetscribe",
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
