package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Bearer-token auth for a single shared index. A token carries a scope:
// "read" tokens may query, "write" tokens may also mutate the index.
// There are no roles, users or tenants beyond that.

// Token scopes.
const (
	ScopeRead  = "read"
	ScopeWrite = "write"
)

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret   string
	Enabled     bool
	PublicPaths []string
}

// Claims is the token payload: a scope plus the registered subject, which
// also serves as the rate-limit key for authenticated clients.
type Claims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// contextKey is a custom type for context keys
type contextKey string

const claimsContextKey contextKey = "claims"

// Auth builds the bearer-token middleware. Requests to public paths pass
// through; everything else needs a valid token, and mutations additionally
// need the write scope.
func Auth(config AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !config.Enabled {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublic(config.PublicPaths, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := parseBearer(r, config.JWTSecret)
			if err != nil {
				writeJSONError(w, err.Error(), http.StatusUnauthorized)
				return
			}

			if isMutating(r) && claims.Scope != ScopeWrite {
				writeJSONError(w, "write scope required", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// parseBearer extracts and validates the token from the Authorization
// header. Only HMAC-SHA256 tokens are accepted.
func parseBearer(r *http.Request, secret string) (*Claims, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, errMissingToken
	}

	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return nil, errNotBearer
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (interface{}, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil || !token.Valid {
		return nil, errInvalidToken
	}

	if claims.Scope != ScopeRead && claims.Scope != ScopeWrite {
		return nil, errInvalidToken
	}

	return claims, nil
}

type authError string

func (e authError) Error() string { return string(e) }

const (
	errMissingToken authError = "missing authorization header"
	errNotBearer    authError = "authorization header is not a bearer token"
	errInvalidToken authError = "invalid token"
)

// ClaimsFromContext retrieves validated claims from the request context.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*Claims)
	return claims, ok
}

// GenerateToken mints a token for the given subject and scope. Used by
// tests and by operators bootstrapping clients.
func GenerateToken(subject, scope, secret string) (string, error) {
	claims := &Claims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:  "annex",
			Subject: subject,
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
