package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-labs/anchorage/pkg/api"
)

// Claims are the JWT claims expected on wallet bearer tokens.
type Claims struct {
	jwt.RegisteredClaims
	Account string   `json:"account"`
	Chain   string   `json:"chain"`
	Roles   []string `json:"roles"`
}

// JWTValidator validates HS256 bearer tokens.
type JWTValidator struct {
	secret []byte
}

// NewJWTValidator creates a validator. Returns nil when no secret is
// configured; the middleware then rejects all non-public requests.
func NewJWTValidator(secret string) *JWTValidator {
	if secret == "" {
		return nil
	}
	return &JWTValidator{secret: []byte(secret)}
}

// Validate parses and validates a token string.
func (v *JWTValidator) Validate(tokenStr string) (*Claims, error) {
	if v == nil {
		return nil, fmt.Errorf("validator uninitialized")
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// publicPaths are endpoints that do not require authentication.
var publicPaths = []string{
	"/healthz",
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

// Middleware authenticates requests. Bearer JWTs map to wallet
// principals; a static operator token (checked against its bcrypt hash)
// maps to an operator principal with the admin role. Fails closed when
// neither is configured.
type Middleware struct {
	validator       *JWTValidator
	operatorHash    []byte
	operatorEnabled bool
}

// NewMiddleware builds the auth middleware. operatorTokenHash is the
// bcrypt hash of the static operator token, empty to disable.
func NewMiddleware(validator *JWTValidator, operatorTokenHash string) *Middleware {
	return &Middleware{
		validator:       validator,
		operatorHash:    []byte(operatorTokenHash),
		operatorEnabled: operatorTokenHash != "",
	}
}

// Handler wraps next with authentication.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			api.WriteUnauthorized(w, "")
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			api.WriteUnauthorized(w, "Authorization header must be a Bearer token")
			return
		}

		if m.operatorEnabled &&
			bcrypt.CompareHashAndPassword(m.operatorHash, []byte(token)) == nil {
			ctx := api.WithPrincipal(r.Context(), api.Principal{Roles: []string{"admin"}})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		claims, err := m.validator.Validate(token)
		if err != nil {
			api.WriteUnauthorized(w, "invalid or expired token")
			return
		}
		ctx := api.WithPrincipal(r.Context(), api.Principal{
			Account: claims.Account,
			Chain:   claims.Chain,
			Roles:   claims.Roles,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
