package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-labs/anchorage/pkg/api"
)

const testSecret = "test-signing-secret"

func signToken(t *testing.T, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func walletClaims(exp time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Account: "GA1",
		Chain:   "stellar",
		Roles:   []string{"wallet"},
	}
}

func protectedHandler(captured *api.Principal) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, ok := api.GetPrincipal(r.Context()); ok {
			*captured = p
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestJWTTokenMapsToWalletPrincipal(t *testing.T) {
	var got api.Principal
	mw := NewMiddleware(NewJWTValidator(testSecret), "")
	handler := mw.Handler(protectedHandler(&got))

	req := httptest.NewRequest(http.MethodGet, "/v1/events/stellar/GA1", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, walletClaims(time.Now().Add(time.Hour))))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "GA1", got.Account)
	assert.Equal(t, "stellar", got.Chain)
	assert.True(t, got.HasRole("wallet"))
	assert.False(t, got.HasRole("admin"))
}

func TestExpiredTokenRejected(t *testing.T) {
	var got api.Principal
	mw := NewMiddleware(NewJWTValidator(testSecret), "")
	handler := mw.Handler(protectedHandler(&got))

	req := httptest.NewRequest(http.MethodGet, "/v1/rules", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, walletClaims(time.Now().Add(-time.Hour))))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestTamperedTokenRejected(t *testing.T) {
	var got api.Principal
	mw := NewMiddleware(NewJWTValidator(testSecret), "")
	handler := mw.Handler(protectedHandler(&got))

	token := signToken(t, walletClaims(time.Now().Add(time.Hour)))
	req := httptest.NewRequest(http.MethodGet, "/v1/rules", nil)
	req.Header.Set("Authorization", "Bearer "+token+"x")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMissingAuthorizationRejected(t *testing.T) {
	var got api.Principal
	mw := NewMiddleware(NewJWTValidator(testSecret), "")
	handler := mw.Handler(protectedHandler(&got))

	req := httptest.NewRequest(http.MethodGet, "/v1/rules", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/rules", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOperatorTokenMapsToAdmin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("op-token"), bcrypt.MinCost)
	require.NoError(t, err)

	var got api.Principal
	mw := NewMiddleware(NewJWTValidator(testSecret), string(hash))
	handler := mw.Handler(protectedHandler(&got))

	req := httptest.NewRequest(http.MethodPost, "/v1/rules", nil)
	req.Header.Set("Authorization", "Bearer op-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, got.HasRole("admin"))
	assert.Empty(t, got.Account)
}

func TestHealthzIsPublic(t *testing.T) {
	var got api.Principal
	mw := NewMiddleware(nil, "")
	handler := mw.Handler(protectedHandler(&got))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDAssigned(t *testing.T) {
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "caller-id")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "caller-id", rec.Header().Get("X-Request-ID"))
}

func TestCORSPreflight(t *testing.T) {
	handler := CORSMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/v1/locations", nil)
	req.Header.Set("Origin", "https://wallet.example")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://wallet.example", rec.Header().Get("Access-Control-Allow-Origin"))

	restricted := CORSMiddleware([]string{"https://allowed.example"})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://other.example")
	rec = httptest.NewRecorder()
	restricted.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
