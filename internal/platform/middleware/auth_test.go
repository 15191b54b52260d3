package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"platewatch/internal/platform/logger"
)

const testSigningKey = "test-signing-key"

func signToken(t *testing.T, subject string, key string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return token
}

func runOptionalAuth(t *testing.T, authHeader string) (*httptest.ResponseRecorder, string) {
	t.Helper()

	var gotUserID string
	handler := OptionalAuth(NewHMACValidator(testSigningKey), logger.New())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotUserID = GetUserID(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, gotUserID
}

func TestOptionalAuthAnonymousPassesThrough(t *testing.T) {
	rec, userID := runOptionalAuth(t, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, userID)
}

func TestOptionalAuthValidToken(t *testing.T) {
	rec, userID := runOptionalAuth(t, "Bearer "+signToken(t, "user-42", testSigningKey))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-42", userID)
}

func TestOptionalAuthRejectsWrongScheme(t *testing.T) {
	rec, _ := runOptionalAuth(t, "Basic dXNlcjpwYXNz")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOptionalAuthRejectsBadSignature(t *testing.T) {
	rec, _ := runOptionalAuth(t, "Bearer "+signToken(t, "user-42", "some-other-key"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "unauthorized")
}

func TestOptionalAuthRejectsMissingSubject(t *testing.T) {
	rec, _ := runOptionalAuth(t, "Bearer "+signToken(t, "", testSigningKey))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOptionalAuthRejectsExpiredToken(t *testing.T) {
	claims := jwt.RegisteredClaims{
		Subject:   "user-42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSigningKey))
	require.NoError(t, err)

	rec, _ := runOptionalAuth(t, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
