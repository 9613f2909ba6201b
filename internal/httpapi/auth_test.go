package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestAuthenticator(t *testing.T, password string) *Authenticator {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return NewAuthenticator("test-secret", string(hash), time.Hour)
}

func TestLoginIssuesVerifiableToken(t *testing.T) {
	auth := newTestAuthenticator(t, "letmein")

	token, expiresAt, err := auth.Login("letmein")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := auth.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, RoleStaff, claims.Role)
	assert.Equal(t, tokenIssuer, claims.Issuer)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	auth := newTestAuthenticator(t, "letmein")
	_, _, err := auth.Login("guess")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerifyRejectsExpiredAndForeignTokens(t *testing.T) {
	auth := newTestAuthenticator(t, "letmein")
	auth.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _, err := auth.Issue(RoleStaff)
	require.NoError(t, err)
	auth.now = time.Now

	_, err = auth.Verify(expired)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	other := NewAuthenticator("other-secret", "", time.Hour)
	foreign, _, err := other.Issue(RoleStaff)
	require.NoError(t, err)
	_, err = auth.Verify(foreign)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Role: RoleStaff})
	none, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = auth.Verify(none)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestMiddlewareGuardsStaffRoutes(t *testing.T) {
	auth := newTestAuthenticator(t, "letmein")
	var reached bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		_, ok := claimsFromContext(r.Context())
		assert.True(t, ok)
		w.WriteHeader(http.StatusOK)
	})
	handler := auth.Middleware(next)

	req := httptest.NewRequest(http.MethodPost, "/api/patients", strings.NewReader("{}"))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.False(t, reached)

	req = httptest.NewRequest(http.MethodPost, "/api/patients", strings.NewReader("{}"))
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	token, _, err := auth.Login("letmein")
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/api/patients", strings.NewReader("{}"))
	req.Header.Set("Authorization", "Bearer "+token)
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, reached)
}

func TestIsPublicEndpoint(t *testing.T) {
	cases := []struct {
		method string
		path   string
		public bool
	}{
		{http.MethodGet, "/healthz", true},
		{http.MethodGet, "/api/queue/board", true},
		{http.MethodGet, "/api/queue/patients/abc/status", true},
		{http.MethodGet, "/api/schedule/resolve", true},
		{http.MethodGet, "/api/schedule", true},
		{http.MethodPut, "/api/schedule", false},
		{http.MethodPost, "/api/staff/login", true},
		{http.MethodGet, "/realtime/info", true},
		{http.MethodPost, "/api/patients", false},
		{http.MethodPost, "/api/queue/advance", false},
		{http.MethodGet, "/api/patients/abc/events", false},
		{http.MethodOptions, "/api/patients", true},
	}
	for _, tt := range cases {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		assert.Equal(t, tt.public, isPublicEndpoint(req), "%s %s", tt.method, tt.path)
	}
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "abc", bearerToken("bearer abc"))
	assert.Empty(t, bearerToken("Basic abc"))
	assert.Empty(t, bearerToken("Bearer"))
	assert.Empty(t, bearerToken(""))
}
