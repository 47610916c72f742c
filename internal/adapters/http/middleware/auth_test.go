package middleware

import (
	"crypto/sha256"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testVerifier(t *testing.T, token string) *TokenVerifier {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.MinCost)
	require.NoError(t, err)
	return NewTokenVerifier(string(hash))
}

func TestRequireBearer(t *testing.T) {
	v := testVerifier(t, "s3cret")
	var fingerprint []byte
	h := RequireBearer(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fingerprint = TokenFingerprint(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer s3cret", http.StatusNoContent},
		{"valid again from cache", "Bearer s3cret", http.StatusNoContent},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"missing", "", http.StatusUnauthorized},
		{"basic scheme", "Basic s3cret", http.StatusUnauthorized},
		{"empty bearer", "Bearer ", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/admin/sync/stats", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			assert.Equal(t, tt.want, rr.Code)
			if tt.want == http.StatusUnauthorized {
				assert.Contains(t, rr.Header().Get("WWW-Authenticate"), "Bearer")
			}
		})
	}
	assert.Len(t, fingerprint, 4)
}

func TestRequireBearer_FingerprintMatchesTrimmedToken(t *testing.T) {
	v := testVerifier(t, "s3cret")
	var fingerprints [][]byte
	h := RequireBearer(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fingerprints = append(fingerprints, TokenFingerprint(r.Context()))
	}))

	for _, header := range []string{"Bearer s3cret", "Bearer   s3cret  "} {
		req := httptest.NewRequest("GET", "/admin/sync/stats", nil)
		req.Header.Set("Authorization", header)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code, "header %q", header)
	}

	want := sha256.Sum256([]byte("s3cret"))
	require.Len(t, fingerprints, 2)
	assert.Equal(t, want[:4], fingerprints[0])
	assert.Equal(t, fingerprints[0], fingerprints[1])
}

func TestTokenVerifier_EmptyHashRejectsAll(t *testing.T) {
	assert.False(t, NewTokenVerifier("").Verify("anything"))
}

func TestRateLimit(t *testing.T) {
	limiter := NewRateLimiter(t.Context(), 2, time.Hour)
	h := RateLimit(limiter)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/admin/sync/stats", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	other := httptest.NewRequest("GET", "/admin/sync/stats", nil)
	other.RemoteAddr = "10.0.0.2:5555"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, other)
	assert.Equal(t, http.StatusOK, rr.Code)
}
