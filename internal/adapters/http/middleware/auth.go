package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// contextKey is an unexported type for context keys in this package.
type contextKey string

const tokenFingerprintKey contextKey = "token_fingerprint"

// TokenVerifier checks admin bearer tokens against a bcrypt hash.
// Tokens that verified once are remembered by SHA-256 fingerprint so each
// request does not pay the bcrypt cost.
type TokenVerifier struct {
	hash     []byte
	mu       sync.RWMutex
	verified map[[sha256.Size]byte]struct{}
}

// NewTokenVerifier creates a verifier for hash.
// PRE: hash is a bcrypt hash
func NewTokenVerifier(hash string) *TokenVerifier {
	return &TokenVerifier{
		hash:     []byte(hash),
		verified: make(map[[sha256.Size]byte]struct{}),
	}
}

// Verify reports whether token matches the configured hash.
// POST: a matching token is cached; a non-matching one never is
func (v *TokenVerifier) Verify(token string) bool {
	if token == "" || len(v.hash) == 0 {
		return false
	}
	fp := sha256.Sum256([]byte(token))
	v.mu.RLock()
	_, ok := v.verified[fp]
	v.mu.RUnlock()
	if ok {
		return true
	}
	if bcrypt.CompareHashAndPassword(v.hash, []byte(token)) != nil {
		return false
	}
	v.mu.Lock()
	v.verified[fp] = struct{}{}
	v.mu.Unlock()
	return true
}

// RequireBearer returns middleware that rejects requests without a valid
// "Authorization: Bearer <token>" header.
func RequireBearer(v *TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			token = strings.TrimSpace(token)
			if !found || token == "" {
				unauthorized(w, "missing bearer token")
				return
			}
			if !v.Verify(token) {
				slog.Warn("admin_auth_failed", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
				unauthorized(w, "invalid bearer token")
				return
			}
			fp := sha256.Sum256([]byte(token))
			ctx := context.WithValue(r.Context(), tokenFingerprintKey, fp[:4])
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TokenFingerprint returns a short non-secret prefix of the caller's token hash for logging.
func TokenFingerprint(ctx context.Context) []byte {
	fp, _ := ctx.Value(tokenFingerprintKey).([]byte)
	return fp
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="loyalty-admin"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
