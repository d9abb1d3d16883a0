package auth

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/stretchr/testify/require"
)

const testIssuer = "https://issuer.example.com"

// signingKey is a private key paired with the kid and algorithm it is published under
type signingKey struct {
	kid    string
	alg    string
	method jwt.SigningMethod
	signer crypto.Signer
}

func newRSAKey(t *testing.T, kid string) signingKey {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return signingKey{kid: kid, alg: "RS256", method: jwt.SigningMethodRS256, signer: privateKey}
}

func newECKey(t *testing.T, kid string) signingKey {
	t.Helper()
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return signingKey{kid: kid, alg: "ES256", method: jwt.SigningMethodES256, signer: privateKey}
}

// sign creates a compact JWT with the given claims
func (k signingKey) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(k.method, claims)
	if k.kid != "" {
		token.Header["kid"] = k.kid
	}
	tokenString, err := token.SignedString(k.signer)
	require.NoError(t, err)
	return tokenString
}

// validClaims returns claims that pass every check against testIssuer
func validClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"sub": "user-123",
		"iss": testIssuer,
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
}

// jwksServer is a mock JWKS endpoint whose published keys and health can be
// changed while a test runs.
type jwksServer struct {
	*httptest.Server

	hits atomic.Int32

	mu     sync.Mutex
	keys   []signingKey
	status int
	delay  time.Duration
}

func newJWKSServer(t *testing.T, keys ...signingKey) *jwksServer {
	t.Helper()
	s := &jwksServer{keys: keys, status: http.StatusOK}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)

		s.mu.Lock()
		keys := append([]signingKey(nil), s.keys...)
		status := s.status
		delay := s.delay
		s.mu.Unlock()

		if delay > 0 {
			time.Sleep(delay)
		}
		if status != http.StatusOK {
			http.Error(w, "unavailable", status)
			return
		}

		set := jwk.NewSet()
		for _, k := range keys {
			key, err := jwk.Import(k.signer.Public())
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			_ = key.Set(jwk.KeyIDKey, k.kid)
			_ = key.Set(jwk.AlgorithmKey, k.alg)
			_ = key.Set(jwk.KeyUsageKey, "sig")
			_ = set.AddKey(key)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *jwksServer) setKeys(keys ...signingKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = keys
}

func (s *jwksServer) setStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

func (s *jwksServer) setDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

func (s *jwksServer) requests() int {
	return int(s.hits.Load())
}

// newTestKeySet builds a KeySet with fast retries pointed at the server
func newTestKeySet(t *testing.T, server *jwksServer, mutate ...func(*KeySetConfig)) *KeySet {
	t.Helper()
	config := KeySetConfig{
		URL:              server.URL,
		MaxFetchAttempts: 1,
		InitialBackoff:   time.Millisecond,
		FetchTimeout:     2 * time.Second,
	}
	for _, m := range mutate {
		m(&config)
	}
	keys, err := NewKeySet(config, nil)
	require.NoError(t, err)
	return keys
}
