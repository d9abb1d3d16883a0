package app

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/functions-gateway/config"
	"github.com/upb/functions-gateway/functions"
	"go.uber.org/zap/zaptest"
)

const pingLua = `return function(ctx) return { status = "ok" } end`

// newJWKSServer serves a single RSA public key under kid "test-key"
func newJWKSServer(t *testing.T) *httptest.Server {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	key, err := jwk.Import(privateKey.Public())
	require.NoError(t, err)
	require.NoError(t, key.Set(jwk.KeyIDKey, "test-key"))
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(key))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(server.Close)
	return server
}

func writeFunction(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func testConfig(t *testing.T, jwksURL, dir string) *config.Config {
	t.Helper()
	return &config.Config{
		Environment:    "test",
		RequestTimeout: 5 * time.Second,
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			ReadTimeout:     time.Second,
			WriteTimeout:    time.Second,
			ShutdownTimeout: time.Second,
		},
		Functions: config.FunctionsConfig{
			Dir:          dir,
			MountPrefix:  "/functions",
			MaxBodyBytes: 1 << 20,
		},
		Auth: config.AuthConfig{
			JWKSURL:            jwksURL,
			Issuer:             "https://issuer.example.com",
			CacheTTL:           time.Hour,
			MinRefreshInterval: time.Second,
			FetchTimeout:       time.Second,
			MaxFetchAttempts:   1,
		},
		Observability: config.ObservabilityConfig{
			LogLevel:       "debug",
			LogFormat:      "console",
			MetricsEnabled: true,
		},
	}
}

func TestNewDependencies(t *testing.T) {
	t.Run("successful initialization with all components", func(t *testing.T) {
		ctx := context.Background()
		server := newJWKSServer(t)
		dir := t.TempDir()
		writeFunction(t, dir, "ping.lua", pingLua)
		writeFunction(t, dir, "admin/report.lua", pingLua)

		deps, err := NewDependencies(ctx, testConfig(t, server.URL, dir), zaptest.NewLogger(t))
		require.NoError(t, err)
		require.NotNil(t, deps)

		assert.NotNil(t, deps.Config)
		assert.NotNil(t, deps.Logger)
		assert.NotNil(t, deps.Metrics)
		assert.NotNil(t, deps.Verifier)
		assert.NotNil(t, deps.AuthMiddleware)
		assert.Equal(t, "https://issuer.example.com", deps.Verifier.Issuer())

		// Prime loaded the key set eagerly
		assert.Equal(t, 1, deps.KeySet.Stats().Keys)

		require.NotNil(t, deps.Functions)
		assert.Equal(t, []string{"/functions/admin/report", "/functions/ping"}, deps.Functions.Routes())

		assert.NoError(t, deps.Close(ctx))
	})

	t.Run("unreachable JWKS endpoint is not fatal", func(t *testing.T) {
		dir := t.TempDir()
		writeFunction(t, dir, "ping.lua", pingLua)

		deps, err := NewDependencies(context.Background(), testConfig(t, "http://127.0.0.1:1/jwks", dir), zaptest.NewLogger(t))
		require.NoError(t, err)

		stats := deps.KeySet.Stats()
		assert.Equal(t, 0, stats.Keys)
		assert.NotEmpty(t, stats.LastError)
	})

	t.Run("missing functions directory", func(t *testing.T) {
		server := newJWKSServer(t)
		cfg := testConfig(t, server.URL, filepath.Join(t.TempDir(), "missing"))

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Nil(t, deps)
		assert.ErrorIs(t, err, functions.ErrRootNotFound)
		assert.Contains(t, err.Error(), "failed to discover functions")
	})

	t.Run("route conflict is fatal", func(t *testing.T) {
		server := newJWKSServer(t)
		dir := t.TempDir()
		writeFunction(t, dir, "a/b.lua", pingLua)
		writeFunction(t, dir, "a/b.sh", "#!/bin/sh\necho '{}'\n")
		require.NoError(t, os.Chmod(filepath.Join(dir, "a", "b.sh"), 0o755))

		deps, err := NewDependencies(context.Background(), testConfig(t, server.URL, dir), zaptest.NewLogger(t))
		assert.Nil(t, deps)
		assert.ErrorIs(t, err, functions.ErrRouteConflict)
	})

	t.Run("missing JWKS URL", func(t *testing.T) {
		deps, err := NewDependencies(context.Background(), testConfig(t, "", t.TempDir()), zaptest.NewLogger(t))
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize auth")
	})
}

func TestDependenciesMetricsWiring(t *testing.T) {
	server := newJWKSServer(t)
	dir := t.TempDir()
	writeFunction(t, dir, "ping.lua", pingLua)

	deps, err := NewDependencies(context.Background(), testConfig(t, server.URL, dir), zaptest.NewLogger(t))
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(deps.Metrics.Gatherer(),
		"functions_gateway_jwks_refreshes_total",
		"functions_gateway_mounted_routes")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
