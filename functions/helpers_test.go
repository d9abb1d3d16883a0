package functions

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/upb/functions-gateway/auth"
	"github.com/upb/functions-gateway/middleware"
	"go.uber.org/zap"
)

const goodToken = "Bearer good-token"

// verifierFunc adapts a function to middleware.TokenVerifier
type verifierFunc func(ctx context.Context, authorization string) (auth.Claims, error)

func (f verifierFunc) Verify(ctx context.Context, authorization string) (auth.Claims, error) {
	return f(ctx, authorization)
}

// testAuth accepts goodToken and rejects everything else
func testAuth() *middleware.AuthMiddleware {
	return middleware.NewAuthMiddleware(verifierFunc(func(_ context.Context, authorization string) (auth.Claims, error) {
		if authorization != goodToken {
			return nil, auth.ErrSignatureInvalid
		}
		return auth.Claims{"sub": "user-123", "role": "admin"}, nil
	}), zap.NewNop())
}

// writeFile creates a file under dir, making parent directories
func writeFile(t *testing.T, dir, rel, content string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), mode))
	return path
}

// newTestServer discovers root and serves it behind testAuth
func newTestServer(t *testing.T, root string, opts MountOptions) (*httptest.Server, *Table) {
	t.Helper()
	table, err := Discover(root, DiscoverOptions{})
	require.NoError(t, err)
	return serveTable(t, table, opts), table
}

func serveTable(t *testing.T, table *Table, opts MountOptions) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	Mount(r, table, testAuth(), opts)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server
}

// post sends a POST request and returns status, content type and body
func post(t *testing.T, url, authorization, contentType, body string) (int, string, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, resp.Header.Get("Content-Type"), string(data)
}

// staticTable builds a table of Go handlers
func staticTable(t *testing.T, handlers map[string]HandlerFunc) *Table {
	t.Helper()
	var entries []Entry
	for route, h := range handlers {
		entries = append(entries, Entry{
			Route:      route,
			Source:     "test" + route,
			Kind:       "go",
			Resolution: ResolutionDefault,
			Handler:    h,
		})
	}
	table, err := NewTable(entries)
	require.NoError(t, err)
	return table
}
