package functions

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/functions-gateway/auth"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("exec handlers need a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecHandler(t *testing.T) {
	requireShell(t)

	root := t.TempDir()
	writeFile(t, root, "echo.sh", "#!/bin/sh\ncat\n", 0o755)
	writeFile(t, root, "env.sh", "#!/bin/sh\nprintf '{\"route\":\"%s\",\"id_set\":%s}' \"$FUNCTION_ROUTE\" \"$( [ -n \"$FUNCTION_INVOCATION_ID\" ] && echo true || echo false )\"\n", 0o755)
	writeFile(t, root, "text.sh", "#!/bin/sh\necho 'hello from sh'\n", 0o755)
	writeFile(t, root, "silent.sh", "#!/bin/sh\ncat > /dev/null\n", 0o755)
	writeFile(t, root, "fail.sh", "#!/bin/sh\necho 'oops' >&2\nexit 3\n", 0o755)
	writeFile(t, root, "cwd.sh", "#!/bin/sh\n[ -f ./cwd.sh ] && echo '\"here\"'\n", 0o755)
	writeFile(t, root, "flood.sh", "#!/bin/sh\ncat > /dev/null\nexec yes\n", 0o755)

	server, table := newTestServer(t, root, MountOptions{})
	require.Equal(t, 7, table.Len())

	t.Run("receives request and claims on stdin", func(t *testing.T) {
		status, contentType, body := post(t, server.URL+"/functions/echo?x=1", goodToken, "application/json", `{"n":2}`)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "application/json", contentType)

		var got struct {
			Request struct {
				Method string            `json:"method"`
				Route  string            `json:"route"`
				ID     string            `json:"id"`
				Query  map[string]string `json:"query"`
				Body   map[string]any    `json:"body"`
			} `json:"request"`
			User map[string]any `json:"user"`
		}
		require.NoError(t, json.Unmarshal([]byte(body), &got))
		assert.Equal(t, "POST", got.Request.Method)
		assert.Equal(t, "/functions/echo", got.Request.Route)
		assert.NotEmpty(t, got.Request.ID)
		assert.Equal(t, "1", got.Request.Query["x"])
		assert.Equal(t, float64(2), got.Request.Body["n"])
		assert.Equal(t, "user-123", got.User["sub"])
	})

	t.Run("environment carries route and invocation id", func(t *testing.T) {
		status, _, body := post(t, server.URL+"/functions/env", goodToken, "", "")
		require.Equal(t, http.StatusOK, status)
		assert.JSONEq(t, `{"route":"/functions/env","id_set":true}`, body)
	})

	t.Run("text output", func(t *testing.T) {
		status, contentType, body := post(t, server.URL+"/functions/text", goodToken, "", "")
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "text/plain; charset=utf-8", contentType)
		assert.Equal(t, "hello from sh\n", body)
	})

	t.Run("no output", func(t *testing.T) {
		status, _, body := post(t, server.URL+"/functions/silent", goodToken, "", "")
		assert.Equal(t, http.StatusNoContent, status)
		assert.Empty(t, body)
	})

	t.Run("non-zero exit", func(t *testing.T) {
		status, _, body := post(t, server.URL+"/functions/fail", goodToken, "", "")
		assert.Equal(t, http.StatusInternalServerError, status)
		assert.JSONEq(t, `{"error":"Internal Server Error"}`, body)
	})

	t.Run("unbounded output is cut off", func(t *testing.T) {
		status, _, body := post(t, server.URL+"/functions/flood", goodToken, "", "")
		assert.Equal(t, http.StatusInternalServerError, status)
		assert.JSONEq(t, `{"error":"Internal Server Error"}`, body)
	})

	t.Run("runs in the module directory", func(t *testing.T) {
		status, _, body := post(t, server.URL+"/functions/cwd", goodToken, "", "")
		assert.Equal(t, http.StatusOK, status)
		assert.JSONEq(t, `"here"`, body)
	})
}

func TestExecOutputLimit(t *testing.T) {
	requireShell(t)

	root := t.TempDir()
	small := writeFile(t, root, "small.sh", "#!/bin/sh\ncat > /dev/null\nprintf 'abcdefghij'\n", 0o755)
	invocation := func() *Invocation {
		return &Invocation{
			Request:  httptest.NewRequest(http.MethodPost, "/functions/small", nil),
			Response: newResponseSink(httptest.NewRecorder()),
			Claims:   auth.Claims{"sub": "u"},
			Route:    "/functions/small",
			ID:       "inv-1",
		}
	}

	t.Run("output within the limit", func(t *testing.T) {
		h := &execHandler{path: small, maxOutput: 10}
		result, err := h.Invoke(invocation())
		require.NoError(t, err)
		assert.Equal(t, "abcdefghij", result)
	})

	t.Run("output past the limit", func(t *testing.T) {
		h := &execHandler{path: small, maxOutput: 9}
		_, err := h.Invoke(invocation())
		assert.ErrorIs(t, err, ErrOutputTooLarge)
	})

	t.Run("capped buffer rejects the overflowing write", func(t *testing.T) {
		b := &cappedBuffer{limit: 4}
		n, err := b.Write([]byte("abc"))
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		_, err = b.Write([]byte("de"))
		assert.ErrorIs(t, err, ErrOutputTooLarge)
		assert.True(t, b.exceeded)
		assert.Equal(t, "abc", b.buf.String())
	})
}

func TestExecLoader(t *testing.T) {
	root := t.TempDir()

	t.Run("requires execute bit", func(t *testing.T) {
		path := writeFile(t, root, "plain.sh", "#!/bin/sh\n", 0o644)
		_, err := NewExecLoader().Load(path)
		assert.ErrorIs(t, err, ErrNotExecutable)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := NewExecLoader().Load(root + "/missing.sh")
		assert.Error(t, err)
	})

	t.Run("resolution is exec", func(t *testing.T) {
		path := writeFile(t, root, "run.sh", "#!/bin/sh\n", 0o755)
		mod, err := NewExecLoader().Load(path)
		require.NoError(t, err)
		assert.Equal(t, ResolutionExec, mod.Resolution)
	})
}
