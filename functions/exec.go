package functions

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

const (
	// execWaitDelay bounds how long a cancelled child may hold its pipes open
	execWaitDelay = 2 * time.Second

	// maxStderrLog bounds the stderr excerpt written to the log
	maxStderrLog = 4 << 10

	// maxExecOutput bounds the stdout a child may produce
	maxExecOutput = 1 << 20
)

// ExecLoader loads executable .sh modules. The script receives the request
// and claims as JSON on stdin and answers on stdout.
type ExecLoader struct{}

// NewExecLoader creates a new ExecLoader
func NewExecLoader() *ExecLoader {
	return &ExecLoader{}
}

// Kind implements Loader
func (l *ExecLoader) Kind() string {
	return "exec"
}

// Extensions implements Loader
func (l *ExecLoader) Extensions() []string {
	return []string{".sh"}
}

// Load implements Loader
func (l *ExecLoader) Load(source string) (*Module, error) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", source, err)
	}
	if info.Mode().Perm()&0o111 == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotExecutable, source)
	}

	abs, err := filepath.Abs(source)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", source, err)
	}

	return &Module{
		Handler:    &execHandler{path: abs, maxOutput: maxExecOutput},
		Resolution: ResolutionExec,
	}, nil
}

// execInput is written to the child's stdin
type execInput struct {
	Request *requestPayload `json:"request"`
	User    map[string]any  `json:"user"`
}

type execHandler struct {
	path      string
	maxOutput int
}

// cappedBuffer fails writes past limit. The failed write closes the child's
// stdout pipe, which stops a runaway script.
type cappedBuffer struct {
	buf      bytes.Buffer
	limit    int
	exceeded bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if b.buf.Len()+len(p) > b.limit {
		b.exceeded = true
		return 0, ErrOutputTooLarge
	}
	return b.buf.Write(p)
}

func (h *execHandler) Invoke(inv *Invocation) (any, error) {
	payload, err := buildPayload(inv)
	if err != nil {
		return nil, err
	}

	input, err := json.Marshal(execInput{Request: payload, User: inv.Claims})
	if err != nil {
		return nil, fmt.Errorf("failed to encode exec input: %w", err)
	}

	stdout := &cappedBuffer{limit: h.maxOutput}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(inv.Context(), h.path)
	cmd.Dir = filepath.Dir(h.path)
	cmd.Env = append(os.Environ(),
		"FUNCTION_ROUTE="+inv.Route,
		"FUNCTION_INVOCATION_ID="+inv.ID,
	)
	cmd.Stdin = bytes.NewReader(input)
	cmd.Stdout = stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = execWaitDelay

	runErr := cmd.Run()

	if stderr.Len() > 0 && inv.Logger != nil {
		excerpt := stderr.Bytes()
		if len(excerpt) > maxStderrLog {
			excerpt = excerpt[:maxStderrLog]
		}
		inv.Logger.Warn("function stderr", zap.ByteString("stderr", excerpt))
	}

	if stdout.exceeded {
		return nil, fmt.Errorf("exec handler %s: %w (limit %d bytes)", h.path, ErrOutputTooLarge, h.maxOutput)
	}
	if runErr != nil {
		return nil, fmt.Errorf("exec handler %s: %w", h.path, runErr)
	}

	out := bytes.TrimSpace(stdout.buf.Bytes())
	if len(out) == 0 {
		return nil, nil
	}
	if json.Valid(out) {
		return json.RawMessage(out), nil
	}
	return stdout.buf.String(), nil
}
