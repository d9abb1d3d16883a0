package functions

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// DefaultMaxBodyBytes bounds request bodies when no limit is configured
const DefaultMaxBodyBytes int64 = 1 << 20

// Authenticator wraps a handler so it only runs for verified requests
type Authenticator interface {
	RequireAuth(next http.Handler) http.Handler
}

// MountOptions configures Mount
type MountOptions struct {
	// Logger receives one line per mounted route and handler failures
	Logger *zap.Logger

	// MaxBodyBytes limits request bodies. Zero uses DefaultMaxBodyBytes and
	// a negative value disables the limit.
	MaxBodyBytes int64

	// Recorder observes invocations (optional)
	Recorder InvocationRecorder
}

// Mount registers one POST route per table entry, each behind authn. No other
// methods are registered.
func Mount(r chi.Router, table *Table, authn Authenticator, opts MountOptions) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxBody := opts.MaxBodyBytes
	if maxBody == 0 {
		maxBody = DefaultMaxBodyBytes
	}

	for _, entry := range table.Entries() {
		r.With(authn.RequireAuth).Method(http.MethodPost, entry.Route, &dispatcher{
			entry:    entry,
			logger:   logger,
			maxBody:  maxBody,
			recorder: opts.Recorder,
		})

		logger.Info("mounted function",
			zap.String("route", entry.Route),
			zap.String("source", entry.Source),
			zap.String("kind", entry.Kind),
			zap.String("resolution", entry.Resolution))
	}
}
