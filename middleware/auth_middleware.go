package middleware

import (
	"context"
	"net/http"

	"github.com/upb/functions-gateway/auth"
	"github.com/upb/functions-gateway/utils"
	"go.uber.org/zap"
)

// TokenVerifier defines the interface for verifying bearer credentials
type TokenVerifier interface {
	// Verify checks the raw Authorization header value and returns the claims
	Verify(ctx context.Context, authorization string) (auth.Claims, error)
}

// FailureRecorder counts rejected requests by failure kind
type FailureRecorder interface {
	RecordAuthFailure(reason string)
}

// AuthOption configures an AuthMiddleware
type AuthOption func(*AuthMiddleware)

// WithFailureRecorder reports every rejection to the given recorder
func WithFailureRecorder(recorder FailureRecorder) AuthOption {
	return func(m *AuthMiddleware) {
		m.recorder = recorder
	}
}

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	verifier TokenVerifier
	logger   *zap.Logger
	recorder FailureRecorder
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(verifier TokenVerifier, logger *zap.Logger, opts ...AuthOption) *AuthMiddleware {
	m := &AuthMiddleware{
		verifier: verifier,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RequireAuth is a middleware that requires a valid bearer token. Every
// failure produces the same 401 response; the reason is only logged.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		claims, err := m.verifier.Verify(ctx, r.Header.Get("Authorization"))
		if err != nil {
			reason := auth.Kind(err)
			m.logger.Warn("token verification failed",
				zap.String("request_id", requestID),
				zap.String("path", r.URL.Path),
				zap.String("reason", reason),
				zap.Error(err))
			if m.recorder != nil {
				m.recorder.RecordAuthFailure(reason)
			}
			_ = utils.WriteUnauthorized(w)
			return
		}

		m.logger.Debug("authentication successful",
			zap.String("request_id", requestID),
			zap.String("sub", claims.Subject()))

		next.ServeHTTP(w, r.WithContext(WithClaims(ctx, claims)))
	})
}
