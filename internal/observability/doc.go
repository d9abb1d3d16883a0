// Package observability provides structured logging and metrics for the
// functions gateway.
//
// This package implements:
//   - zap loggers configured from LOG_LEVEL and LOG_FORMAT
//   - Prometheus metrics for invocations, authentication failures and JWKS refreshes
//   - The /metrics exposition handler
package observability
