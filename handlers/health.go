package handlers

import (
	"net/http"

	"github.com/upb/functions-gateway/app"
	"github.com/upb/functions-gateway/utils"
	"go.uber.org/zap"
)

// HealthCheck returns a simple health check handler
func HealthCheck(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadinessCheck reports whether the gateway can verify tokens and has routes
// mounted. It never fetches the key set itself.
func ReadinessCheck(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ready := true
		checks := map[string]any{}

		// Check key set
		if deps.KeySet == nil {
			ready = false
			checks["jwks"] = "not_initialized"
		} else {
			stats := deps.KeySet.Stats()
			// The fetch error names internal endpoints; it goes to the log only
			if stats.LastError != "" && deps.Logger != nil {
				deps.Logger.Warn("readiness: last JWKS refresh failed",
					zap.String("error", stats.LastError),
					zap.Time("last_attempt", stats.LastAttempt))
			}
			checks["jwks"] = map[string]any{
				"keys":         stats.Keys,
				"fetched_at":   stats.FetchedAt,
				"last_attempt": stats.LastAttempt,
				"healthy":      stats.LastError == "",
			}
			if stats.Keys == 0 {
				ready = false
			}
		}

		// Check functions
		if deps.Functions == nil {
			ready = false
			checks["functions"] = "not_initialized"
		} else {
			checks["functions"] = map[string]int{
				"routes":  deps.Functions.Len(),
				"skipped": len(deps.Functions.Skipped()),
			}
		}

		if !ready {
			_ = utils.WriteServiceUnavailable(w, map[string]any{
				"status": "not_ready",
				"checks": checks,
			})
			return
		}
		_ = utils.WriteJSON(w, http.StatusOK, map[string]any{
			"status": "ready",
			"checks": checks,
		})
	}
}
