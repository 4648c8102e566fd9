package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jiwoo/sms-sequencer/internal/logger"
)

// Pinger verifies connectivity to a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthzHandler handles GET /healthz. It reports liveness only.
func HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler handles GET /readyz. Readiness requires the repository to be
// reachable; the provider check is reported but does not fail readiness, a
// degraded provider still lets webhook receipts drain in-flight entries.
func ReadyzHandler(db Pinger, providerCheck func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := map[string]string{"database": "ok", "provider": "ok"}

		if db != nil {
			if err := db.Ping(ctx); err != nil {
				log.Error().Err(err).Msg("readiness check: database unreachable")
				checks["database"] = err.Error()
				respondJSON(w, http.StatusServiceUnavailable, map[string]any{
					"status": "unavailable",
					"checks": checks,
				})
				return
			}
		}

		if providerCheck != nil {
			if err := providerCheck(ctx); err != nil {
				log.Warn().Err(err).Msg("readiness check: provider degraded")
				checks["provider"] = err.Error()
			}
		}

		respondJSON(w, http.StatusOK, map[string]any{
			"status": "ready",
			"checks": checks,
		})
	}
}
