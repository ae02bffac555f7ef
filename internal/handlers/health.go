package handlers

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health reports liveness along with database reachability.
func Health(db Pinger, logger log.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			logger.WithError(err).Warn("Health check failed")
			writeJSON(w, http.StatusServiceUnavailable, envelope{"status": "unavailable", "database": "down"})
			return
		}
		writeJSON(w, http.StatusOK, envelope{"status": "ok", "database": "up"})
	}
}
