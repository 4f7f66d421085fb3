package api

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/deepshield/deepshield-api/models"
)

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports liveness and, when db is set, database reachability
func HealthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := models.HealthCheckResponse{Alive: true}
		status := http.StatusOK
		if db != nil {
			ctx, cancel := WithQueryTimeout(r.Context())
			defer cancel()
			res.Database = "up"
			if err := db.Ping(ctx); err != nil {
				zap.S().Warnw("database ping failed", "error", err)
				res.Database = "down"
				status = http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(res)
	}
}
