package api

import (
	"net/http"
	"time"

	"wasteroute/internal/buildinfo"
)

// DebugJSON reports build info and the non-secret parts of the running config.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	cfg := s.Cfg
	writeJSON(w, http.StatusOK, map[string]any{
		"build":  buildinfo.Info(),
		"time":   time.Now().UTC().Format(time.RFC3339),
		"uptime": time.Since(s.started).Round(time.Second).String(),
		"config": map[string]any{
			"PORT":                 cfg.Port,
			"LOG_LEVEL":            cfg.LogLevel,
			"AUTH_MODE":            cfg.AuthMode,
			"ALLOW_ORIGINS":        cfg.AllowOrigins,
			"RATE_RPS":             cfg.RateRPS,
			"RATE_BURST":           cfg.RateBurst,
			"ROAD_FACTOR":          s.Planner.Road().Factor,
			"SPEED_KPH":            s.Planner.Road().SpeedKph,
			"SOLVE_BUDGET":         cfg.SolveBudget.String(),
			"MAX_ROUTE_KM":         cfg.MaxRouteKm,
			"MAX_POINTS":           cfg.MaxPoints,
			"PLAN_PARALLELISM":     cfg.PlanParallelism,
			"WEBHOOK_MAX_ATTEMPTS": cfg.WebhookMaxAttempts,
			"HAS_DATABASE_URL":     cfg.DatabaseURL != "",
			"HAS_REDIS_URL":        cfg.RedisURL != "",
		},
	})
}
