package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wasteroute/internal/datagen"
	"wasteroute/internal/export"
	"wasteroute/internal/logger"
	"wasteroute/internal/model"
	"wasteroute/internal/opt"
	"wasteroute/internal/planner"
	"wasteroute/internal/store"
	"wasteroute/internal/webhooks"
)

// GenerateHandler handles POST /v1/points/generate
func (s *Server) GenerateHandler(w http.ResponseWriter, r *http.Request) {
	var req model.GenerateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if errs := s.validate.Struct(req); errs != nil {
		s.writeValidation(w, r, errs)
		return
	}
	pts, err := s.Planner.Generate(datagen.Request{City: req.City, Count: req.Count, CategoryMix: req.CategoryMix, Seed: req.Seed})
	if err != nil {
		s.writePlanError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"city": pts[0].City, "count": len(pts), "points": pts})
}

// OptimizeHandler handles POST /v1/optimize
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
	var req model.OptimizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if errs := s.validate.Struct(req); errs != nil {
		s.writeValidation(w, r, errs)
		return
	}
	if err := validateOptimizeRequest(&req); err != nil {
		writeTypedProblem(w, http.StatusBadRequest, "invalid-request", "Invalid optimize request", err.Error(), r.URL.Path)
		return
	}
	preq, err := toPlannerRequest(req)
	if err != nil {
		writeTypedProblem(w, http.StatusBadRequest, "invalid-request", "Invalid optimize request", err.Error(), r.URL.Path)
		return
	}
	if preq.RunID == "" {
		preq.RunID = uuid.NewString()
	} else if existing, err := s.Store.GetRun(r.Context(), preq.RunID); err == nil && existing != nil {
		writeTypedProblem(w, http.StatusConflict, "run-exists", "Run already exists", preq.RunID, r.URL.Path)
		return
	}

	res, err := s.Planner.Plan(r.Context(), preq)
	if err != nil {
		s.finishFailedRun(r.Context(), preq, err)
		s.writePlanError(w, r, err)
		return
	}
	// persistence and notifications must not be cut short by a client disconnect
	bg := context.WithoutCancel(r.Context())
	if err := s.Store.SaveRun(bg, res); err != nil {
		s.Log.Error("save run", zap.String("run_id", res.RunID), zap.Error(err))
		writeProblem(w, http.StatusInternalServerError, "Save run failed", err.Error(), r.URL.Path)
		return
	}
	s.Broker.Publish(res.RunID, RunEvent{Type: EventRunCompleted, Data: map[string]any{
		"runId":           res.RunID,
		"status":          res.Status,
		"totalDistanceKm": res.TotalDistanceKm,
		"routes":          len(res.Routes),
	}})
	s.emit(bg, webhooks.EventForStatus(res.Status), res.Summary())
	w.Header().Set("Location", "/v1/runs/"+res.RunID)
	writeJSON(w, http.StatusOK, res)
}

// finishFailedRun tells listeners about a run that produced no plan.
func (s *Server) finishFailedRun(ctx context.Context, req planner.Request, err error) {
	status := "Failed"
	var ie *planner.InfeasibleError
	if errors.As(err, &ie) {
		status = string(model.StatusInfeasible)
	}
	s.Broker.Publish(req.RunID, RunEvent{Type: EventRunCompleted, Data: map[string]any{
		"runId":  req.RunID,
		"status": status,
		"error":  err.Error(),
		"kind":   planner.Classify(err),
	}})
	if ie != nil {
		s.emit(context.WithoutCancel(ctx), webhooks.EventPlanInfeasible, map[string]any{
			"runId":  req.RunID,
			"city":   req.City,
			"zoneId": ie.ZoneID,
			"reason": ie.Reason,
		})
	}
}

func (s *Server) emit(ctx context.Context, eventType string, data any) {
	n, err := s.Pub.Emit(ctx, eventType, data)
	if err != nil {
		s.Log.Warn("webhook emit", zap.String("event", eventType), zap.Error(err))
		return
	}
	if n > 0 {
		s.Log.Debug("webhooks queued", zap.String("event", eventType), zap.Int("deliveries", n))
	}
}

// writePlanError maps planner failures onto problem documents.
func (s *Server) writePlanError(w http.ResponseWriter, r *http.Request, err error) {
	kind := planner.Classify(err)
	if planner.IsUserError(err) {
		s.Log.Info("plan rejected", zap.String("kind", kind), zap.Error(err), zap.String("request_id", logger.RequestID(r.Context())))
	} else {
		s.Log.Error("plan failed", zap.Error(err), zap.String("request_id", logger.RequestID(r.Context())))
	}
	switch kind {
	case "invalid_coordinate":
		writeTypedProblem(w, http.StatusBadRequest, "invalid-coordinate", "Invalid coordinate", err.Error(), r.URL.Path)
	case "invalid_request":
		writeTypedProblem(w, http.StatusBadRequest, "invalid-request", "Invalid request", err.Error(), r.URL.Path)
	case "unknown_city":
		writeTypedProblem(w, http.StatusBadRequest, "unknown-city", "Unknown city", err.Error(), r.URL.Path)
	case "insufficient_points":
		writeTypedProblem(w, http.StatusUnprocessableEntity, "insufficient-points", "Insufficient points", err.Error(), r.URL.Path)
	case "infeasible":
		writeTypedProblem(w, http.StatusUnprocessableEntity, "infeasible", "Infeasible", err.Error(), r.URL.Path)
	default:
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			writeProblem(w, http.StatusServiceUnavailable, "Request cancelled", err.Error(), r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Plan failed", err.Error(), r.URL.Path)
	}
}

func (s *Server) writeValidation(w http.ResponseWriter, r *http.Request, errs []string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(http.StatusBadRequest)
	writeJSONBody(w, Problem{
		Type:     problemBase + "validation",
		Title:    "Validation failed",
		Status:   http.StatusBadRequest,
		Instance: r.URL.Path,
		Errors:   errs,
	})
}

// RunsHandler handles GET /v1/runs
func (s *Server) RunsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, next, err := s.Store.ListRuns(r.Context(), q.Get("city"), q.Get("cursor"), queryLimit(r))
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List runs failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// RunHandler handles GET /v1/runs/:id
func (s *Server) RunHandler(w http.ResponseWriter, r *http.Request) {
	res, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ExportHandler handles GET /v1/runs/:id/export?format=csv|xlsx|geojson
func (s *Server) ExportHandler(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeTypedProblem(w, http.StatusBadRequest, "invalid-request", "Unknown export format", err.Error(), r.URL.Path)
		return
	}
	res, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="routes-%s.%s"`, res.RunID, format.Ext()))
	if err := export.Write(w, format, res); err != nil {
		s.Log.Error("export", zap.String("run_id", res.RunID), zap.String("format", string(format)), zap.Error(err))
	}
}

func (s *Server) loadRun(w http.ResponseWriter, r *http.Request) (*model.PlanResult, bool) {
	id := param(r, "id")
	res, err := s.Store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeTypedProblem(w, http.StatusNotFound, "unknown-run", "Run not found", id, r.URL.Path)
		return nil, false
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Load run failed", err.Error(), r.URL.Path)
		return nil, false
	}
	return res, true
}

// CitiesHandler handles GET /v1/cities
func (s *Server) CitiesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": s.Planner.Catalog().Cities()})
}

// OptimizerConfigHandler returns default optimizer configuration
func (s *Server) OptimizerConfigHandler(w http.ResponseWriter, r *http.Request) {
	road := s.Planner.Road()
	budget := s.Cfg.SolveBudget
	if budget <= 0 {
		budget = opt.DefaultTimeBudget
	}
	writeJSON(w, http.StatusOK, map[string]any{"defaults": map[string]any{
		"algorithm":        opt.AlgoALNS,
		"algorithms":       []string{opt.AlgoALNS, opt.AlgoGreedy},
		"clusterers":       []string{"kmeans", "sweep"},
		"timeBudgetMs":     budget.Milliseconds(),
		"maxIterations":    opt.DefaultMaxIterations,
		"cooling":          opt.DefaultCooling,
		"removalWeights":   []float64{1, 1},
		"insertionWeights": []float64{1, 1},
		"roadFactor":       road.Factor,
		"speedKph":         road.SpeedKph,
		"maxRouteKm":       s.Cfg.MaxRouteKm,
		"parallelism":      s.Cfg.PlanParallelism,
	}})
}

// CreateSubscriptionHandler handles POST /v1/subscriptions (admin)
func (s *Server) CreateSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	var req model.Subscription
	if err := decodeJSON(w, r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if errs := s.validate.Struct(req); errs != nil {
		s.writeValidation(w, r, errs)
		return
	}
	for _, e := range req.Events {
		if !slices.Contains(webhooks.EventTypes, e) {
			writeTypedProblem(w, http.StatusBadRequest, "invalid-request", "Unknown event type", e, r.URL.Path)
			return
		}
	}
	sub, err := s.Store.CreateSubscription(r.Context(), req)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// ListSubscriptionsHandler handles GET /v1/subscriptions (admin)
func (s *Server) ListSubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	items, next, err := s.Store.ListSubscriptions(r.Context(), r.URL.Query().Get("cursor"), queryLimit(r))
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List subscriptions failed", err.Error(), r.URL.Path)
		return
	}
	for i := range items {
		items[i].Secret = ""
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// DeleteSubscriptionHandler handles DELETE /v1/subscriptions/:id (admin)
func (s *Server) DeleteSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	err := s.Store.DeleteSubscription(r.Context(), param(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Subscription not found", "", r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Delete subscription failed", err.Error(), r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// WebhookDeliveriesHandler handles GET /v1/admin/webhook-deliveries (admin)
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, next, err := s.Store.ListWebhookDeliveries(r.Context(), q.Get("status"), q.Get("cursor"), queryLimit(r))
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List deliveries failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// WebhookDeliveryRetryHandler handles POST /v1/admin/webhook-deliveries/:id/retry (admin)
func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
	err := s.Store.RetryWebhookDelivery(r.Context(), param(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Delivery not found", "", r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Retry failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": store.DeliveryPending})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
		return
	}
	type pinger interface {
		Ping(ctx context.Context) error
	}
	if p, ok := s.Broker.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func queryLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return limit
}
