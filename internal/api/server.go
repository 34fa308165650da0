// Package api implements the HTTP surface of the route planning service.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/justinas/alice"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"wasteroute/internal/auth"
	"wasteroute/internal/config"
	"wasteroute/internal/datagen"
	"wasteroute/internal/geo"
	"wasteroute/internal/metrics"
	"wasteroute/internal/planner"
	"wasteroute/internal/store"
	"wasteroute/internal/webhooks"
)

type Server struct {
	Store   store.Store
	Pub     *webhooks.Publisher
	Auth    *auth.Verifier
	Broker  EventBroker
	Planner *planner.Planner
	Log     *zap.Logger
	Cfg     config.Config

	limiter  *rate.Limiter
	validate *requestValidator
	started  time.Time
}

// NewServer wires the service from cfg. Without DATABASE_URL the in-memory store is used;
// without REDIS_URL run events stay in process.
func NewServer(cfg config.Config, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var st store.Store
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		st = store.NewMemory()
	} else {
		pg, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if cfg.DBMigrate {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			err := pg.Migrate(ctx)
			cancel()
			if err != nil {
				return nil, err
			}
		}
		st = pg
	}

	var broker EventBroker = NewBroker()
	if cfg.RedisURL != "" {
		rb, err := NewRedisBroker(cfg.RedisURL, log)
		if err != nil {
			log.Warn("redis broker unavailable, using in-memory broker", zap.Error(err))
		} else {
			broker = rb
		}
	}

	verifier, err := auth.NewVerifier(cfg.AuthMode, cfg.AuthHMACSecret)
	if err != nil {
		return nil, err
	}

	catalog, err := datagen.LoadCatalog(cfg.CitiesFile)
	if err != nil {
		return nil, err
	}
	gen := datagen.NewGenerator(catalog)
	if cfg.MaxPoints > 0 {
		gen.MaxPoints = cfg.MaxPoints
	}
	road := geo.DefaultRoadModel()
	if cfg.RoadFactor > 0 {
		road.Factor = cfg.RoadFactor
	}
	if cfg.SpeedKph > 0 {
		road.SpeedKph = cfg.SpeedKph
	}
	pl := planner.New(gen, planner.Config{
		Road:        road,
		TimeBudget:  cfg.SolveBudget,
		MaxRouteKm:  cfg.MaxRouteKm,
		Parallelism: cfg.PlanParallelism,
	}, log)

	metrics.RegisterDefault()
	s := &Server{
		Store:    st,
		Pub:      webhooks.NewPublisher(st),
		Auth:     verifier,
		Broker:   broker,
		Planner:  pl,
		Log:      log,
		Cfg:      cfg,
		validate: newRequestValidator(),
		started:  time.Now(),
	}
	if cfg.RateRPS > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateRPS), burst)
	}
	pl.WithObserver(planner.ObserverFunc(s.publishPhase))
	return s, nil
}

// Close releases the store and broker connections.
func (s *Server) Close() error {
	var errs []error
	if c, ok := s.Store.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if c, ok := s.Broker.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store, s.Cfg.WebhookMaxAttempts, s.Log)
}

// Router builds the routed handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	router := httprouter.New()
	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	})
	router.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, http.StatusMethodNotAllowed, "Method Not Allowed", r.Method, r.URL.Path)
	})

	handle := func(method, pattern string, h http.HandlerFunc, extra ...alice.Constructor) {
		router.Handler(method, pattern, instrument(pattern, alice.New(extra...).ThenFunc(h)))
	}

	handle(http.MethodPost, "/v1/points/generate", s.GenerateHandler)
	handle(http.MethodPost, "/v1/optimize", s.OptimizeHandler, rateLimit(s.limiter))
	handle(http.MethodGet, "/v1/optimizer/config", s.OptimizerConfigHandler)
	handle(http.MethodGet, "/v1/cities", s.CitiesHandler)

	handle(http.MethodGet, "/v1/runs", s.RunsHandler)
	handle(http.MethodGet, "/v1/runs/:id", s.RunHandler)
	handle(http.MethodGet, "/v1/runs/:id/export", s.ExportHandler)
	handle(http.MethodGet, "/v1/runs/:id/events", s.RunEventsHandler)
	handle(http.MethodGet, "/v1/runs/:id/ws", s.RunWSHandler)

	handle(http.MethodPost, "/v1/subscriptions", requireAdmin(s.CreateSubscriptionHandler))
	handle(http.MethodGet, "/v1/subscriptions", requireAdmin(s.ListSubscriptionsHandler))
	handle(http.MethodDelete, "/v1/subscriptions/:id", requireAdmin(s.DeleteSubscriptionHandler))
	handle(http.MethodGet, "/v1/admin/webhook-deliveries", requireAdmin(s.WebhookDeliveriesHandler))
	handle(http.MethodPost, "/v1/admin/webhook-deliveries/:id/retry", requireAdmin(s.WebhookDeliveryRetryHandler))

	handle(http.MethodGet, "/healthz", s.HealthHandler)
	handle(http.MethodGet, "/readyz", s.ReadyHandler)
	handle(http.MethodGet, "/v1/debug", requireAdmin(s.DebugJSON))
	handle(http.MethodGet, "/openapi.yaml", s.OpenAPIHandler)
	handle(http.MethodGet, "/openapi.json", s.OpenAPIJSONHandler)
	handle(http.MethodGet, "/docs", s.DocsHandler)
	router.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	origins := s.Cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", headerRequestID},
		ExposedHeaders: []string{headerRequestID, "Retry-After"},
		MaxAge:         300,
	})
	return alice.New(corsHandler.Handler, requestID, s.recoverPanic, s.accessLog, s.authenticate).Then(router)
}

func param(r *http.Request, name string) string {
	return httprouter.ParamsFromContext(r.Context()).ByName(name)
}
