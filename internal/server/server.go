package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"nmkrmint/internal/config"
	"nmkrmint/internal/hmacauth"
	"nmkrmint/internal/idempotency"
	"nmkrmint/internal/nmkr"
)

type Server struct {
	cfg        *config.AppConfig
	client     nmkr.Client
	store      idempotency.Store
	hmac       *hmacauth.Verifier
	limiter    *rate.Limiter
	runs       *runRegistry
	inflight   sync.Map // idempotency key -> *workflow.Run
	metrics    *metricsRegistry
	router     chi.Router
	httpServer *http.Server
	dbHealthFn func(context.Context) error
}

func NewServer(cfg *config.AppConfig, client nmkr.Client, store idempotency.Store) *Server {
	limit := rate.Inf
	if cfg.Service.RateLimit > 0 {
		limit = rate.Limit(cfg.Service.RateLimit)
	}

	s := &Server{
		cfg:    cfg,
		client: client,
		store:  store,
		hmac: &hmacauth.Verifier{
			Secret:          cfg.Service.HMACSecret,
			MaxSkew:         cfg.Service.HMACClockSkew,
			MaxBodyBytes:    cfg.Service.MaxUploadBytes,
			SignatureHeader: cfg.Service.HMACSignatureHeader,
			TimestampHeader: cfg.Service.HMACTimestampHeader,
		},
		limiter: rate.NewLimiter(limit, max(cfg.Service.RateBurst, 1)),
		runs:    newRunRegistry(cfg.Service.RunRetention),
		metrics: newMetricsRegistry(),
	}

	if checker, ok := store.(interface{ Ping(context.Context) error }); ok {
		s.dbHealthFn = checker.Ping
	}

	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Service.HTTPPort),
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Service.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", idempotencyHeader, runIDHeader, s.hmac.SignatureHeaderName(), s.hmac.TimestampHeaderName()},
		ExposedHeaders: []string{"Location"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		// Stateless pass-throughs to NMKR, one per workflow step.
		r.HandleFunc("/create-project", s.handleCreateProject)
		r.HandleFunc("/upload-token", s.handleUploadToken)
		r.HandleFunc("/create-payment", s.handleCreatePayment)

		r.Route("/v1", func(r chi.Router) {
			r.With(s.rateLimit, s.hmac.Middleware).Post("/mints", s.handleMint)
			r.Get("/mints/{runID}", s.handleGetRun)
			r.Method(http.MethodGet, "/metrics", s.metrics.handler())
			r.Get("/health", s.handleHealth)
		})
	})
	return r
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Start() error {
	log.Printf("[server] API listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			s.metrics.incSubmission("rate_limited")
			http.Error(w, "too many mint submissions, try again shortly", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overallHealthy := true

	dbInfo := struct {
		Connected bool   `json:"connected"`
		Error     string `json:"error,omitempty"`
	}{Connected: true}

	if s.dbHealthFn != nil {
		dbCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.dbHealthFn(dbCtx); err != nil {
			dbInfo.Connected = false
			dbInfo.Error = err.Error()
			overallHealthy = false
		}
	}

	mode := "live"
	if _, fake := s.client.(nmkr.FakeClient); fake {
		mode = "fake"
	}

	status := "healthy"
	if !overallHealthy {
		status = "degraded"
	}

	resp := struct {
		Status    string `json:"status"`
		NMKR      string `json:"nmkr"`
		Database  any    `json:"database"`
		RunsKnown int    `json:"runs_known"`
	}{
		Status:    status,
		NMKR:      mode,
		Database:  dbInfo,
		RunsKnown: s.runs.len(),
	}

	w.Header().Set("Content-Type", "application/json")
	if !overallHealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
