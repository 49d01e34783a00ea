package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/spellhq/spellgate/internal/api/handler"
	mw "github.com/spellhq/spellgate/internal/api/middleware"
	"github.com/spellhq/spellgate/internal/billing"
	"github.com/spellhq/spellgate/internal/config"
	"github.com/spellhq/spellgate/internal/core"
)

type Server struct {
	router   chi.Router
	logger   zerolog.Logger
	services *core.Services
	pool     *pgxpool.Pool
	cfg      *config.Config
}

func NewServer(logger zerolog.Logger, pool *pgxpool.Pool, cfg *config.Config) *Server {
	source := billing.NewClient(cfg.BillingAPIURL, cfg.BillingAPIKey)
	services := core.NewServices(pool, cfg, source, logger)

	s := &Server{
		router:   chi.NewRouter(),
		logger:   logger,
		services: services,
		pool:     pool,
		cfg:      cfg,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
}

func (s *Server) setupRoutes() {
	// Prometheus metrics endpoint
	s.router.Handle("/metrics", promhttp.Handler())

	// Health check endpoints
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	// Billing provider intake. Authenticated by HMAC signature, not by
	// caller identity.
	webhook := handler.NewWebhook(s.services.Webhook, s.logger)
	s.router.Post("/webhooks/billing", webhook.Receive)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Token endpoints authenticate with the key secret or refresh
		// token itself.
		token := handler.NewToken(s.services.Token)
		r.Post("/tokens", token.Issue)
		r.Post("/tokens/refresh", token.Refresh)

		// Decision point, called by spell runtimes with an access token.
		spell := handler.NewSpell(s.services.Decision, s.services.Audit, s.services.Ledger, s.logger)
		r.Post("/spell/check", spell.Check)

		// Management surface, called on behalf of a signed-in developer.
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireIdentity)

			key := handler.NewDeveloperKey(s.services.DeveloperKey)
			r.Get("/developer-keys", key.List)
			r.Post("/developer-keys", key.Create)
			r.Get("/developer-keys/{keyId}", key.Get)
			r.Post("/developer-keys/{keyId}/rotate", key.Rotate)
			r.Post("/developer-keys/{keyId}/revoke", key.Revoke)
			r.Get("/developer-keys/{keyId}/scopes", key.ListScopes)
			r.Post("/developer-keys/{keyId}/scopes", key.ChangeScope)

			scope := handler.NewScope(s.services.Scope)
			r.Get("/scopes", scope.List)
			r.Post("/scopes", scope.Create)

			registry := handler.NewSpellRegistry(s.services.Spell)
			r.Get("/spells", registry.List)
			r.Post("/spells", registry.Create)
			r.Put("/spells/{id}/status", registry.UpdateStatus)

			entitlement := handler.NewEntitlement(s.services.Entitlement)
			r.Post("/entitlements", entitlement.Change)
			r.Post("/entitlements/reconcile", entitlement.Reconcile)

			r.Get("/spell/audit", spell.Audit)
			r.Get("/spell/ledger", spell.Ledger)
		})
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if err := s.pool.Ping(ctx); err != nil {
		checks["db"] = err.Error()
		healthy = false
	} else {
		checks["db"] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(checks)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
