package routes

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/paylynx-policy/app"
	"github.com/upb/paylynx-policy/handlers"
	"github.com/upb/paylynx-policy/middleware"
)

const requestTimeout = 30 * time.Second

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(middleware.PropagateRequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(requestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	health := newHealthHandler(deps)
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	policyHandler := newPolicyHandler(deps)

	r.Route("/api/v1/policy", func(r chi.Router) {
		r.Get("/info", policyHandler.HandleGetInfo)

		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Post("/check", policyHandler.HandleCheckPayment)
			r.Get("/limits", policyHandler.HandleGetLimits)
			r.Get("/settings", policyHandler.HandleGetSettings)
			r.Put("/settings", policyHandler.HandleUpdateSettings)
			r.Get("/decisions", policyHandler.HandleListDecisions)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	return r
}

func newPolicyHandler(deps *app.Dependencies) *handlers.PolicyHandler {
	var (
		history handlers.DecisionHistory
		auditor handlers.SettingsAuditor
	)
	if deps.Decisions != nil {
		history = deps.Decisions
	}
	if deps.Audit != nil {
		auditor = deps.Audit
	}
	return handlers.NewPolicyHandler(deps.Engine, deps.SettingsProvider, history, auditor, deps.Logger)
}

func newHealthHandler(deps *app.Dependencies) *handlers.HealthHandler {
	var db *sql.DB
	if deps.DB != nil {
		db = deps.DB.DB
	}
	h := handlers.NewHealthHandler(db, deps.Logger)

	if deps.Audit != nil {
		h.WithCheck("audit", func(context.Context) error {
			if !deps.Audit.GetStats().Started {
				return errors.New("audit service not running")
			}
			return nil
		})
	}
	return h
}
