package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizdeck/quizdeck/internal/apperrors"
	"github.com/quizdeck/quizdeck/internal/audit"
	"github.com/quizdeck/quizdeck/internal/auth"
	"github.com/quizdeck/quizdeck/internal/completions"
	"github.com/quizdeck/quizdeck/internal/config"
	"github.com/quizdeck/quizdeck/internal/generator"
	"github.com/quizdeck/quizdeck/internal/orgs"
	"github.com/quizdeck/quizdeck/internal/quizzes"
	"github.com/quizdeck/quizdeck/internal/stats"
)

// NewRouter creates and configures the Chi router with all middleware and routes
func NewRouter(pool *pgxpool.Pool, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	isProduction := !cfg.IsDev()

	r.Use(middleware.RealIP)
	r.Use(apperrors.RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.BaseURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(auth.AuthMiddleware(cfg.JWTSecret))

	auditor := audit.NewWriter(pool)
	genClient := generator.NewClient(cfg.GeneratorURL, cfg.GeneratorTimeoutMS)
	restoreTTL := time.Duration(cfg.RestoreCodeTTLM) * time.Minute

	// Health check routes (no authentication required)
	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", handleReadyz(pool))

	// API routes - Authentication
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(CSRFMiddleware(isProduction))

		r.Get("/csrf", auth.HandleCSRFToken(isProduction))

		r.With(AuthRateLimitMiddleware()).Post("/signup", auth.HandleSignup(pool, auditor, cfg.JWTSecret, cfg.SessionDays, isProduction))
		r.With(AuthRateLimitMiddleware()).Post("/login", auth.HandleLogin(pool, auditor, cfg.JWTSecret, cfg.SessionDays, isProduction))
		r.Post("/refresh", auth.HandleRefresh(pool, cfg.JWTSecret, cfg.SessionDays, isProduction))
		r.With(AuthRateLimitMiddleware()).Post("/forgot-password", auth.HandleForgotPassword(pool, restoreTTL, cfg.IsDev()))
		r.With(AuthRateLimitMiddleware()).Post("/reset-password", auth.HandleResetPassword(pool, auditor))

		r.With(auth.RequireAuth).Post("/logout", auth.HandleLogout(pool))
	})

	// API routes - Organizations
	r.Route("/api/v1/orgs", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(CSRFMiddleware(isProduction))
		r.Use(auth.RequireAuth)

		r.Post("/", orgs.HandleCreate(pool, auditor))
		r.Get("/", orgs.HandleList(pool))
		r.Get("/{org_id}", orgs.HandleGet(pool))
		r.Put("/{org_id}", orgs.HandleUpdate(pool))
		r.Delete("/{org_id}", orgs.HandleDelete(pool, auditor))

		r.Get("/{org_id}/members", orgs.HandleListMembers(pool))
		r.Post("/{org_id}/members", orgs.HandleAddMember(pool, auditor))
		r.Put("/{org_id}/members/approvement", orgs.HandleSetApprovement(pool, auditor))
		r.Delete("/{org_id}/members/{user_id}", orgs.HandleRemoveMember(pool, auditor))

		r.Get("/{org_id}/audit", orgs.HandleListAudit(pool))

		r.Post("/{org_id}/tests", quizzes.HandleCreate(pool, auditor, genClient))
		r.Get("/{org_id}/tests", quizzes.HandleListForOrg(pool))
		r.Delete("/{org_id}/tests/{test_id}", quizzes.HandleDelete(pool, auditor))
	})

	// API routes - Tests
	r.Route("/api/v1/tests", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(CSRFMiddleware(isProduction))
		r.Use(auth.RequireAuth)

		r.Get("/", quizzes.HandleListAuthored(pool))
		r.Get("/{test_id}", quizzes.HandleGet(pool))
		r.Patch("/{test_id}", quizzes.HandlePatch(pool))

		r.Post("/{test_id}/questions", quizzes.HandleAddQuestion(pool))
		r.Delete("/{test_id}/questions/{question_id}", quizzes.HandleRemoveQuestion(pool))

		r.Post("/{test_id}/complete", completions.HandleComplete(pool, auditor))
		r.Get("/{test_id}/completion", completions.HandleGetForTest(pool))
	})

	// API routes - Completions
	r.Route("/api/v1/completions", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(auth.RequireAuth)

		r.Get("/", completions.HandleList(pool))
	})

	// API routes - Stats
	r.Route("/api/v1/stats", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(auth.RequireAuth)

		r.Get("/tests/{test_id}", stats.HandleForTest(pool))
		r.Get("/me", stats.HandleForMe(pool))
		r.Get("/orgs/{org_id}", stats.HandleForOrg(pool))
		r.Get("/created-orgs", stats.HandleForCreatedOrgs(pool))
	})

	return r
}

// handleHealthz returns a simple liveness check
func handleHealthz(w http.ResponseWriter, r *http.Request) {
	apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleReadyz returns a readiness check that includes database connectivity
func handleReadyz(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			apperrors.WriteServiceUnavailable(w, r, "Database connection failed")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
			"status": "ready",
			"db":     "ok",
		})
	}
}
