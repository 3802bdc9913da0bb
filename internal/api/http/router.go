package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	auth "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/exam"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
	"github.com/mind-engage/mindengage-quiz/internal/users"
)

type Pinger interface {
	PingContext(ctx context.Context) error
}

type RouterDeps struct {
	Log   *slog.Logger
	Auth  *auth.AuthService
	Tests *exam.Service
	Users *users.Repo
	DB    Pinger

	CORSOrigins     []string
	EnableLocalAuth bool
	DebugErrors     bool
}

func NewRouter(d RouterDeps) http.Handler {
	ew := errorWriter{log: d.Log, debug: d.DebugErrors}
	th := newTestHandlers(d.Tests, ew)
	uh := newUserHandlers(d.Users, ew)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, RequestLogger(d.Log), middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := d.DB.PingContext(ctx); err != nil {
			d.Log.Warn("readiness check failed", "err", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api", func(api chi.Router) {
		if d.EnableLocalAuth {
			api.Post("/auth/login", auth.LoginHandler(d.Auth, d.Users, d.Log))
		}

		// Protected API (JWT → stored role → RBAC)
		api.Group(func(pr chi.Router) {
			pr.Use(auth.JWTMiddleware(d.Auth), auth.AttachRoleFromDB(d.Users, d.Log))

			pr.With(rbac.Require(rbac.PermTestView)).Get("/tests", th.List)
			pr.With(rbac.Require(rbac.PermTestView)).Get("/tests/{testID}", th.Get)
			pr.With(rbac.Require(rbac.PermTestCreate)).Post("/tests", th.Create)
			pr.With(rbac.Require(rbac.PermTestEditOwn, rbac.PermTestEditAll)).Put("/tests/{testID}", th.Update)
			pr.With(rbac.Require(rbac.PermTestDeleteOwn, rbac.PermTestDeleteAll)).Delete("/tests/{testID}", th.Delete)
			pr.With(rbac.Require(rbac.PermTestEditOwn, rbac.PermTestEditAll)).
				Delete("/tests/{testID}/questions/{questionID}", th.DeleteQuestion)
			pr.With(rbac.Require(rbac.PermAttemptSubmit)).Post("/tests/{testID}/submit", th.Submit)
			pr.With(rbac.Require(rbac.PermAttemptViewOwn)).Get("/tests/{testID}/results", th.Results)
			pr.With(rbac.Require(rbac.PermStatsViewOwn, rbac.PermStatsViewAll)).Get("/tests/{testID}/statistics", th.Statistics)

			pr.With(rbac.Require(rbac.PermUsersBulkUpsert)).Post("/users/bulk", uh.BulkUpsert)
			pr.With(rbac.Require(rbac.PermUsersList)).Get("/users", uh.List)
			pr.With(rbac.Require(rbac.PermUsersUpdateRole)).Patch("/users/{userID}", uh.UpdateRole)
			pr.With(rbac.Require(rbac.PermPasswordChange)).Post("/users/change-password", uh.ChangePassword)
		})
	})
	return r
}
