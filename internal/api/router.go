package api

import (
	"log/slog"
	"net/http"
	"time"

	"taskweb/internal/api/handler"
	"taskweb/internal/api/middleware"
	"taskweb/internal/common"
	"taskweb/internal/common/security"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

const requestTimeout = 30 * time.Second

type Dependencies struct {
	Logger         *slog.Logger
	Issuer         *security.TokenIssuer
	Users          middleware.UserLookup
	Revocations    middleware.RevocationChecker
	Database       handler.DatabaseProber
	AuthService    handler.AuthUseCase
	TaskService    handler.TaskUseCase
	UserService    handler.UserUseCase
	AllowedOrigins []string
	MaxBodyBytes   int64
}

func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(middleware.AccessLog(deps.Logger))
	r.Use(middleware.Metrics)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(requestTimeout))
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler)
	r.Use(middleware.LimitBody(deps.MaxBodyBytes))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		common.RespondWithError(w, http.StatusNotFound, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		common.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	handler.NewHealthHandler(deps.Database).RegisterRoutes(r)
	r.Handle("/metrics", promhttp.Handler())

	authHandler := handler.NewAuthHandler(deps.AuthService)
	taskHandler := handler.NewTaskHandler(deps.TaskService, deps.UserService)
	userHandler := handler.NewUserHandler(deps.UserService)
	auth := middleware.NewAuth(deps.Users, deps.Revocations, deps.Logger)

	r.Route("/api", func(api chi.Router) {
		api.Route("/auth", func(ar chi.Router) {
			authHandler.RegisterRoutes(ar)
			ar.Group(func(protected chi.Router) {
				protected.Use(jwtauth.Verifier(deps.Issuer.JWTAuth()))
				protected.Use(auth.Authenticator)
				authHandler.RegisterProtectedRoutes(protected)
			})
		})

		api.Group(func(protected chi.Router) {
			protected.Use(jwtauth.Verifier(deps.Issuer.JWTAuth()))
			protected.Use(auth.Authenticator)
			protected.Route("/tasks", taskHandler.RegisterRoutes)
			protected.Route("/users", userHandler.RegisterRoutes)
		})
	})

	return r
}
