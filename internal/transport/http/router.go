package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jobman-auth/internal/config"
	"github.com/jobman-auth/internal/transport/http/handler"
	appmiddleware "github.com/jobman-auth/internal/transport/http/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// BasePath prefixes every auth route.
const BasePath = "/api/v1/auth"

// maxBodyBytes bounds request bodies; sign-up carries a base64 picture.
const maxBodyBytes = 10 << 20

// NewRouter builds and returns the application router. ctx bounds the
// lifetime of background helpers such as the rate limiter cleanup.
func NewRouter(ctx context.Context, cfg *config.Config, deps *Deps, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(appmiddleware.WithMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimiddleware.RequestSize(maxBodyBytes))
	r.Use(appmiddleware.Authenticate(deps.Verifier))

	// 5 requests/second, burst of 10, applied to sensitive public endpoints.
	sensitiveRL := appmiddleware.NewRateLimiter(ctx, rate.Limit(5), 10)

	healthH := handler.NewHealthHandler()
	authH := handler.NewAuthHandler(deps.AuthService, logger)

	r.Get("/auth-health", healthH.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route(BasePath, func(r chi.Router) {
		r.With(sensitiveRL.Limit).Post("/signup", authH.SignUp)
		r.With(sensitiveRL.Limit).Post("/signin", authH.SignIn)
		r.Put("/verify-email", authH.VerifyEmail)
		r.With(sensitiveRL.Limit).Put("/forgot-password", authH.ForgotPassword)
		r.With(sensitiveRL.Limit).Put("/reset-password/{token}", authH.ResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(appmiddleware.RequireUser)

			r.Get("/currentuser", authH.CurrentUser)
			r.Post("/resend-email", authH.ResendEmail)
			r.Put("/change-password", authH.ChangePassword)
			r.Get("/refresh-token/{username}", authH.RefreshToken)
		})
	})

	return r
}
