package http

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/zapfit/server/internal/http/handlers"
)

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(
	verificationHandler *handlers.VerificationHandler,
	submissionHandler *handlers.SubmissionHandler,
	rewardHandler *handlers.RewardHandler,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	healthHandler := handlers.NewHealthHandler()
	r.Get("/health", healthHandler.ServeHTTP)

	r.Post("/get-workout-verification", verificationHandler.HandleIssue)
	r.Post("/submit-workout", submissionHandler.HandleSubmit)
	r.Post("/claim-reward", rewardHandler.HandleClaim)

	return r
}
