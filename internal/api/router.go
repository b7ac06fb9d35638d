package api

import (
	"net/http"
	"time"
	"tle_zone_grader/internal/api/handler"
	"tle_zone_grader/internal/api/middleware"
	"tle_zone_grader/internal/app/service"
	"tle_zone_grader/internal/common/security"
	"tle_zone_grader/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
)

func NewRouter(
	problemService *service.ProblemService,
	submissionService *service.SubmissionService,
	progressService *service.ProgressService,
	jobService *service.ProgressJobService,
	requestTimeout time.Duration,
) http.Handler {
	r := chi.NewRouter()

	// Base Middlewares
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	// grading is synchronous, so this must outlast the grading deadline
	r.Use(chiMiddleware.Timeout(requestTimeout))

	// Verifies "Authorization: Bearer T" when present; Authenticator enforces it.
	r.Use(jwtauth.Verifier(security.TokenAuth))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(v1 chi.Router) {
		problemHandler := handler.NewProblemHandler(problemService)
		v1.Route("/problems", problemHandler.RegisterRoutes)
		v1.Get("/languages", problemHandler.ListLanguages)

		submissionHandler := handler.NewSubmissionHandler(submissionService)
		v1.Route("/submissions", submissionHandler.RegisterRoutes)

		progressHandler := handler.NewProgressHandler(progressService)
		v1.Get("/leaderboard", progressHandler.GetLeaderboard)
		v1.With(middleware.Authenticator).Get("/users/me/progress", progressHandler.GetMyProgress)

		adminHandler := handler.NewAdminHandler(jobService)
		v1.Route("/admin", adminHandler.RegisterRoutes)
	})

	return r
}
