package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/gmanfredi/framewatch/internal/api/middleware"
	"github.com/gmanfredi/framewatch/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	// MediaRoot, when set, is served read-only under /media/ so clients
	// can fetch processed videos and preview snapshots.
	MediaRoot string

	HealthHandler http.HandlerFunc

	CreateJobHandler  http.HandlerFunc
	SampleJobHandler  http.HandlerFunc
	ListJobsHandler   http.HandlerFunc
	GetJobHandler     http.HandlerFunc
	DeleteJobHandler  http.HandlerFunc
	JobStatusHandler  http.HandlerFunc
	TaskStatusHandler http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Processed videos and previews
	if deps.MediaRoot != "" {
		fs := http.StripPrefix("/media/", http.FileServer(http.Dir(deps.MediaRoot)))
		r.Get("/media/*", fs.ServeHTTP)
	}

	// Job routes: anonymous submissions are allowed, an API key scopes
	// ownership when present.
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.OptionalAuthenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/jobs", orNotImplemented(deps.CreateJobHandler))
		r.Post("/api/v1/jobs/sample/{code}", orNotImplemented(deps.SampleJobHandler))
		r.Get("/api/v1/jobs", orNotImplemented(deps.ListJobsHandler))
		r.Get("/api/v1/jobs/{jobID}", orNotImplemented(deps.GetJobHandler))
		r.Delete("/api/v1/jobs/{jobID}", orNotImplemented(deps.DeleteJobHandler))
		r.Get("/api/v1/jobs/{jobID}/status", orNotImplemented(deps.JobStatusHandler))
		r.Get("/api/v1/tasks/{taskID}", orNotImplemented(deps.TaskStatusHandler))
	})

	// Admin routes require a key with the admin scope.
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)
		r.Use(deps.Auth.RequireScope("admin"))

		r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
		r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
		r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
