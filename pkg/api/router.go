package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/driftbox/driftbox/internal/logger"
	"github.com/driftbox/driftbox/internal/telemetry"
	"github.com/driftbox/driftbox/pkg/api/handlers"
	"github.com/driftbox/driftbox/pkg/content"
	"github.com/driftbox/driftbox/pkg/metrics"
	"github.com/driftbox/driftbox/pkg/namespace"
	"github.com/driftbox/driftbox/pkg/sharing"
	"github.com/driftbox/driftbox/pkg/store/metadata"
	"github.com/driftbox/driftbox/pkg/worker"
)

// Services collects everything the API surface depends on.
// Worker may be nil; the job endpoints then report 404.
type Services struct {
	Store      *metadata.Store
	Namespaces *namespace.Service
	Sharing    *sharing.Service
	Content    *content.Service
	Worker     worker.Worker
}

// NewRouter creates and configures the chi router with all middleware and
// routes.
//
// The router is configured with:
//   - Request ID middleware for request tracking
//   - Real IP extraction for proper client identification
//   - A root trace span per request (no-op when telemetry is disabled)
//   - Custom request logging using the internal logger
//   - Prometheus request metrics (no-op when metrics are disabled)
//   - Panic recovery to prevent server crashes
//
// JSON endpoints run under a request timeout; the streaming upload,
// download and thumbnail endpoints do not, so large transfers are never
// cut off mid-body.
func NewRouter(config Config, services Services) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestTracing)
	r.Use(requestLogger)
	r.Use(requestMetrics(metrics.NewHTTPMetrics()))
	r.Use(middleware.Recoverer)

	healthHandler := handlers.NewHealthHandler(services.Store)
	filesHandler := handlers.NewFilesHandler(services.Namespaces, services.Content, int64(config.MaxBodySize))
	sharesHandler := handlers.NewSharesHandler(services.Sharing, services.Namespaces.Files())
	usersHandler := handlers.NewUsersHandler(services.Store, services.Namespaces)
	jobsHandler := handlers.NewJobsHandler(services.Worker)

	// Health routes - unauthenticated
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Streaming endpoints stay outside the JSON timeout group.
		r.Post("/namespaces/{ns}/files", filesHandler.Upload)
		r.Get("/namespaces/{ns}/download", filesHandler.Download)
		r.Get("/files/{id}/thumbnail", filesHandler.Thumbnail)
		r.Get("/shared/{token}/content", sharesHandler.DownloadShared)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Post("/users", usersHandler.Create)
			r.Get("/users/{username}", usersHandler.Get)

			r.Post("/namespaces", usersHandler.CreateNamespace)
			r.Post("/namespaces/{ns}/reindex", filesHandler.Reindex)
			r.Get("/namespaces/{ns}/activity", filesHandler.Activity)

			r.Get("/namespaces/{ns}/files", filesHandler.List)
			r.Get("/namespaces/{ns}/file", filesHandler.Get)
			r.Delete("/namespaces/{ns}/files", filesHandler.Delete)
			r.Post("/namespaces/{ns}/folders", filesHandler.CreateFolder)
			r.Post("/namespaces/{ns}/move", filesHandler.Move)
			r.Post("/namespaces/{ns}/trash", filesHandler.Trash)
			r.Post("/namespaces/{ns}/trash/empty", filesHandler.EmptyTrash)
			r.Get("/namespaces/{ns}/duplicates", filesHandler.Duplicates)

			r.Post("/namespaces/{ns}/links", sharesHandler.CreateLink)
			r.Delete("/namespaces/{ns}/links", sharesHandler.RevokeLink)
			r.Get("/shared/{token}", sharesHandler.ResolveShared)

			r.Get("/namespaces/{ns}/members", sharesHandler.ListMembers)
			r.Post("/namespaces/{ns}/members", sharesHandler.AddMember)
			r.Delete("/namespaces/{ns}/members", sharesHandler.RemoveMember)

			r.Get("/jobs/{id}", jobsHandler.Get)
		})
	})

	// Root redirect to health for convenience
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	return r
}

// requestTracing wraps each request in a root span. With telemetry
// disabled the tracer is a no-op and the span costs nothing.
func requestTracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := telemetry.StartAPISpan(r.Context(), r.Method, r.URL.Path,
			telemetry.ClientAddr(r.RemoteAddr))
		defer span.End()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		span.SetAttributes(telemetry.HTTPStatus(ww.Status()))
	})
}

// requestLogger is a custom middleware that logs requests using the internal
// logger.
//
// It logs:
//   - Request start (DEBUG level): method, path, remote addr
//   - Request completion (INFO level): method, path, status, duration
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		// Wrap response writer to capture status code
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)

		logger.Info("API request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", duration.String(),
		)
	})
}

// requestMetrics records per-route Prometheus metrics. With a nil metric
// set every call is a no-op.
func requestMetrics(m *metrics.HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.RequestStarted()
			defer m.RequestFinished()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			m.RecordRequest(r.Method, route, strconv.Itoa(ww.Status()), time.Since(start))
		})
	}
}
