// Package app wires HTTP routing and readiness for the server binary.
package app

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	httpserver "github.com/fairyhunter13/resume-evaluator/internal/adapter/httpserver"
	"github.com/fairyhunter13/resume-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/resume-evaluator/internal/config"
)

// ParseOrigins splits a comma-separated origin list into a slice, trimming spaces.
// If the input is empty, returns ["*"].
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// rateLimited answers limiter rejections with the JSON error envelope.
func rateLimited(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"error":{"code":"RATE_LIMITED","message":"too many requests","details":null}}` + "\n"))
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
// Streaming routes are mounted outside the timeout group because http.TimeoutHandler cannot flush.
func BuildRouter(cfg config.Config, srv *httpserver.Server, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID(logger))
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{httpserver.HeaderRequestID},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	limit := httprate.Limit(cfg.RateLimitPerMin, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(rateLimited),
	)

	r.Route("/api", func(api chi.Router) {
		api.Group(func(g chi.Router) {
			g.Use(httpserver.TimeoutMiddleware(cfg.RequestTimeout))
			g.Get("/getResumes", srv.GetResumesHandler())
			g.Get("/getResume", srv.GetResumeHandler())
			g.Group(func(wr chi.Router) {
				wr.Use(limit)
				wr.Post("/uploadResume", srv.UploadResumeHandler())
				wr.Post("/checkResume", srv.CheckResumeHandler())
				wr.Delete("/deleteResume", srv.DeleteResumeHandler())
				wr.Delete("/deleteEvaluation", srv.DeleteEvaluationHandler())
			})
		})
		api.Group(func(stream chi.Router) {
			stream.Use(limit)
			stream.Post("/bulkEvaluate", srv.BulkEvaluateHandler())
			stream.Post("/chat-criteria", srv.ChatCriteriaHandler())
		})
		if cfg.AdminEnabled() {
			api.With(httpserver.AdminBasicAuth(cfg.AdminUsername, cfg.AdminPasswordHash)).
				Delete("/admin/vectors", srv.PurgeVectorsHandler())
		}
	})

	r.Get("/healthz", srv.HealthzHandler())
	r.Get("/readyz", srv.ReadyzHandler())
	r.Handle("/metrics", promhttp.Handler())

	return otelhttp.NewHandler(httpserver.SecurityHeaders(r), "http.server",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string { return r.Method + " " + r.URL.Path }),
		otelhttp.WithFilter(func(r *http.Request) bool { return r.URL.Path != "/metrics" && r.URL.Path != "/healthz" }),
	)
}
