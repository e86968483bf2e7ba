package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// Evaluation outcomes recorded by EvaluationsTotal.
const (
	OutcomePass     = "pass"
	OutcomeFail     = "fail"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
		},
		[]string{"route", "method"},
	)

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of AI requests by provider and operation",
		},
		[]string{"provider", "operation"},
	)
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "AI request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider", "operation"},
	)
	AITokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_total",
			Help: "Estimated tokens sent to and received from AI providers",
		},
		[]string{"provider", "model", "kind"},
	)

	EvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resume_evaluations_total",
			Help: "Resume evaluations by outcome",
		},
		[]string{"outcome"},
	)
	FitScoreHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "resume_evaluation_fit_score",
			Help:    "Distribution of fit_score ([0,100])",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)
	VectorOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vector_operations_total",
			Help: "Vector store operations by operation and result",
		},
		[]string{"operation", "result"},
	)
	ResumeEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resume_events_total",
			Help: "Resume lifecycle events by type and direction",
		},
		[]string{"type", "direction", "result"},
	)
)

// InitMetrics registers all collectors with the default registry.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(AIRequestsTotal)
	prometheus.MustRegister(AIRequestDuration)
	prometheus.MustRegister(AITokensTotal)
	prometheus.MustRegister(EvaluationsTotal)
	prometheus.MustRegister(FitScoreHistogram)
	prometheus.MustRegister(VectorOperationsTotal)
	prometheus.MustRegister(ResumeEventsTotal)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, http.StatusText(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}

// ObserveAIRequest records one upstream AI call.
func ObserveAIRequest(provider, operation string, start time.Time) {
	AIRequestsTotal.WithLabelValues(provider, operation).Inc()
	AIRequestDuration.WithLabelValues(provider, operation).Observe(time.Since(start).Seconds())
}

// RecordAITokens records estimated prompt and completion tokens.
func RecordAITokens(provider, model string, prompt, completion int) {
	if prompt > 0 {
		AITokensTotal.WithLabelValues(provider, model, "prompt").Add(float64(prompt))
	}
	if completion > 0 {
		AITokensTotal.WithLabelValues(provider, model, "completion").Add(float64(completion))
	}
}

// ObserveEvaluation records the outcome of one evaluation. The score is only observed
// for documents judged to be resumes.
func ObserveEvaluation(outcome string, fitScore int) {
	EvaluationsTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomePass || outcome == OutcomeFail {
		FitScoreHistogram.Observe(float64(fitScore))
	}
}

// RecordVectorOp records a vector store operation result.
func RecordVectorOp(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	VectorOperationsTotal.WithLabelValues(operation, result).Inc()
}

// RecordResumeEvent records a produced or consumed lifecycle event.
func RecordResumeEvent(eventType, direction string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	ResumeEventsTotal.WithLabelValues(eventType, direction, result).Inc()
}
