package admin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonwraymond/flowops/health"
	"github.com/jonwraymond/flowops/metrics"
	"github.com/jonwraymond/flowops/resilience"
	"github.com/jonwraymond/flowops/workflow"
)

// Source is the status the admin surface exposes.
// *orchestrator.Orchestrator satisfies it.
type Source interface {
	Ready() bool
	HealthStatus() map[string]health.ServiceHealth
	CircuitBreakerStatus() map[string]resilience.BreakerState
	ErrorMetrics(services ...string) map[string]metrics.ErrorMetrics
	Executions() []*workflow.Execution
	Execution(id string) (*workflow.Execution, bool)
}

// Config configures the admin handler.
type Config struct {
	Guard GuardConfig

	// Gatherer backs /metrics. Default: prometheus.DefaultGatherer, which the
	// otel Prometheus exporter registers with.
	Gatherer prometheus.Gatherer

	// Now returns the current time. Default: time.Now
	Now func() time.Time
}

// NewHandler builds the admin mux.
func NewHandler(src Source, config Config) (http.Handler, error) {
	if src == nil {
		return nil, ErrNilSource
	}
	if config.Gatherer == nil {
		config.Gatherer = prometheus.DefaultGatherer
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	h := &handler{src: src, now: config.Now}
	guard := NewGuard(config.Guard)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", liveness)
	mux.HandleFunc("GET /readyz", h.readiness)
	mux.Handle("GET /status/health", guard.Wrap(http.HandlerFunc(h.health)))
	mux.Handle("GET /status/breakers", guard.Wrap(http.HandlerFunc(h.breakers)))
	mux.Handle("GET /status/metrics", guard.Wrap(http.HandlerFunc(h.metrics)))
	mux.Handle("GET /status/executions", guard.Wrap(http.HandlerFunc(h.executions)))
	mux.Handle("GET /status/executions/{id}", guard.Wrap(http.HandlerFunc(h.execution)))
	mux.Handle("GET /metrics", guard.Wrap(promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{})))
	return mux, nil
}

type handler struct {
	src Source
	now func() time.Time
}

func liveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *handler) readiness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if !h.src.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("NOT READY"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// HealthResponse is the body of /status/health.
type HealthResponse struct {
	Status    string                   `json:"status"`
	Timestamp string                   `json:"timestamp"`
	Services  map[string]ServiceStatus `json:"services"`
}

// ServiceStatus is one instance in HealthResponse.
type ServiceStatus struct {
	Status              string  `json:"status"`
	ResponseTimeMs      float64 `json:"responseTimeMs"`
	ErrorRate           float64 `json:"errorRate"`
	LastCheck           string  `json:"lastCheck"`
	ConsecutiveFailures int     `json:"consecutiveFailures"`
	Message             string  `json:"message,omitempty"`
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	records := h.src.HealthStatus()
	overall := health.OverallStatus(records)

	resp := HealthResponse{
		Status:    overall.String(),
		Timestamp: h.now().UTC().Format(time.RFC3339),
		Services:  make(map[string]ServiceStatus, len(records)),
	}
	for id, rec := range records {
		resp.Services[id] = ServiceStatus{
			Status:              rec.Status.String(),
			ResponseTimeMs:      float64(rec.ResponseTime) / float64(time.Millisecond),
			ErrorRate:           rec.ErrorRate,
			LastCheck:           rec.LastCheck.UTC().Format(time.RFC3339),
			ConsecutiveFailures: rec.ConsecutiveFailures,
			Message:             rec.Message,
		}
	}

	status := http.StatusOK
	if overall == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// BreakerStatus is one breaker in the /status/breakers body.
type BreakerStatus struct {
	State           string     `json:"state"`
	FailureCount    int        `json:"failureCount"`
	SuccessCount    int        `json:"successCount"`
	LastStateChange time.Time  `json:"lastStateChange"`
	LastFailureTime *time.Time `json:"lastFailureTime,omitempty"`
	NextAttemptTime *time.Time `json:"nextAttemptTime,omitempty"`
}

func (h *handler) breakers(w http.ResponseWriter, _ *http.Request) {
	states := h.src.CircuitBreakerStatus()
	out := make(map[string]BreakerStatus, len(states))
	for id, st := range states {
		out[id] = BreakerStatus{
			State:           st.State.String(),
			FailureCount:    st.FailureCount,
			SuccessCount:    st.SuccessCount,
			LastStateChange: st.LastStateChange,
			LastFailureTime: st.LastFailureTime,
			NextAttemptTime: st.NextAttemptTime,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) metrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.src.ErrorMetrics(r.URL.Query()["service"]...))
}

func (h *handler) executions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.src.Executions())
}

func (h *handler) execution(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	exec, ok := h.src.Execution(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "execution not found: " + id})
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
