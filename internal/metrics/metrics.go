package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ehr_broker"

// Metrics holds the broker's collectors. A nil *Metrics is valid and records nothing,
// which keeps unit tests free of registry plumbing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	authorizationsTotal   *prometheus.CounterVec
	tokenExchangesTotal   *prometheus.CounterVec
	sweptEntriesTotal     *prometheus.CounterVec
	materializationsTotal *prometheus.CounterVec
	activeSessions        prometheus.Gauge

	knownPaths map[string]struct{}
}

// New registers every collector on a private registry.
func New(knownPaths ...string) (*Metrics, error) {
	m := &Metrics{
		registry:   prometheus.NewRegistry(),
		knownPaths: make(map[string]struct{}, len(knownPaths)),
	}
	for _, p := range knownPaths {
		m.knownPaths[p] = struct{}{}
	}

	m.httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	m.httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	m.authorizationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "authorizations_total",
		Help:      "Authorization codes issued by branch (existing_record|new_acquisition) and result",
	}, []string{"branch", "result"})

	m.tokenExchangesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_exchanges_total",
		Help:      "Token endpoint outcomes by OAuth error code, or ok",
	}, []string{"result"})

	m.sweptEntriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "swept_entries_total",
		Help:      "Expired entries removed by the periodic sweep",
	}, []string{"store"})

	m.materializationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_store_materializations_total",
		Help:      "Session stores opened by mode (file_create|file_open|memory) and result",
	}, []string{"mode", "result"})

	m.activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_sessions",
		Help:      "Sessions holding a live access token",
	})

	collectors := []prometheus.Collector{
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.authorizationsTotal,
		m.tokenExchangesTotal,
		m.sweptEntriesTotal,
		m.materializationsTotal,
		m.activeSessions,
	}
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Handler serves the private registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Middleware records request counts and latency per registered path.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := strings.ToUpper(r.Method)
		path := m.pathLabel(r.URL.Path)
		start := time.Now()

		rec := &statusRecorder{ResponseWriter: w}
		defer func() {
			m.httpRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
		}()

		next.ServeHTTP(rec, r)
	})
}

// pathLabel bounds label cardinality to the registered routes.
func (m *Metrics) pathLabel(p string) string {
	if _, ok := m.knownPaths[p]; ok {
		return p
	}
	return "other"
}

func (m *Metrics) RecordAuthorization(branch, result string) {
	if m == nil {
		return
	}
	m.authorizationsTotal.WithLabelValues(branch, result).Inc()
}

func (m *Metrics) RecordTokenExchange(result string) {
	if m == nil {
		return
	}
	m.tokenExchangesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordSwept(store string, removed int) {
	if m == nil || removed == 0 {
		return
	}
	m.sweptEntriesTotal.WithLabelValues(store).Add(float64(removed))
}

func (m *Metrics) RecordMaterialization(mode string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.materializationsTotal.WithLabelValues(mode, result).Inc()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
