package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vivpro_songs"

// Recorder owns a Prometheus registry and the collectors for HTTP traffic,
// session lifecycle events, login outcomes, ratings and playlist imports.
type Recorder struct {
	registry        *prometheus.Registry
	requestCount    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	sessionEvents   *prometheus.CounterVec
	loginAttempts   *prometheus.CounterVec
	ratings         prometheus.Counter
	playlistRows    *prometheus.CounterVec
	deletionBacklog prometheus.Gauge
}

var (
	defaultMu       sync.RWMutex
	defaultRecorder = New()
)

// New constructs a Recorder backed by a fresh registry that also exposes the
// Go runtime and process collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		requestCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, normalized path and status.",
		}, []string{"method", "path", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and normalized path.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		sessionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events (created, deleted, expired, purged, deletion_retried).",
		}, []string{"event"}),
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome.",
		}, []string{"result"}),
		ratings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratings_recorded_total",
			Help:      "Ratings written or overwritten.",
		}),
		playlistRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playlist_rows_total",
			Help:      "Playlist rows processed by import outcome.",
		}, []string{"outcome"}),
		deletionBacklog: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_deletion_backlog",
			Help:      "Session ids waiting for a retried deletion.",
		}),
	}
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.requestCount,
		r.requestDuration,
		r.sessionEvents,
		r.loginAttempts,
		r.ratings,
		r.playlistRows,
		r.deletionBacklog,
	)
	return r
}

// Default returns the process-wide Recorder.
func Default() *Recorder {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultRecorder
}

// SetDefault replaces the process-wide Recorder. A nil recorder is ignored.
func SetDefault(r *Recorder) {
	if r == nil {
		return
	}
	defaultMu.Lock()
	defaultRecorder = r
	defaultMu.Unlock()
}

// Registry exposes the underlying registry so callers can register their own
// collectors or gather in tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveRequest records one request, collapsing identifier path segments so
// label cardinality stays bounded.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	m := strings.ToUpper(method)
	p := normalizePath(path)
	r.requestCount.WithLabelValues(m, p, strconv.Itoa(status)).Inc()
	r.requestDuration.WithLabelValues(m, p).Observe(duration.Seconds())
}

// SessionEvent counts a session lifecycle event n times.
func (r *Recorder) SessionEvent(event string, n int) {
	if n <= 0 {
		return
	}
	r.sessionEvents.WithLabelValues(normalizeName(event)).Add(float64(n))
}

// LoginAttempt counts a login by outcome.
func (r *Recorder) LoginAttempt(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	r.loginAttempts.WithLabelValues(result).Inc()
}

// RatingRecorded counts a stored rating.
func (r *Recorder) RatingRecorded() {
	r.ratings.Inc()
}

// PlaylistImported counts rows inserted and rows skipped because they already
// existed.
func (r *Recorder) PlaylistImported(rows int, inserted int64) {
	r.playlistRows.WithLabelValues("inserted").Add(float64(inserted))
	if skipped := int64(rows) - inserted; skipped > 0 {
		r.playlistRows.WithLabelValues("skipped").Add(float64(skipped))
	}
}

// SetDeletionBacklog reports the current deletion retry backlog.
func (r *Recorder) SetDeletionBacklog(n int) {
	r.deletionBacklog.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func normalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if looksLikeIdentifier(part) {
			parts[i] = ":id"
		}
	}
	normalized := strings.Join(parts, "/")
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	if strings.HasSuffix(normalized, "/") && len(normalized) > 1 {
		normalized = strings.TrimSuffix(normalized, "/")
	}
	return normalized
}

func looksLikeIdentifier(segment string) bool {
	if strings.HasPrefix(segment, "{") {
		return false
	}
	if len(segment) >= 8 {
		return true
	}
	if _, err := strconv.Atoi(segment); err == nil {
		return true
	}
	digitCount := 0
	for _, r := range segment {
		if r >= '0' && r <= '9' {
			digitCount++
		}
	}
	return digitCount >= 3
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

// ObserveRequest records a request on the default Recorder.
func ObserveRequest(method, path string, status int, duration time.Duration) {
	Default().ObserveRequest(method, path, status, duration)
}

// SessionEvent records a session event on the default Recorder.
func SessionEvent(event string, n int) {
	Default().SessionEvent(event, n)
}

// LoginAttempt records a login on the default Recorder.
func LoginAttempt(success bool) {
	Default().LoginAttempt(success)
}

// RatingRecorded records a rating on the default Recorder.
func RatingRecorded() {
	Default().RatingRecorded()
}

// Handler serves the default Recorder.
func Handler() http.Handler {
	return Default().Handler()
}
