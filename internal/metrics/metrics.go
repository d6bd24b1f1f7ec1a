// Package metrics exposes scan and HTTP measurements to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/himanishpuri/SampleFinder/pkg/samplefinder"
)

const namespace = "samplefinder"

var _ samplefinder.Recorder = (*Recorder)(nil)

// Recorder implements samplefinder.Recorder and instruments HTTP handlers.
type Recorder struct {
	gatherer prometheus.Gatherer

	candidates        *prometheus.CounterVec
	candidateDuration prometheus.Histogram
	scans             prometheus.Counter
	scanDuration      prometheus.Histogram
	matches           prometheus.Counter

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New registers every collector on reg. Pass prometheus.NewRegistry() in
// tests to keep them isolated.
func New(reg *prometheus.Registry) *Recorder {
	m := &Recorder{
		gatherer: reg,

		candidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_total",
			Help:      "Candidate files processed, by outcome",
		}, []string{"outcome"}),

		candidateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "candidate_seconds",
			Help:      "Time to decode, fingerprint and align one candidate",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		scans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Completed directory scans",
		}),

		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_seconds",
			Help:      "Wall time of a complete directory scan",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		}),

		matches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_total",
			Help:      "Candidates that reached the similarity threshold",
		}),

		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),

		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 60},
		}, []string{"method", "path", "status"}),
	}

	reg.MustRegister(
		m.candidates, m.candidateDuration,
		m.scans, m.scanDuration, m.matches,
		m.httpRequests, m.httpRequestDuration,
	)
	return m
}

func (m *Recorder) CandidateProcessed(outcome samplefinder.Outcome, elapsed time.Duration) {
	m.candidates.WithLabelValues(string(outcome)).Inc()
	m.candidateDuration.Observe(elapsed.Seconds())
}

func (m *Recorder) ScanCompleted(total, matched int, elapsed time.Duration) {
	m.scans.Inc()
	m.scanDuration.Observe(elapsed.Seconds())
	m.matches.Add(float64(matched))
}

// Handler serves the registry in the Prometheus text format.
func (m *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Instrument wraps next, labelling its requests with the route pattern
// rather than the raw URL to keep label cardinality bounded.
func (m *Recorder) Instrument(pattern string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next(ww, r)

		status := strconv.Itoa(ww.status)
		m.httpRequestDuration.WithLabelValues(r.Method, pattern, status).Observe(time.Since(start).Seconds())
		m.httpRequests.WithLabelValues(r.Method, pattern, status).Inc()
	}
}

// statusWriter captures the response status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.wroteHeader = true
	}
	return w.ResponseWriter.Write(b)
}

// Flush lets server-sent event handlers stream through the wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
