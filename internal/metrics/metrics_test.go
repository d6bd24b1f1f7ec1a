package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/himanishpuri/SampleFinder/pkg/samplefinder"
)

func TestRecorderCounts(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.CandidateProcessed(samplefinder.OutcomeMatch, 20*time.Millisecond)
	m.CandidateProcessed(samplefinder.OutcomeMatch, 30*time.Millisecond)
	m.CandidateProcessed(samplefinder.OutcomeDecodeError, time.Millisecond)
	m.ScanCompleted(3, 2, time.Second)

	if v := testutil.ToFloat64(m.candidates.WithLabelValues("match")); v != 2 {
		t.Errorf("match candidates = %v, want 2", v)
	}
	if v := testutil.ToFloat64(m.candidates.WithLabelValues("decode_error")); v != 1 {
		t.Errorf("decode_error candidates = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.scans); v != 1 {
		t.Errorf("scans = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.matches); v != 2 {
		t.Errorf("matches = %v, want 2", v)
	}
	if n := testutil.CollectAndCount(m.candidateDuration); n == 0 {
		t.Error("candidate histogram has no observations")
	}
}

func TestInstrument(t *testing.T) {
	m := New(prometheus.NewRegistry())

	ok := m.Instrument("GET /ok", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	missing := m.Instrument("GET /missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, h := range []http.HandlerFunc{ok, ok, missing} {
		h(httptest.NewRecorder(), httptest.NewRequest("GET", "/x", http.NoBody))
	}

	if v := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "GET /ok", "200")); v != 2 {
		t.Errorf("ok requests = %v, want 2", v)
	}
	if v := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "GET /missing", "404")); v != 1 {
		t.Errorf("missing requests = %v, want 1", v)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ScanCompleted(1, 0, time.Millisecond)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", http.NoBody))

	body, _ := io.ReadAll(rr.Body)
	if !strings.Contains(string(body), "samplefinder_scans_total 1") {
		t.Errorf("scrape output missing scans_total:\n%s", body)
	}
}
