package main

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/himanishpuri/SampleFinder/internal/config"
	"github.com/himanishpuri/SampleFinder/internal/metrics"
	"github.com/himanishpuri/SampleFinder/pkg/logger"
	"github.com/himanishpuri/SampleFinder/pkg/samplefinder"
	"github.com/himanishpuri/SampleFinder/pkg/samplefinder/audio/audiotest"
)

const testRate = 22050

type fixture struct {
	query string
	root  string
	srv   *httptest.Server
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "lib")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}

	clip := audiotest.Chord([]float64{440, 660}, testRate, 1)
	query := filepath.Join(dir, "query.wav")
	for _, p := range []string{query, filepath.Join(root, "copy.wav")} {
		if err := audiotest.WriteWAV(p, clip, testRate, 1); err != nil {
			t.Fatal(err)
		}
	}
	if err := audiotest.WriteWAV(filepath.Join(root, "noise.wav"), audiotest.Noise(7, testRate, 1), testRate, 1); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	off := false
	cfg.Decoder.FFmpegFallback = &off
	cfg.Workers = 2
	cfg.Cache.Size = 8
	if mutate != nil {
		mutate(cfg)
	}

	rec := metrics.New(prometheus.NewRegistry())
	opts := append(cfg.FinderOptions(logger.Nop()), samplefinder.WithRecorder(rec))
	finder, err := samplefinder.NewFinder(opts...)
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewServer(finder, cfg, rec)
	if err != nil {
		t.Fatal(err)
	}
	s.log = logger.Nop()
	s.tempDir = t.TempDir()

	srv := httptest.NewServer(s.setupRoutes())
	t.Cleanup(srv.Close)
	return &fixture{query: query, root: root, srv: srv}
}

func (f *fixture) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(f.srv.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealthAndInfo(t *testing.T) {
	f := newFixture(t, nil)

	for _, path := range []string{"/", "/health", "/api/health/metrics", "/api/extensions"} {
		resp, err := http.Get(f.srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, resp.StatusCode)
		}
	}

	resp, err := http.Get(f.srv.URL + "/nope")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /nope = %d, want 404", resp.StatusCode)
	}
}

func TestMatch(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.postJSON(t, "/api/match", MatchRequest{Query: f.query, Root: f.root})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	got := decode[MatchResponse](t, resp)

	if got.ScanID == "" {
		t.Error("missing scan id")
	}
	if got.Count == 0 || len(got.Matches) != got.Count {
		t.Fatalf("count = %d, matches = %d", got.Count, len(got.Matches))
	}
	top := got.Matches[0]
	if filepath.Base(top.Path) != "copy.wav" || top.Distance != 0 || top.SimilarityPercent != 100 {
		t.Errorf("top match = %+v, want identical copy.wav", top)
	}
}

func TestMatchTopAndThreshold(t *testing.T) {
	f := newFixture(t, nil)

	zero := 0.0
	resp := f.postJSON(t, "/api/match", MatchRequest{Query: f.query, Root: f.root, Threshold: &zero, Top: 1})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	got := decode[MatchResponse](t, resp)
	if got.Count != 1 || got.Threshold != 0 {
		t.Errorf("count = %d threshold = %v, want 1 and 0", got.Count, got.Threshold)
	}
}

func TestMatchValidation(t *testing.T) {
	pct := 50.0
	bad := 1.5

	tests := []struct {
		name  string
		roots []string
		req   func(f *fixture) MatchRequest
		want  int
	}{
		{"missing query", nil, func(f *fixture) MatchRequest { return MatchRequest{Root: f.root} }, http.StatusBadRequest},
		{"missing root", nil, func(f *fixture) MatchRequest { return MatchRequest{Query: f.query} }, http.StatusBadRequest},
		{"both thresholds", nil, func(f *fixture) MatchRequest {
			return MatchRequest{Query: f.query, Root: f.root, Threshold: &bad, Percent: &pct}
		}, http.StatusBadRequest},
		{"threshold out of range", nil, func(f *fixture) MatchRequest {
			return MatchRequest{Query: f.query, Root: f.root, Threshold: &bad}
		}, http.StatusBadRequest},
		{"negative top", nil, func(f *fixture) MatchRequest {
			return MatchRequest{Query: f.query, Root: f.root, Top: -1}
		}, http.StatusBadRequest},
		{"root missing", nil, func(f *fixture) MatchRequest {
			return MatchRequest{Query: f.query, Root: filepath.Join(f.root, "absent")}
		}, http.StatusNotFound},
		{"root is a file", nil, func(f *fixture) MatchRequest {
			return MatchRequest{Query: f.query, Root: f.query}
		}, http.StatusBadRequest},
		{"root not allowed", []string{"/nonexistent-allowed-root"}, func(f *fixture) MatchRequest {
			return MatchRequest{Query: f.query, Root: f.root}
		}, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, func(c *config.Config) { c.Server.AllowedRoots = tt.roots })
			resp := f.postJSON(t, "/api/match", tt.req(f))
			if resp.StatusCode != tt.want {
				body, _ := io.ReadAll(resp.Body)
				t.Errorf("status = %d, want %d (%s)", resp.StatusCode, tt.want, body)
			}
		})
	}
}

func TestAllowedRoots(t *testing.T) {
	base := t.TempDir()
	allowedDir := filepath.Join(base, "samples")
	s := &Server{config: &config.Config{Server: config.ServerConfig{AllowedRoots: []string{allowedDir}}}}

	tests := []struct {
		path string
		ok   bool
	}{
		{allowedDir, true},
		{filepath.Join(allowedDir, "drums"), true},
		{filepath.Join(allowedDir, "drums", "..", "keys", "a.wav"), true},
		{base, false},
		{allowedDir + "-sibling", false},
		{filepath.Join(allowedDir, "..", "other"), false},
	}
	for _, tt := range tests {
		err := s.allowed(tt.path)
		if (err == nil) != tt.ok {
			t.Errorf("allowed(%s) = %v, want ok=%v", tt.path, err, tt.ok)
		}
	}
}

func TestAllowedRootsSymlinks(t *testing.T) {
	base := t.TempDir()
	allowedDir := filepath.Join(base, "samples")
	outside := filepath.Join(base, "private")
	for _, d := range []string{allowedDir, outside} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	secret := filepath.Join(outside, "secret.wav")
	if err := audiotest.WriteWAV(secret, audiotest.Tone(440, testRate, 0.2), testRate, 1); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(outside, filepath.Join(allowedDir, "escape")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}
	if err := os.Symlink(secret, filepath.Join(allowedDir, "secret.wav")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}
	// A root reached through a link still matches its real path.
	linkedRoot := filepath.Join(base, "linked")
	if err := os.Symlink(allowedDir, linkedRoot); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	s := &Server{config: &config.Config{Server: config.ServerConfig{AllowedRoots: []string{linkedRoot}}}}
	tests := []struct {
		path string
		ok   bool
	}{
		{allowedDir, true},
		{filepath.Join(allowedDir, "new.wav"), true},
		{filepath.Join(allowedDir, "escape"), false},
		{filepath.Join(allowedDir, "escape", "secret.wav"), false},
		{filepath.Join(allowedDir, "secret.wav"), false},
		{filepath.Join(allowedDir, "escape", "missing", "x.wav"), false},
	}
	for _, tt := range tests {
		err := s.allowed(tt.path)
		if (err == nil) != tt.ok {
			t.Errorf("allowed(%s) = %v, want ok=%v", tt.path, err, tt.ok)
		}
	}
}

func TestMatchSkipsEscapingLinks(t *testing.T) {
	zero := 0.0
	tests := []struct {
		name  string
		roots []string
		leak  bool
	}{
		{"unrestricted", nil, true},
		{"allowed roots", []string{string(filepath.Separator)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, func(c *config.Config) { c.Server.AllowedRoots = tt.roots })
			// The query sits next to the library, outside it.
			if err := os.Symlink(f.query, filepath.Join(f.root, "leak.wav")); err != nil {
				t.Skipf("symlinks not supported: %v", err)
			}

			resp := f.postJSON(t, "/api/match", MatchRequest{Query: f.query, Root: f.root, Threshold: &zero})
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d", resp.StatusCode)
			}
			got := decode[MatchResponse](t, resp)

			leaked := false
			for _, m := range got.Matches {
				if filepath.Base(m.Path) == "leak.wav" {
					leaked = true
				}
			}
			if leaked != tt.leak {
				t.Errorf("leak.wav in matches = %v, want %v (%+v)", leaked, tt.leak, got.Matches)
			}
		})
	}
}

func TestMatchUpload(t *testing.T) {
	f := newFixture(t, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("root", f.root)
	_ = mw.WriteField("percent", "50")
	part, err := mw.CreateFormFile("audio", "clip.wav")
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(f.query)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	mw.Close()

	resp, err := http.Post(f.srv.URL+"/api/match", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d (%s)", resp.StatusCode, b)
	}
	got := decode[MatchResponse](t, resp)
	if got.Count == 0 || filepath.Base(got.Matches[0].Path) != "copy.wav" {
		t.Errorf("unexpected matches %+v", got.Matches)
	}
	if _, err := os.Stat(got.Query); !os.IsNotExist(err) {
		t.Errorf("uploaded query %s was not removed", got.Query)
	}
}

func TestMatchStream(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.postJSON(t, "/api/match/stream", MatchRequest{Query: f.query, Root: f.root})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	out := string(raw)
	if n := strings.Count(out, "event: progress\n"); n != 2 {
		t.Errorf("got %d progress events, want 2", n)
	}
	if !strings.Contains(out, "event: result\n") {
		t.Fatalf("no result event in %q", out)
	}
	if strings.Index(out, "event: result") < strings.LastIndex(out, "event: progress") {
		t.Error("result sent before the last progress event")
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Server.CORSOrigin = "https://a.example, https://b.example" })

	req, _ := http.NewRequest(http.MethodOptions, f.srv.URL+"/api/match", http.NoBody)
	req.Header.Set("Origin", "https://b.example")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://b.example" {
		t.Errorf("allow origin = %q", got)
	}
}

func TestPrometheusEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	f.postJSON(t, "/api/match", MatchRequest{Query: f.query, Root: f.root})

	resp, err := http.Get(f.srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		"samplefinder_scans_total 1",
		`samplefinder_candidates_total{outcome="match"}`,
		`samplefinder_http_requests_total{method="POST",path="POST /api/match",status="200"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("scrape output missing %s", want)
		}
	}
}
