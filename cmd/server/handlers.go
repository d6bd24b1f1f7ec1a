package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/himanishpuri/SampleFinder/internal/config"
	"github.com/himanishpuri/SampleFinder/internal/metrics"
	"github.com/himanishpuri/SampleFinder/pkg/logger"
	"github.com/himanishpuri/SampleFinder/pkg/samplefinder"
)

const (
	// syncScanTimeout bounds POST /api/match. Streaming scans run until the
	// client disconnects.
	syncScanTimeout = 10 * time.Minute

	maxUploadBytes = 100 << 20
	maxBodyBytes   = 1 << 20
)

var errPathNotAllowed = errors.New("path is outside the allowed roots")

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	service   samplefinder.Service
	config    *config.Config
	metrics   *metrics.Recorder
	threshold samplefinder.Threshold
	tempDir   string
	log       samplefinder.Logger

	active atomic.Int64
}

// NewServer creates a new server instance
func NewServer(service samplefinder.Service, cfg *config.Config, rec *metrics.Recorder) (*Server, error) {
	th, err := cfg.ThresholdValue()
	if err != nil {
		return nil, err
	}
	return &Server{
		service:   service,
		config:    cfg,
		metrics:   rec,
		threshold: th,
		tempDir:   os.TempDir(),
		log:       logger.GetLogger().Named("server"),
	}, nil
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"service": "SampleFinder API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"health":      "GET /health",
			"metrics":     "GET /api/health/metrics",
			"prometheus":  "GET /metrics",
			"extensions":  "GET /api/extensions",
			"match":       "POST /api/match",
			"matchStream": "POST /api/match/stream",
		},
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleMetrics handles GET /api/health/metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	resp := MetricsResponse{
		Status:       "healthy",
		Workers:      s.service.Workers(),
		Extensions:   s.service.Extensions(),
		AllowedRoots: s.config.Server.AllowedRoots,
		ActiveScans:  s.active.Load(),
	}
	if stats, ok := s.service.CacheStats(); ok {
		resp.Cache = &stats
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// handleExtensions handles GET /api/extensions
func (s *Server) handleExtensions(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, ExtensionsResponse{Extensions: s.service.Extensions()})
}

// handleMatch handles POST /api/match and answers once the scan is complete.
func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	req, th, cleanup, status, err := s.parseMatchRequest(r)
	defer cleanup()
	if err != nil {
		s.respondError(w, status, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), syncScanTimeout)
	defer cancel()

	s.active.Add(1)
	defer s.active.Add(-1)

	start := time.Now()
	scan := s.service.Start(ctx, req.Query, req.Root, th)
	s.log.Infof("Scan %s: query=%s root=%s threshold=%s", scan.ID, req.Query, req.Root, th)

	matches, err := scan.Wait()
	if err != nil {
		s.log.Warnf("Scan %s stopped: %v", scan.ID, err)
		s.respondError(w, scanErrorStatus(err), fmt.Sprintf("Scan stopped: %v", err))
		return
	}

	dtos := toMatchDTOs(matches, req.Top)
	s.log.Infof("Scan %s complete: %d match(es) in %s", scan.ID, len(matches), time.Since(start).Round(time.Millisecond))
	s.respondJSON(w, http.StatusOK, MatchResponse{
		ScanID:    scan.ID,
		Query:     req.Query,
		Root:      req.Root,
		Threshold: th.Value(),
		Matches:   dtos,
		Count:     len(dtos),
		ElapsedMs: time.Since(start).Milliseconds(),
	})
}

// handleMatchStream handles POST /api/match/stream. Progress and ETA are sent
// as server-sent events, followed by a single "result" or "error" event.
func (s *Server) handleMatchStream(w http.ResponseWriter, r *http.Request) {
	req, th, cleanup, status, err := s.parseMatchRequest(r)
	defer cleanup()
	if err != nil {
		s.respondError(w, status, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.active.Add(1)
	defer s.active.Add(-1)

	start := time.Now()
	scan := s.service.Start(r.Context(), req.Query, req.Root, th)
	s.log.Infof("Stream scan %s: query=%s root=%s threshold=%s", scan.ID, req.Query, req.Root, th)

	for ev := range scan.Events() {
		var err error
		switch e := ev.(type) {
		case samplefinder.ProgressEvent:
			err = writeEvent(w, flusher, "progress", ProgressDTO{
				Processed: e.Processed,
				Total:     e.Total,
				Path:      e.Path,
				Fraction:  e.Fraction(),
			})
		case samplefinder.EtaEvent:
			err = writeEvent(w, flusher, "eta", EtaDTO{Seconds: e.Seconds()})
		}
		if err != nil {
			s.log.Debugf("Stream scan %s: client gone: %v", scan.ID, err)
			scan.Cancel()
			break
		}
	}

	matches, err := scan.Wait()
	if err != nil {
		s.log.Warnf("Stream scan %s stopped: %v", scan.ID, err)
		_ = writeEvent(w, flusher, "error", ErrorResponse{
			Error:   http.StatusText(scanErrorStatus(err)),
			Message: err.Error(),
			Code:    scanErrorStatus(err),
		})
		return
	}

	dtos := toMatchDTOs(matches, req.Top)
	s.log.Infof("Stream scan %s complete: %d match(es)", scan.ID, len(matches))
	_ = writeEvent(w, flusher, "result", MatchResponse{
		ScanID:    scan.ID,
		Query:     req.Query,
		Root:      req.Root,
		Threshold: th.Value(),
		Matches:   dtos,
		Count:     len(dtos),
		ElapsedMs: time.Since(start).Milliseconds(),
	})
}

func writeEvent(w io.Writer, flusher http.Flusher, name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func scanErrorStatus(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	if errors.Is(err, context.Canceled) {
		// nginx's "client closed request"
		return 499
	}
	return http.StatusInternalServerError
}

// parseMatchRequest reads a JSON body or a multipart upload carrying the
// query as an "audio" file. cleanup removes any uploaded temp file and is
// always safe to call.
func (s *Server) parseMatchRequest(r *http.Request) (req MatchRequest, th samplefinder.Threshold, cleanup func(), status int, err error) {
	cleanup = func() {}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	uploaded := mediaType == "multipart/form-data"
	if uploaded {
		req, cleanup, err = s.readUpload(r)
	} else {
		r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
		if derr := json.NewDecoder(r.Body).Decode(&req); derr != nil {
			s.log.Debugf("Failed to decode request: %v", derr)
			err = errors.New("invalid request body")
		}
	}
	if err != nil {
		return req, th, cleanup, http.StatusBadRequest, err
	}

	th, err = req.Validate(s.threshold)
	if err != nil {
		return req, th, cleanup, http.StatusBadRequest, err
	}

	if err := s.checkRoot(req.Root); err != nil {
		return req, th, cleanup, pathErrorStatus(err), err
	}
	if err := s.checkQuery(req.Query, uploaded); err != nil {
		return req, th, cleanup, pathErrorStatus(err), err
	}
	return req, th, cleanup, http.StatusOK, nil
}

// readUpload stores the uploaded query in the temp dir, keeping its
// extension so the decoder can dispatch on it.
func (s *Server) readUpload(r *http.Request) (MatchRequest, func(), error) {
	noop := func() {}
	var req MatchRequest

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.log.Errorf("Failed to parse form: %v", err)
		return req, noop, errors.New("failed to parse form data")
	}

	req.Root = r.FormValue("root")
	for _, f := range []struct {
		name string
		dst  **float64
	}{
		{"threshold", &req.Threshold},
		{"percent", &req.Percent},
	} {
		if v := r.FormValue(f.name); v != "" {
			x, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return req, noop, fmt.Errorf("invalid %s %q", f.name, v)
			}
			*f.dst = &x
		}
	}
	if v := r.FormValue("top"); v != "" {
		top, err := strconv.Atoi(v)
		if err != nil {
			return req, noop, fmt.Errorf("invalid top %q", v)
		}
		req.Top = top
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		return req, noop, errors.New("audio file is required")
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	out, err := os.CreateTemp(s.tempDir, "query_*"+ext)
	if err != nil {
		s.log.Errorf("Failed to create temp file: %v", err)
		return req, noop, errors.New("failed to process upload")
	}
	cleanup := func() { os.Remove(out.Name()) }

	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		cleanup()
		s.log.Errorf("Failed to save upload: %v", err)
		return req, noop, errors.New("failed to save uploaded file")
	}
	if err := out.Close(); err != nil {
		cleanup()
		return req, noop, errors.New("failed to save uploaded file")
	}

	s.log.Debugf("Stored upload %s as %s", header.Filename, out.Name())
	req.Query = out.Name()
	return req, cleanup, nil
}

func (s *Server) checkRoot(root string) error {
	if err := s.allowed(root); err != nil {
		return err
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root %s is not a directory", root)
	}
	return nil
}

// checkQuery skips the allow-list for uploads, which live in the temp dir.
func (s *Server) checkQuery(query string, uploaded bool) error {
	if !uploaded {
		if err := s.allowed(query); err != nil {
			return err
		}
	}
	info, err := os.Stat(query)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("query %s is a directory", query)
	}
	return nil
}

// allowed reports whether path lies inside one of the configured roots once
// symlinks on both sides are resolved. An empty list allows everything.
func (s *Server) allowed(path string) error {
	roots := s.config.Server.AllowedRoots
	if len(roots) == 0 {
		return nil
	}
	resolved, err := resolvePath(path)
	if err != nil {
		return err
	}
	for _, root := range roots {
		realRoot, err := resolvePath(root)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(realRoot, resolved)
		if err != nil {
			continue
		}
		if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", errPathNotAllowed, path)
}

// resolvePath makes p absolute and follows symlinks through the part of it
// that exists. A missing tail is joined back unresolved.
func resolvePath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}
	parent := filepath.Dir(abs)
	if parent == abs {
		return abs, nil
	}
	realParent, err := resolvePath(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(realParent, filepath.Base(abs)), nil
}

func pathErrorStatus(err error) int {
	switch {
	case errors.Is(err, errPathNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}
