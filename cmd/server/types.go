package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/himanishpuri/SampleFinder/pkg/samplefinder"
	"github.com/himanishpuri/SampleFinder/pkg/samplefinder/cache"
)

// MaxTop caps how many matches a single response carries.
const MaxTop = 1000

// MatchRequest is the JSON body for POST /api/match and /api/match/stream.
// Paths refer to the server's filesystem.
type MatchRequest struct {
	Query string `json:"query"`
	Root  string `json:"root"`

	// Threshold (0..1) and Percent (0..100) are alternatives. With neither
	// set the configured default applies.
	Threshold *float64 `json:"threshold,omitempty"`
	Percent   *float64 `json:"percent,omitempty"`

	// Top limits the returned matches, 0 for all.
	Top int `json:"top,omitempty"`
}

// Validate checks the request and resolves its threshold against def.
func (r *MatchRequest) Validate(def samplefinder.Threshold) (samplefinder.Threshold, error) {
	r.Query = strings.TrimSpace(r.Query)
	r.Root = strings.TrimSpace(r.Root)

	if r.Query == "" {
		return def, errors.New("query is required")
	}
	if r.Root == "" {
		return def, errors.New("root is required")
	}
	if r.Top < 0 || r.Top > MaxTop {
		return def, fmt.Errorf("top must be between 0 and %d", MaxTop)
	}

	switch {
	case r.Threshold != nil && r.Percent != nil:
		return def, errors.New("threshold and percent are mutually exclusive")
	case r.Threshold != nil:
		return samplefinder.NewThreshold(*r.Threshold)
	case r.Percent != nil:
		return samplefinder.ThresholdFromPercent(*r.Percent)
	}
	return def, nil
}

// MatchDTO is a single match in API responses.
type MatchDTO struct {
	Path              string  `json:"path"`
	Similarity        float64 `json:"similarity"`
	SimilarityPercent float64 `json:"similarity_percent"`
	Distance          float64 `json:"distance"`
}

func toMatchDTOs(matches []samplefinder.Match, top int) []MatchDTO {
	if top > 0 && len(matches) > top {
		matches = matches[:top]
	}
	out := make([]MatchDTO, len(matches))
	for i, m := range matches {
		out[i] = MatchDTO{
			Path:              m.Path,
			Similarity:        m.Similarity,
			SimilarityPercent: m.Similarity * 100,
			Distance:          m.Distance,
		}
	}
	return out
}

// MatchResponse is the response for POST /api/match and the final "result"
// event of /api/match/stream.
type MatchResponse struct {
	ScanID    string     `json:"scan_id"`
	Query     string     `json:"query"`
	Root      string     `json:"root"`
	Threshold float64    `json:"threshold"`
	Matches   []MatchDTO `json:"matches"`
	Count     int        `json:"count"`
	ElapsedMs int64      `json:"elapsed_ms"`
}

// ProgressDTO is the payload of a "progress" stream event.
type ProgressDTO struct {
	Processed int     `json:"processed"`
	Total     int     `json:"total"`
	Path      string  `json:"path"`
	Fraction  float64 `json:"fraction"`
}

// EtaDTO is the payload of an "eta" stream event.
type EtaDTO struct {
	Seconds int `json:"seconds"`
}

// ExtensionsResponse is the response for GET /api/extensions
type ExtensionsResponse struct {
	Extensions []string `json:"extensions"`
}

// MetricsResponse provides server health and scan settings
type MetricsResponse struct {
	Status       string       `json:"status"`
	Workers      int          `json:"workers"`
	Extensions   []string     `json:"extensions"`
	AllowedRoots []string     `json:"allowed_roots,omitempty"`
	ActiveScans  int64        `json:"active_scans"`
	Cache        *cache.Stats `json:"cache,omitempty"`
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
