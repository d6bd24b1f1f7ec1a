package samplefinder

import (
	"context"
	"time"

	"github.com/himanishpuri/SampleFinder/pkg/samplefinder/cache"
	"github.com/himanishpuri/SampleFinder/pkg/samplefinder/features"
)

// Service is what the binaries depend on. *Finder implements it.
type Service interface {
	FindMatches(ctx context.Context, queryPath, root string, threshold Threshold, events chan<- Event) ([]Match, error)
	Start(ctx context.Context, queryPath, root string, threshold Threshold) *Scan
	Compare(ctx context.Context, a, b string) (float64, error)
	Fingerprint(ctx context.Context, path string) (features.Sequence, error)
	Extensions() []string
	Workers() int
	CacheStats() (cache.Stats, bool)
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}

// Recorder receives per-candidate and per-scan measurements.
type Recorder interface {
	CandidateProcessed(outcome Outcome, elapsed time.Duration)
	ScanCompleted(total, matched int, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) CandidateProcessed(Outcome, time.Duration) {}
func (nopRecorder) ScanCompleted(int, int, time.Duration)     {}
