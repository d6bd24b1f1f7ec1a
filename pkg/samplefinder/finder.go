// Package samplefinder ranks the audio files under a directory by how closely
// they resemble a query clip.
//
// Each file is decoded at its native rate, reduced to an MFCC sequence and
// aligned against the query with FastDTW. The alignment distance d becomes a
// similarity of 1-d, and files scoring at or above a threshold are returned
// best first.
package samplefinder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/himanishpuri/SampleFinder/pkg/logger"
	"github.com/himanishpuri/SampleFinder/pkg/samplefinder/align"
	"github.com/himanishpuri/SampleFinder/pkg/samplefinder/audio"
	"github.com/himanishpuri/SampleFinder/pkg/samplefinder/cache"
	"github.com/himanishpuri/SampleFinder/pkg/samplefinder/features"
	"github.com/himanishpuri/SampleFinder/pkg/samplefinder/scanner"
)

var _ Service = (*Finder)(nil)

// Finder is safe for concurrent use; several scans may run at once.
type Finder struct {
	cfg       *Config
	log       Logger
	rec       Recorder
	decoder   *audio.Decoder
	extractor *features.Extractor
	scanner   *scanner.Scanner
	aligner   align.Aligner
	cache     *cache.Cache
}

func NewFinder(opts ...Option) (*Finder, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	if cfg.Workers < 1 {
		cfg.Workers = defaultConfig().Workers
	}
	if cfg.Decoder == nil {
		decOpts := audio.DefaultOptions()
		decOpts.Logger = cfg.Logger
		cfg.Decoder = audio.NewDecoder(decOpts)
	}
	if err := cfg.Aligner.Validate(); err != nil {
		return nil, err
	}

	extractor, err := features.NewExtractor(cfg.Features)
	if err != nil {
		return nil, fmt.Errorf("feature extractor: %w", err)
	}

	return &Finder{
		cfg:       cfg,
		log:       cfg.Logger,
		rec:       cfg.Recorder,
		decoder:   cfg.Decoder,
		extractor: extractor,
		scanner:   newScanner(cfg),
		aligner:   cfg.Aligner,
		cache:     cfg.Cache,
	}, nil
}

func newScanner(cfg *Config) *scanner.Scanner {
	var opts []scanner.Option
	if cfg.ConfineLinks {
		opts = append(opts, scanner.ConfineLinks())
	}
	return scanner.New(cfg.Extensions, cfg.Logger, opts...)
}

// Extensions lists the file types a scan considers.
func (f *Finder) Extensions() []string { return f.scanner.Extensions() }

// Workers is the number of candidates processed concurrently.
func (f *Finder) Workers() int { return f.cfg.Workers }

// CacheStats reports fingerprint cache counters; ok is false when the finder
// runs without a cache.
func (f *Finder) CacheStats() (stats cache.Stats, ok bool) {
	if f.cache == nil {
		return cache.Stats{}, false
	}
	return f.cache.Stats(), true
}

// Fingerprint decodes path and returns its feature sequence.
func (f *Finder) Fingerprint(ctx context.Context, path string) (features.Sequence, error) {
	seq, _, err := f.fingerprint(ctx, path)
	return seq, err
}

// Compare returns the alignment distance between two files. Unlike a scan it
// reports failures instead of mapping them to +Inf.
func (f *Finder) Compare(ctx context.Context, a, b string) (float64, error) {
	f.log.Debugf("Comparing %s with %s", a, b)

	sa, _, err := f.fingerprint(ctx, a)
	if err != nil {
		return math.Inf(1), err
	}
	sb, _, err := f.fingerprint(ctx, b)
	if err != nil {
		return math.Inf(1), err
	}

	d, err := f.aligner.Distance(sa, sb)
	if err != nil {
		return math.Inf(1), err
	}
	f.log.Debugf("DTW distance between %s and %s: %f", a, b, d)
	return d, nil
}

func (f *Finder) fingerprint(ctx context.Context, path string) (features.Sequence, Outcome, error) {
	var key cache.Key
	cached := false
	if f.cache != nil {
		if k, err := cache.KeyForFile(path, f.extractor.Signature()); err == nil {
			if seq, ok := f.cache.Get(k); ok {
				return seq, "", nil
			}
			key, cached = k, true
		}
	}

	buf, err := f.decoder.Decode(ctx, path)
	if err != nil {
		return nil, OutcomeDecodeError, err
	}

	seq, err := f.extractor.Extract(buf.Samples, buf.SampleRate)
	if err != nil {
		return nil, OutcomeExtractError, fmt.Errorf("%s: %w", path, err)
	}

	if cached {
		f.cache.Put(key, seq)
	}
	return seq, "", nil
}

type scored struct {
	index    int
	path     string
	distance float64
	outcome  Outcome
	elapsed  time.Duration
}

// FindMatches scores every candidate under root against queryPath and returns
// those with similarity >= threshold, best first. Equal scores keep scan
// order.
//
// After each candidate a ProgressEvent and an EtaEvent are sent on events,
// which may be nil. Sends block until received or ctx is done. A directory
// with no candidates produces no events.
//
// Per-file failures never abort the scan: the file scores -Inf and is
// logged. If the query itself cannot be fingerprinted every candidate fails
// and the result is empty. The only error returned is ctx.Err().
func (f *Finder) FindMatches(ctx context.Context, queryPath, root string, threshold Threshold, events chan<- Event) ([]Match, error) {
	began := time.Now()
	f.log.Infof("Finding matches for %s in %s (threshold %s)", queryPath, root, threshold)

	query, _, queryErr := f.fingerprint(ctx, queryPath)
	if queryErr != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f.log.Errorf("Cannot fingerprint query, no candidate can match: %v", queryErr)
	}

	candidates := f.scanner.Scan(ctx, root)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	total := len(candidates)
	f.log.Infof("Scanning %d candidate files with %d workers", total, min(f.cfg.Workers, max(total, 1)))
	if total == 0 {
		f.rec.ScanCompleted(0, 0, time.Since(began))
		return []Match{}, nil
	}

	results := make(chan scored)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.Workers)

	var groupErr error
	go func() {
		defer close(results)
		for i, path := range candidates {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				r := f.score(gctx, query, queryErr, path)
				r.index = i
				select {
				case results <- r:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
		}
		groupErr = g.Wait()
	}()

	loopStart := time.Now()
	matches := make([]scored, 0)
	processed := 0
	for r := range results {
		processed++

		similarity := Similarity(r.distance)
		if r.outcome == "" {
			if threshold.Accepts(similarity) {
				r.outcome = OutcomeMatch
				matches = append(matches, r)
			} else {
				r.outcome = OutcomeBelowThreshold
			}
		}
		f.rec.CandidateProcessed(r.outcome, r.elapsed)
		f.log.Debugf("Similarity score between %s and %s: %.2f%%", queryPath, r.path, similarity*100)

		if ctx.Err() != nil {
			continue
		}
		remaining := total - processed
		eta := time.Duration(float64(time.Since(loopStart)) / float64(processed) * float64(remaining))
		emit(ctx, events, ProgressEvent{Processed: processed, Total: total, Path: r.path})
		emit(ctx, events, EtaEvent{Remaining: eta})
	}

	if err := ctx.Err(); err != nil {
		f.log.Warnf("Scan cancelled after %d of %d files", processed, total)
		return nil, err
	}
	if groupErr != nil && !errors.Is(groupErr, context.Canceled) {
		return nil, groupErr
	}

	sort.Slice(matches, func(a, b int) bool {
		sa, sb := Similarity(matches[a].distance), Similarity(matches[b].distance)
		if sa != sb {
			return sa > sb
		}
		return matches[a].index < matches[b].index
	})

	out := make([]Match, len(matches))
	for i, m := range matches {
		out[i] = Match{Path: m.path, Similarity: Similarity(m.distance), Distance: m.distance}
	}

	elapsed := time.Since(began)
	f.rec.ScanCompleted(total, len(out), elapsed)
	f.log.Infof("Found %d matches among %d files in %s", len(out), total, elapsed.Round(time.Millisecond))
	return out, nil
}

// score aligns one candidate. A non-empty outcome marks a failure; distance
// is then +Inf.
func (f *Finder) score(ctx context.Context, query features.Sequence, queryErr error, path string) scored {
	began := time.Now()
	r := scored{path: path, distance: math.Inf(1)}

	if queryErr != nil {
		r.outcome = OutcomeQueryError
		r.elapsed = time.Since(began)
		return r
	}

	seq, outcome, err := f.fingerprint(ctx, path)
	if err != nil {
		if ctx.Err() == nil {
			f.log.Warnf("Skipping %s: %v", path, err)
		}
		r.outcome = outcome
		r.elapsed = time.Since(began)
		return r
	}

	d, err := f.aligner.Distance(query, seq)
	if err != nil {
		f.log.Warnf("Cannot align %s: %v", path, err)
		r.outcome = OutcomeAlignError
		r.elapsed = time.Since(began)
		return r
	}

	r.distance = d
	r.elapsed = time.Since(began)
	return r
}

func emit(ctx context.Context, events chan<- Event, e Event) {
	if events == nil {
		return
	}
	select {
	case events <- e:
	case <-ctx.Done():
	}
}
