package main

import (
	"fmt"

	"github.com/himanishpuri/SampleFinder/pkg/samplefinder"
	"github.com/himanishpuri/SampleFinder/pkg/samplefinder/align"
	"github.com/himanishpuri/SampleFinder/pkg/samplefinder/audio"
	"github.com/himanishpuri/SampleFinder/pkg/samplefinder/features"
)

// Error codes returned to JavaScript
const (
	ErrorNone = iota
	ErrorInvalidArgs
	ErrorExtraction
	ErrorAlignment
)

// clip is raw interleaved PCM handed over from the browser.
type clip struct {
	samples    []float64
	sampleRate int
	channels   int
}

func (c clip) validate(name string) error {
	if c.sampleRate <= 0 {
		return fmt.Errorf("%s: invalid sample rate: %d", name, c.sampleRate)
	}
	if c.channels < 1 {
		return fmt.Errorf("%s: invalid channel count: %d", name, c.channels)
	}
	if len(c.samples) == 0 {
		return fmt.Errorf("%s: audio array is empty", name)
	}
	return nil
}

type comparison struct {
	Distance   float64
	Similarity float64
}

// comparer holds the extractor so the mel filter banks survive across calls.
type comparer struct {
	extractor *features.Extractor
	aligner   align.Aligner
}

func newComparer() (*comparer, error) {
	ex, err := features.NewExtractor(features.DefaultConfig())
	if err != nil {
		return nil, err
	}
	return &comparer{extractor: ex}, nil
}

// compare returns an error code alongside any error so the JS side can tell
// bad input from processing failures.
func (c *comparer) compare(a, b clip) (comparison, int, error) {
	if err := a.validate("a"); err != nil {
		return comparison{}, ErrorInvalidArgs, err
	}
	if err := b.validate("b"); err != nil {
		return comparison{}, ErrorInvalidArgs, err
	}

	seqs := make([]features.Sequence, 2)
	for i, in := range []clip{a, b} {
		mono, err := audio.ToMono(in.samples, in.channels, audio.MixDown)
		if err != nil {
			return comparison{}, ErrorInvalidArgs, err
		}
		seq, err := c.extractor.Extract(mono, in.sampleRate)
		if err != nil {
			return comparison{}, ErrorExtraction, fmt.Errorf("failed to extract features: %w", err)
		}
		seqs[i] = seq
	}

	d, err := c.aligner.Distance(seqs[0], seqs[1])
	if err != nil {
		return comparison{}, ErrorAlignment, fmt.Errorf("failed to align: %w", err)
	}
	return comparison{Distance: d, Similarity: samplefinder.Similarity(d)}, ErrorNone, nil
}
