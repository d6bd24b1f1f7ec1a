package samplefinder

import (
	"runtime"

	"github.com/himanishpuri/SampleFinder/pkg/samplefinder/align"
	"github.com/himanishpuri/SampleFinder/pkg/samplefinder/audio"
	"github.com/himanishpuri/SampleFinder/pkg/samplefinder/cache"
	"github.com/himanishpuri/SampleFinder/pkg/samplefinder/features"
)

type Config struct {
	Workers    int
	Features   features.Config
	Aligner    align.Aligner
	Extensions []string
	// ConfineLinks skips scanned symlinks that resolve outside the root.
	ConfineLinks bool
	Cache        *cache.Cache
	Decoder      *audio.Decoder
	Logger       Logger
	Recorder     Recorder
}

type Option func(*Config)

// WithWorkers sets how many candidates are processed concurrently. Values
// below 1 mean runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(c *Config) {
		c.Workers = n
	}
}

func WithFeatureConfig(fc features.Config) Option {
	return func(c *Config) {
		c.Features = fc
	}
}

func WithAlignment(a align.Aligner) Option {
	return func(c *Config) {
		c.Aligner = a
	}
}

func WithExtensions(exts ...string) Option {
	return func(c *Config) {
		c.Extensions = exts
	}
}

// WithConfinedLinks keeps scans from following file symlinks out of the
// scanned directory.
func WithConfinedLinks() Option {
	return func(c *Config) {
		c.ConfineLinks = true
	}
}

// WithCache reuses feature sequences across scans of the same process.
func WithCache(fc *cache.Cache) Option {
	return func(c *Config) {
		c.Cache = fc
	}
}

func WithDecoder(d *audio.Decoder) Option {
	return func(c *Config) {
		c.Decoder = d
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func WithRecorder(r Recorder) Option {
	return func(c *Config) {
		c.Recorder = r
	}
}

func defaultConfig() *Config {
	return &Config{
		Workers:  runtime.NumCPU(),
		Features: features.DefaultConfig(),
		Aligner:  align.DefaultAligner(),
	}
}
