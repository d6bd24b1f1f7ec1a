// Package config loads YAML configuration for the samplefinder binaries.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/himanishpuri/SampleFinder/pkg/logger"
	"github.com/himanishpuri/SampleFinder/pkg/samplefinder"
	"github.com/himanishpuri/SampleFinder/pkg/samplefinder/align"
	"github.com/himanishpuri/SampleFinder/pkg/samplefinder/audio"
	"github.com/himanishpuri/SampleFinder/pkg/samplefinder/cache"
	"github.com/himanishpuri/SampleFinder/pkg/samplefinder/features"
)

// Environment variables read by ApplyEnv.
const (
	EnvThreshold = "SAMPLEFINDER_THRESHOLD"
	EnvWorkers   = "SAMPLEFINDER_WORKERS"
	EnvFFmpeg    = "SAMPLEFINDER_FFMPEG"
	EnvFFprobe   = "SAMPLEFINDER_FFPROBE"
	EnvCacheSize = "SAMPLEFINDER_CACHE_SIZE"
	EnvLogLevel  = "LOG_LEVEL"
)

type Config struct {
	LogLevel string `yaml:"log_level"`
	// Threshold is the default minimum similarity, 0..1.
	Threshold  *float64        `yaml:"threshold"`
	Workers    int             `yaml:"workers"`
	Extensions []string        `yaml:"extensions"`
	Decoder    DecoderConfig   `yaml:"decoder"`
	Features   features.Config `yaml:"features"`
	Alignment  AlignmentConfig `yaml:"alignment"`
	Cache      CacheConfig     `yaml:"cache"`
	Server     ServerConfig    `yaml:"server"`
}

type DecoderConfig struct {
	FFmpegPath     string        `yaml:"ffmpeg_path"`
	FFprobePath    string        `yaml:"ffprobe_path"`
	FFmpegFallback *bool         `yaml:"ffmpeg_fallback"`
	ChannelMode    string        `yaml:"channel_mode"`
	Timeout        time.Duration `yaml:"timeout"`
}

// FallbackOrDefault reports whether ffmpeg retries failed native decodes;
// true when unset.
func (d *DecoderConfig) FallbackOrDefault() bool {
	if d.FFmpegFallback != nil {
		return *d.FFmpegFallback
	}
	return true
}

type AlignmentConfig struct {
	Radius int     `yaml:"radius"`
	Norm   float64 `yaml:"norm"`
}

// CacheConfig sizes the in-memory fingerprint cache. Size 0 disables it.
type CacheConfig struct {
	Size int `yaml:"size"`
}

type ServerConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
	// AllowedRoots restricts which directories clients may scan. Empty
	// allows any.
	AllowedRoots []string `yaml:"allowed_roots"`
}

// CORSOrigins splits the comma-separated CORSOrigin list.
func (s ServerConfig) CORSOrigins() []string {
	var out []string
	for _, o := range strings.Split(s.CORSOrigin, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// Load reads path, applies defaults and environment overrides, and validates.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	ApplyDefaults(&cfg)
	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides cfg from SAMPLEFINDER_* variables and LOG_LEVEL.
func ApplyEnv(cfg *Config) error {
	if v := os.Getenv(EnvThreshold); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvThreshold, err)
		}
		cfg.Threshold = &f
	}
	if v := os.Getenv(EnvWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvWorkers, err)
		}
		cfg.Workers = n
	}
	if v := os.Getenv(EnvCacheSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvCacheSize, err)
		}
		cfg.Cache.Size = n
	}
	if v := os.Getenv(EnvFFmpeg); v != "" {
		cfg.Decoder.FFmpegPath = v
	}
	if v := os.Getenv(EnvFFprobe); v != "" {
		cfg.Decoder.FFprobePath = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.ThresholdValue(); err != nil {
		errs = append(errs, err)
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must be >= 0, got %d", c.Workers))
	}
	if c.Cache.Size < 0 {
		errs = append(errs, fmt.Errorf("cache.size must be >= 0, got %d", c.Cache.Size))
	}
	if _, err := audio.ParseChannelMode(c.Decoder.ChannelMode); err != nil {
		errs = append(errs, err)
	}
	if err := c.Features.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.aligner().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	return errors.Join(errs...)
}

func (c *Config) ThresholdValue() (samplefinder.Threshold, error) {
	if c.Threshold == nil {
		return samplefinder.DefaultThreshold(), nil
	}
	return samplefinder.NewThreshold(*c.Threshold)
}

// Level is the parsed log level, INFO when invalid.
func (c *Config) Level() logger.LogLevel {
	lvl, _ := logger.ParseLevel(c.LogLevel)
	return lvl
}

func (c *Config) aligner() align.Aligner {
	return align.Aligner{Radius: c.Alignment.Radius, Norm: c.Alignment.Norm}
}

// DecoderOptions converts the decoder section for audio.NewDecoder.
func (c *Config) DecoderOptions(log audio.Logger) audio.Options {
	mode, _ := audio.ParseChannelMode(c.Decoder.ChannelMode)
	return audio.Options{
		ChannelMode:    mode,
		FFmpegPath:     c.Decoder.FFmpegPath,
		FFprobePath:    c.Decoder.FFprobePath,
		FFmpegFallback: c.Decoder.FallbackOrDefault(),
		Timeout:        c.Decoder.Timeout,
		Logger:         log,
	}
}

// FinderOptions builds the samplefinder options this configuration
// describes.
func (c *Config) FinderOptions(log samplefinder.Logger) []samplefinder.Option {
	opts := []samplefinder.Option{
		samplefinder.WithLogger(log),
		samplefinder.WithWorkers(c.Workers),
		samplefinder.WithFeatureConfig(c.Features),
		samplefinder.WithAlignment(c.aligner()),
		samplefinder.WithExtensions(c.Extensions...),
		samplefinder.WithDecoder(audio.NewDecoder(c.DecoderOptions(log))),
	}
	if c.Cache.Size > 0 {
		opts = append(opts, samplefinder.WithCache(cache.New(c.Cache.Size)))
	}
	if len(c.Server.AllowedRoots) > 0 {
		opts = append(opts, samplefinder.WithConfinedLinks())
	}
	return opts
}
