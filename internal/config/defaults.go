package config

import (
	"time"

	"github.com/himanishpuri/SampleFinder/pkg/samplefinder/align"
	"github.com/himanishpuri/SampleFinder/pkg/samplefinder/features"
	"github.com/himanishpuri/SampleFinder/pkg/samplefinder/scanner"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Threshold == nil {
		t := 0.25
		cfg.Threshold = &t
	}
	if cfg.Extensions == nil {
		cfg.Extensions = scanner.DefaultExtensions()
	}

	if cfg.Decoder.FFmpegPath == "" {
		cfg.Decoder.FFmpegPath = "ffmpeg"
	}
	if cfg.Decoder.FFprobePath == "" {
		cfg.Decoder.FFprobePath = "ffprobe"
	}
	if cfg.Decoder.ChannelMode == "" {
		cfg.Decoder.ChannelMode = "mix"
	}
	if cfg.Decoder.Timeout == 0 {
		cfg.Decoder.Timeout = 2 * time.Minute
	}

	def := features.DefaultConfig()
	if cfg.Features.NumCoefficients == 0 {
		cfg.Features.NumCoefficients = def.NumCoefficients
	}
	if cfg.Features.WindowSize == 0 {
		cfg.Features.WindowSize = def.WindowSize
	}
	if cfg.Features.HopSize == 0 {
		cfg.Features.HopSize = def.HopSize
	}
	if cfg.Features.NumMelBands == 0 {
		cfg.Features.NumMelBands = def.NumMelBands
	}
	if cfg.Features.TopDB == 0 {
		cfg.Features.TopDB = def.TopDB
	}
	if cfg.Features.Window == "" {
		cfg.Features.Window = def.Window
	}

	if cfg.Alignment.Radius == 0 {
		cfg.Alignment.Radius = align.DefaultRadius
	}
	if cfg.Alignment.Norm == 0 {
		cfg.Alignment.Norm = align.DefaultNorm
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.CORSOrigin == "" {
		cfg.Server.CORSOrigin = "*"
	}
}
