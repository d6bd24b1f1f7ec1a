// Package render draws decoded clips as spectrogram images.
package render

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"os"
	"path/filepath"

	"github.com/eligwz/spectrogram"
)

var ErrNoSamples = errors.New("no samples to render")

type Options struct {
	Width  int
	Height int
	// Log scales magnitudes logarithmically.
	Log bool
}

func DefaultOptions() Options {
	return Options{Width: 2048, Height: 512}
}

func (o Options) validate() error {
	if o.Width <= 0 || o.Height <= 0 {
		return fmt.Errorf("invalid image size %dx%d", o.Width, o.Height)
	}
	return nil
}

// SpectrogramPNG draws the magnitude spectrogram of a mono clip and writes it
// to outPath as PNG, creating parent directories as needed.
func SpectrogramPNG(samples []float64, sampleRate int, outPath string, opts Options) error {
	if len(samples) == 0 {
		return ErrNoSamples
	}
	if sampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	if err := opts.validate(); err != nil {
		return err
	}

	img := spectrogram.NewImage128(image.Rect(0, 0, opts.Width, opts.Height))
	black := spectrogram.ParseColor("000000")
	draw.Draw(img, img.Bounds(), image.NewUniform(black), image.Point{}, draw.Src)

	// Hamming window, FFT, magnitude.
	spectrogram.Drawfft(
		img,
		samples,
		uint32(sampleRate),
		uint32(opts.Height),
		false,
		false,
		true,
		opts.Log,
	)

	if dir := filepath.Dir(outPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := spectrogram.SavePng(img, outPath); err != nil {
		return fmt.Errorf("save png: %w", err)
	}
	return nil
}
