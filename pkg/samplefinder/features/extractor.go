// Package features turns mono sample buffers into MFCC sequences: one vector
// of cepstral coefficients per short analysis frame.
package features

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	WindowHann    = "hann"
	WindowHamming = "hamming"

	// amin keeps log10 away from zero when converting power to dB.
	amin = 1e-10
)

var (
	ErrTooShort          = errors.New("buffer shorter than one analysis window")
	ErrBadSampleRate     = errors.New("sample rate must be positive")
	ErrNonFinite         = errors.New("samples contain NaN or Inf")
	ErrBadFrequencyRange = errors.New("mel frequency range is empty")
	ErrInvalidConfig     = errors.New("invalid feature config")
)

// ExtractionError reports a buffer that produced no feature sequence.
type ExtractionError struct {
	Samples    int
	SampleRate int
	Err        error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract features (%d samples @ %d Hz): %v", e.Samples, e.SampleRate, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Sequence is frames x coefficients.
type Sequence [][]float64

func (s Sequence) Frames() int { return len(s) }

// Dim is the per-frame coefficient count, 0 for an empty sequence.
func (s Sequence) Dim() int {
	if len(s) == 0 {
		return 0
	}
	return len(s[0])
}

type Config struct {
	NumCoefficients int     `yaml:"num_coefficients" json:"num_coefficients"`
	WindowSize      int     `yaml:"window_size" json:"window_size"`
	HopSize         int     `yaml:"hop_size" json:"hop_size"`
	NumMelBands     int     `yaml:"num_mel_bands" json:"num_mel_bands"`
	MinFreq         float64 `yaml:"min_freq" json:"min_freq"`
	// MaxFreq of 0 means Nyquist. Values above Nyquist are clamped.
	MaxFreq float64 `yaml:"max_freq" json:"max_freq"`
	// TopDB floors the log-mel spectrogram this far below its peak. 0 disables.
	TopDB  float64 `yaml:"top_db" json:"top_db"`
	Window string  `yaml:"window" json:"window"`
	HTK    bool    `yaml:"htk" json:"htk"`
	// Center zero-pads WindowSize/2 samples on both ends so frames are
	// centred on multiples of HopSize and clips shorter than one window still
	// yield frames.
	Center bool `yaml:"center" json:"center"`
}

func DefaultConfig() Config {
	return Config{
		NumCoefficients: 13,
		WindowSize:      2048,
		HopSize:         512,
		NumMelBands:     128,
		TopDB:           80,
		Window:          WindowHann,
	}
}

func (c Config) Validate() error {
	switch {
	case c.NumCoefficients <= 0:
		return fmt.Errorf("%w: num_coefficients must be positive, got %d", ErrInvalidConfig, c.NumCoefficients)
	case c.WindowSize < 2:
		return fmt.Errorf("%w: window_size must be at least 2, got %d", ErrInvalidConfig, c.WindowSize)
	case c.HopSize <= 0:
		return fmt.Errorf("%w: hop_size must be positive, got %d", ErrInvalidConfig, c.HopSize)
	case c.NumMelBands <= 0:
		return fmt.Errorf("%w: num_mel_bands must be positive, got %d", ErrInvalidConfig, c.NumMelBands)
	case c.NumCoefficients > c.NumMelBands:
		return fmt.Errorf("%w: num_coefficients (%d) exceeds num_mel_bands (%d)", ErrInvalidConfig, c.NumCoefficients, c.NumMelBands)
	case c.MinFreq < 0 || c.MaxFreq < 0:
		return fmt.Errorf("%w: frequencies must be non-negative", ErrInvalidConfig)
	case c.MaxFreq > 0 && c.MinFreq >= c.MaxFreq:
		return fmt.Errorf("%w: min_freq %g >= max_freq %g", ErrInvalidConfig, c.MinFreq, c.MaxFreq)
	case c.TopDB < 0:
		return fmt.Errorf("%w: top_db must be non-negative", ErrInvalidConfig)
	}
	if _, ok := windowByName(c.Window, 1); !ok {
		return fmt.Errorf("%w: unknown window %q", ErrInvalidConfig, c.Window)
	}
	return nil
}

// Signature identifies every parameter that affects the output, so cached
// sequences from one configuration are never served to another.
func (c Config) Signature() string {
	window := c.Window
	if window == "" {
		window = WindowHann
	}
	return fmt.Sprintf("mfcc/v1 n=%d win=%d hop=%d mels=%d fmin=%g fmax=%g topdb=%g window=%s htk=%t center=%t",
		c.NumCoefficients, c.WindowSize, c.HopSize, c.NumMelBands, c.MinFreq, c.MaxFreq, c.TopDB, window, c.HTK, c.Center)
}

// Extractor computes MFCC sequences. It is safe for concurrent use; mel filter
// banks are built once per sample rate and shared.
type Extractor struct {
	cfg    Config
	window []float64
	dct    *mat.Dense

	mu    sync.Mutex
	banks map[int]*mat.Dense
}

func NewExtractor(cfg Config) (*Extractor, error) {
	if cfg.Window == "" {
		cfg.Window = WindowHann
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	window, _ := windowByName(cfg.Window, cfg.WindowSize)
	return &Extractor{
		cfg:    cfg,
		window: window,
		dct:    dctMatrix(cfg.NumCoefficients, cfg.NumMelBands),
		banks:  make(map[int]*mat.Dense),
	}, nil
}

func (e *Extractor) Config() Config { return e.cfg }

// Signature is Config().Signature().
func (e *Extractor) Signature() string { return e.cfg.Signature() }

// Extract returns 1 + (len(samples)-WindowSize)/HopSize frames of
// NumCoefficients values each, counted on the padded buffer when Center is
// set. Errors are *ExtractionError.
func (e *Extractor) Extract(samples []float64, sampleRate int) (Sequence, error) {
	n := len(samples)
	fail := func(err error) (Sequence, error) {
		return nil, &ExtractionError{Samples: n, SampleRate: sampleRate, Err: err}
	}

	pad := 0
	if e.cfg.Center {
		pad = e.cfg.WindowSize / 2
	}

	if sampleRate <= 0 {
		return fail(ErrBadSampleRate)
	}
	if n == 0 || n+2*pad < e.cfg.WindowSize {
		return fail(ErrTooShort)
	}
	for _, v := range samples {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fail(ErrNonFinite)
		}
	}
	if pad > 0 {
		padded := make([]float64, n+2*pad)
		copy(padded[pad:], samples)
		samples = padded
	}

	bank, err := e.filterBank(sampleRate)
	if err != nil {
		return fail(err)
	}

	power := powerSpectrogram(samples, e.cfg.WindowSize, e.cfg.HopSize, e.window)

	var melSpec mat.Dense
	melSpec.Mul(power, bank.T())

	db := melSpec.RawMatrix().Data
	for i, v := range db {
		db[i] = 10 * math.Log10(math.Max(amin, v))
	}
	if e.cfg.TopDB > 0 {
		floor := floats.Max(db) - e.cfg.TopDB
		for i, v := range db {
			if v < floor {
				db[i] = floor
			}
		}
	}

	var coeffs mat.Dense
	coeffs.Mul(&melSpec, e.dct.T())

	frames, _ := coeffs.Dims()
	seq := make(Sequence, frames)
	for i := range seq {
		seq[i] = mat.Row(nil, i, &coeffs)
	}
	return seq, nil
}

func (e *Extractor) filterBank(sampleRate int) (*mat.Dense, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if bank, ok := e.banks[sampleRate]; ok {
		return bank, nil
	}

	nyquist := float64(sampleRate) / 2
	fMax := e.cfg.MaxFreq
	if fMax <= 0 || fMax > nyquist {
		fMax = nyquist
	}
	if e.cfg.MinFreq >= fMax {
		return nil, fmt.Errorf("%w: [%g, %g] Hz at %d Hz", ErrBadFrequencyRange, e.cfg.MinFreq, fMax, sampleRate)
	}

	bank := melFilterBank(sampleRate, e.cfg.WindowSize, e.cfg.NumMelBands, e.cfg.MinFreq, fMax, e.cfg.HTK)
	e.banks[sampleRate] = bank
	return bank, nil
}
