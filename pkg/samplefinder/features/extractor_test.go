package features

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/himanishpuri/SampleFinder/pkg/samplefinder/audio/audiotest"
)

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	e, err := NewExtractor(DefaultConfig())
	if err != nil {
		t.Fatalf("NewExtractor failed: %v", err)
	}
	return e
}

func TestExtractShape(t *testing.T) {
	e := newTestExtractor(t)

	tests := []struct {
		name    string
		samples int
	}{
		{"exactly one window", 2048},
		{"one hop more", 2048 + 512},
		{"one second at 22050", 22050},
		{"partial trailing hop", 2048 + 511},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			samples := audiotest.Tone(440, 22050, 1.0)[:tt.samples]
			seq, err := e.Extract(samples, 22050)
			if err != nil {
				t.Fatalf("Extract failed: %v", err)
			}

			wantFrames := 1 + (tt.samples-2048)/512
			if seq.Frames() != wantFrames {
				t.Errorf("Frames = %d, want %d", seq.Frames(), wantFrames)
			}
			for i, frame := range seq {
				if len(frame) != 13 {
					t.Fatalf("frame %d has %d coefficients, want 13", i, len(frame))
				}
				for j, v := range frame {
					if math.IsNaN(v) || math.IsInf(v, 0) {
						t.Fatalf("frame %d coefficient %d is %v", i, j, v)
					}
				}
			}
			if seq.Dim() != 13 {
				t.Errorf("Dim = %d, want 13", seq.Dim())
			}
		})
	}
}

func TestExtractErrors(t *testing.T) {
	e := newTestExtractor(t)

	nan := make([]float64, 4096)
	nan[100] = math.NaN()

	tests := []struct {
		name    string
		samples []float64
		rate    int
		want    error
	}{
		{"too short", make([]float64, 2047), 44100, ErrTooShort},
		{"empty", nil, 44100, ErrTooShort},
		{"zero rate", make([]float64, 4096), 0, ErrBadSampleRate},
		{"negative rate", make([]float64, 4096), -8000, ErrBadSampleRate},
		{"nan sample", nan, 44100, ErrNonFinite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Extract(tt.samples, tt.rate)
			var ee *ExtractionError
			if !errors.As(err, &ee) {
				t.Fatalf("expected *ExtractionError, got %T: %v", err, err)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("error %v does not wrap %v", err, tt.want)
			}
			if ee.Samples != len(tt.samples) {
				t.Errorf("ExtractionError.Samples = %d, want %d", ee.Samples, len(tt.samples))
			}
		})
	}
}

func TestExtractDeterministic(t *testing.T) {
	e := newTestExtractor(t)
	samples := audiotest.Chord([]float64{220, 330, 440}, 16000, 0.5)

	a, err := e.Extract(samples, 16000)
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.Extract(samples, 16000)
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				t.Fatalf("frame %d coefficient %d differs: %v vs %v", i, j, a[i][j], b[i][j])
			}
		}
	}
}

func TestExtractDistinguishesTimbre(t *testing.T) {
	e := newTestExtractor(t)

	tone, err := e.Extract(audiotest.Tone(440, 22050, 0.5), 22050)
	if err != nil {
		t.Fatal(err)
	}
	noise, err := e.Extract(audiotest.Noise(7, 22050, 0.5), 22050)
	if err != nil {
		t.Fatal(err)
	}

	diff := 0.0
	for i := range tone {
		for j := range tone[i] {
			diff += math.Abs(tone[i][j] - noise[i][j])
		}
	}
	if diff == 0 {
		t.Error("tone and noise produced identical coefficients")
	}
}

func TestExtractConcurrentSampleRates(t *testing.T) {
	e := newTestExtractor(t)
	rates := []int{8000, 16000, 22050, 44100, 48000}

	var wg sync.WaitGroup
	errs := make(chan error, len(rates)*4)
	for i := 0; i < 4; i++ {
		for _, rate := range rates {
			wg.Add(1)
			go func(rate int) {
				defer wg.Done()
				if _, err := e.Extract(audiotest.Tone(440, rate, 0.3), rate); err != nil {
					errs <- err
				}
			}(rate)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent Extract failed: %v", err)
	}

	if len(e.banks) != len(rates) {
		t.Errorf("cached %d filter banks, want %d", len(e.banks), len(rates))
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		ok     bool
	}{
		{"default", func(*Config) {}, true},
		{"hamming", func(c *Config) { c.Window = WindowHamming }, true},
		{"zero coefficients", func(c *Config) { c.NumCoefficients = 0 }, false},
		{"more coefficients than bands", func(c *Config) { c.NumCoefficients = 200 }, false},
		{"zero hop", func(c *Config) { c.HopSize = 0 }, false},
		{"tiny window", func(c *Config) { c.WindowSize = 1 }, false},
		{"inverted range", func(c *Config) { c.MinFreq = 5000; c.MaxFreq = 1000 }, false},
		{"negative top db", func(c *Config) { c.TopDB = -1 }, false},
		{"unknown window", func(c *Config) { c.Window = "blackman" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestSignatureTracksConfig(t *testing.T) {
	a := DefaultConfig()
	b := DefaultConfig()
	if a.Signature() != b.Signature() {
		t.Error("equal configs have different signatures")
	}
	b.HopSize = 256
	if a.Signature() == b.Signature() {
		t.Error("hop size change not reflected in signature")
	}
	c := DefaultConfig()
	c.Window = ""
	if a.Signature() != c.Signature() {
		t.Error("empty window should sign as hann")
	}
	d := DefaultConfig()
	d.Center = true
	if a.Signature() == d.Signature() {
		t.Error("center padding not reflected in signature")
	}
}

func TestExtractCenter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Center = true
	e, err := NewExtractor(cfg)
	if err != nil {
		t.Fatal(err)
	}

	const rate = 44100
	// A 30 ms one-shot is shorter than one 2048-sample window.
	hit := audiotest.Tone(880, rate, 0.03)
	if len(hit) >= cfg.WindowSize {
		t.Fatalf("clip has %d samples, want fewer than %d", len(hit), cfg.WindowSize)
	}

	if _, err := newTestExtractor(t).Extract(hit, rate); !errors.Is(err, ErrTooShort) {
		t.Errorf("uncentred Extract error = %v, want ErrTooShort", err)
	}

	seq, err := e.Extract(hit, rate)
	if err != nil {
		t.Fatalf("centred Extract failed: %v", err)
	}
	if want := 1 + len(hit)/cfg.HopSize; seq.Frames() != want {
		t.Errorf("Frames = %d, want %d", seq.Frames(), want)
	}

	full := audiotest.Tone(440, rate, 1)
	seq, err = e.Extract(full, rate)
	if err != nil {
		t.Fatal(err)
	}
	if want := 1 + len(full)/cfg.HopSize; seq.Frames() != want {
		t.Errorf("Frames = %d, want %d for a full second", seq.Frames(), want)
	}

	var ee *ExtractionError
	if _, err := e.Extract(nil, rate); !errors.Is(err, ErrTooShort) || !errors.As(err, &ee) || ee.Samples != 0 {
		t.Errorf("empty buffer error = %v, want ErrTooShort with 0 samples", err)
	}
}

func TestMinFreqAboveNyquist(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinFreq = 6000
	e, err := NewExtractor(cfg)
	if err != nil {
		t.Fatal(err)
	}
	_, err = e.Extract(make([]float64, 4096), 8000)
	if !errors.Is(err, ErrBadFrequencyRange) {
		t.Errorf("expected ErrBadFrequencyRange, got %v", err)
	}
}
