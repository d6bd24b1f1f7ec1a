package features

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/himanishpuri/SampleFinder/pkg/samplefinder/audio/audiotest"
)

func TestWindows(t *testing.T) {
	sizes := []int{128, 256, 512, 2048}

	for _, size := range sizes {
		for name, window := range map[string][]float64{"hann": Hann(size), "hamming": Hamming(size)} {
			if len(window) != size {
				t.Errorf("%s: expected window size %d, got %d", name, size, len(window))
			}
			for i, val := range window {
				if val < 0 || val > 1 {
					t.Errorf("%s: value %d out of range [0,1]: %f", name, i, val)
				}
			}
			if window[0] >= window[size/2] {
				t.Errorf("%s: window should be lower at edges", name)
			}
		}
	}

	if h := Hann(8); h[0] != 0 || math.Abs(h[4]-1) > 1e-12 {
		t.Errorf("periodic hann endpoints wrong: %v", h)
	}
}

func TestMagnitudeSpectrum(t *testing.T) {
	spectrum := []complex128{
		complex(1.0, 0.0),
		complex(0.0, 1.0),
		complex(3.0, 4.0),
		complex(0.0, 1.0),
	}

	mag := MagnitudeSpectrum(spectrum)
	want := []float64{1, 1, 5}
	if len(mag) != len(want) {
		t.Fatalf("expected %d bins, got %d", len(want), len(mag))
	}
	for i := range want {
		if math.Abs(mag[i]-want[i]) > 1e-12 {
			t.Errorf("bin %d = %f, want %f", i, mag[i], want[i])
		}
	}
}

func TestSpectrogramPeak(t *testing.T) {
	const (
		rate = 8000
		size = 256
		hop  = 128
	)
	samples := audiotest.Tone(1000, rate, 0.25)

	spec, err := Spectrogram(samples, size, hop, Hann(size))
	if err != nil {
		t.Fatalf("Spectrogram failed: %v", err)
	}
	if len(spec) != NumFrames(len(samples), size, hop) {
		t.Errorf("got %d frames, want %d", len(spec), NumFrames(len(samples), size, hop))
	}

	wantBin := 1000 * size / rate
	for f, frame := range spec {
		if len(frame) != size/2+1 {
			t.Fatalf("frame %d has %d bins, want %d", f, len(frame), size/2+1)
		}
		peak := 0
		for b := range frame {
			if frame[b] > frame[peak] {
				peak = b
			}
		}
		if peak != wantBin {
			t.Errorf("frame %d peaks at bin %d, want %d", f, peak, wantBin)
		}
	}
}

func TestSpectrogramErrors(t *testing.T) {
	if _, err := Spectrogram(make([]float64, 100), 256, 128, Hann(256)); err == nil {
		t.Error("expected error for input shorter than window")
	}
	if _, err := Spectrogram(make([]float64, 1000), 256, 128, Hann(128)); err == nil {
		t.Error("expected error for mismatched window")
	}
	if _, err := Spectrogram(make([]float64, 1000), 256, 0, Hann(256)); err == nil {
		t.Error("expected error for zero hop")
	}
}

func TestMelScaleRoundTrip(t *testing.T) {
	for _, htk := range []bool{false, true} {
		for _, hz := range []float64{0, 100, 440, 1000, 4000, 11025} {
			back := melToHz(hzToMel(hz, htk), htk)
			if math.Abs(back-hz) > 1e-6 {
				t.Errorf("htk=%t: %f Hz round-tripped to %f", htk, hz, back)
			}
		}
	}

	if got := hzToMel(1000, false); math.Abs(got-15) > 1e-12 {
		t.Errorf("slaney mel(1000) = %f, want 15", got)
	}
	if got := hzToMel(1000, true); math.Abs(got-1000) > 0.1 {
		t.Errorf("htk mel(1000) = %f, want ~1000", got)
	}
}

func TestMelFilterBank(t *testing.T) {
	bank := melFilterBank(22050, 2048, 40, 0, 11025, false)
	rows, cols := bank.Dims()
	if rows != 40 || cols != 1025 {
		t.Fatalf("bank dims = %dx%d, want 40x1025", rows, cols)
	}
	for m := 0; m < rows; m++ {
		sum := 0.0
		for b := 0; b < cols; b++ {
			v := bank.At(m, b)
			if v < 0 {
				t.Fatalf("filter %d bin %d negative: %f", m, b, v)
			}
			sum += v
		}
		if sum == 0 {
			t.Errorf("filter %d is empty", m)
		}
	}
}

func TestDCTOrthonormal(t *testing.T) {
	d := dctMatrix(13, 128)
	var gram mat.Dense
	gram.Mul(d, d.T())

	for i := 0; i < 13; i++ {
		for j := 0; j < 13; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			if math.Abs(gram.At(i, j)-want) > 1e-9 {
				t.Errorf("gram[%d][%d] = %f, want %f", i, j, gram.At(i, j), want)
			}
		}
	}
}
