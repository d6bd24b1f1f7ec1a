package features

import (
	"errors"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/mat"
)

// FFTReal wraps the go-dsp FFT and returns the full complex spectrum.
func FFTReal(frame []float64) []complex128 {
	return fft.FFTReal(frame)
}

// MagnitudeSpectrum keeps the non-negative frequencies, DC through Nyquist.
func MagnitudeSpectrum(spectrum []complex128) []float64 {
	bins := len(spectrum)/2 + 1
	mag := make([]float64, bins)
	for i := 0; i < bins; i++ {
		mag[i] = cmplx.Abs(spectrum[i])
	}
	return mag
}

// NumFrames is how many full windows fit in n samples at the given hop.
func NumFrames(n, windowSize, hopSize int) int {
	if n < windowSize || hopSize <= 0 {
		return 0
	}
	return 1 + (n-windowSize)/hopSize
}

// Spectrogram computes the short-time FFT and returns a time-major magnitude
// spectrogram: spectrogram[frame][bin], windowSize/2+1 bins per frame.
func Spectrogram(samples []float64, windowSize, hopSize int, window []float64) ([][]float64, error) {
	if len(window) != windowSize {
		return nil, errors.New("window length must equal windowSize")
	}
	if hopSize <= 0 {
		return nil, errors.New("hop size must be positive")
	}
	if len(samples) < windowSize {
		return nil, ErrTooShort
	}

	frames := NumFrames(len(samples), windowSize, hopSize)
	out := make([][]float64, frames)
	frame := make([]float64, windowSize)
	for f := 0; f < frames; f++ {
		start := f * hopSize
		for i := 0; i < windowSize; i++ {
			frame[i] = samples[start+i] * window[i]
		}
		out[f] = MagnitudeSpectrum(FFTReal(frame))
	}
	return out, nil
}

// powerSpectrogram is Spectrogram squared, laid out as a frames x bins matrix.
func powerSpectrogram(samples []float64, windowSize, hopSize int, window []float64) *mat.Dense {
	frames := NumFrames(len(samples), windowSize, hopSize)
	bins := windowSize/2 + 1
	data := make([]float64, frames*bins)

	frame := make([]float64, windowSize)
	for f := 0; f < frames; f++ {
		start := f * hopSize
		for i := 0; i < windowSize; i++ {
			frame[i] = samples[start+i] * window[i]
		}
		spec := FFTReal(frame)
		row := data[f*bins : (f+1)*bins]
		for b := range row {
			re, im := real(spec[b]), imag(spec[b])
			row[b] = re*re + im*im
		}
	}
	return mat.NewDense(frames, bins, data)
}
