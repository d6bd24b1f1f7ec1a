package features

import "math"

// Hann returns a periodic Hann window of length n, the variant used for
// spectral analysis.
func Hann(n int) []float64 {
	w := make([]float64, n)
	for i := 0; i < n; i++ {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// Hamming returns a Hamming window of length n.
func Hamming(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := 0; i < n; i++ {
		// 0.54 - 0.46*cos(2*pi*n/(N-1))
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

func windowByName(name string, n int) ([]float64, bool) {
	switch name {
	case WindowHann, "":
		return Hann(n), true
	case WindowHamming:
		return Hamming(n), true
	default:
		return nil, false
	}
}
