package features

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Slaney mel scale: linear below 1 kHz, logarithmic above.
const (
	slaneyFSp       = 200.0 / 3
	slaneyMinLogHz  = 1000.0
	slaneyMinLogMel = slaneyMinLogHz / slaneyFSp
)

var slaneyLogStep = math.Log(6.4) / 27

func hzToMel(hz float64, htk bool) float64 {
	if htk {
		return 2595 * math.Log10(1+hz/700)
	}
	if hz < slaneyMinLogHz {
		return hz / slaneyFSp
	}
	return slaneyMinLogMel + math.Log(hz/slaneyMinLogHz)/slaneyLogStep
}

func melToHz(mel float64, htk bool) float64 {
	if htk {
		return 700 * (math.Pow(10, mel/2595) - 1)
	}
	if mel < slaneyMinLogMel {
		return mel * slaneyFSp
	}
	return slaneyMinLogHz * math.Exp(slaneyLogStep*(mel-slaneyMinLogMel))
}

// melFilterBank builds an nMels x (nFFT/2+1) matrix of triangular filters with
// edges evenly spaced in mel between fMin and fMax. Each filter is scaled to
// unit area (Slaney normalisation).
func melFilterBank(sampleRate, nFFT, nMels int, fMin, fMax float64, htk bool) *mat.Dense {
	bins := nFFT/2 + 1
	fftFreqs := make([]float64, bins)
	for i := range fftFreqs {
		fftFreqs[i] = float64(i) * float64(sampleRate) / float64(nFFT)
	}

	lo, hi := hzToMel(fMin, htk), hzToMel(fMax, htk)
	edges := make([]float64, nMels+2)
	for i := range edges {
		edges[i] = melToHz(lo+(hi-lo)*float64(i)/float64(nMels+1), htk)
	}

	bank := mat.NewDense(nMels, bins, nil)
	for m := 0; m < nMels; m++ {
		left, center, right := edges[m], edges[m+1], edges[m+2]
		norm := 2 / (right - left)
		for b, f := range fftFreqs {
			lower := (f - left) / (center - left)
			upper := (right - f) / (right - center)
			w := math.Max(0, math.Min(lower, upper))
			if w > 0 {
				bank.Set(m, b, w*norm)
			}
		}
	}
	return bank
}

// dctMatrix is the orthonormal DCT-II basis truncated to the first nCoeff rows.
func dctMatrix(nCoeff, n int) *mat.Dense {
	d := mat.NewDense(nCoeff, n, nil)
	scale0 := math.Sqrt(1 / float64(n))
	scale := math.Sqrt(2 / float64(n))
	for k := 0; k < nCoeff; k++ {
		s := scale
		if k == 0 {
			s = scale0
		}
		for i := 0; i < n; i++ {
			d.Set(k, i, s*math.Cos(math.Pi*float64(k)*(2*float64(i)+1)/(2*float64(n))))
		}
	}
	return d
}
