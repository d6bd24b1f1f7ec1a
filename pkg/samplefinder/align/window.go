package align

import "math"

// window is the set of cells DTW may visit, one half-open column span
// [lo[i], hi[i]) per row of x. Row starts never move left.
type window struct {
	lo, hi []int
}

func (w window) contains(i, j int) bool {
	return j >= w.lo[i] && j < w.hi[i]
}

func fullWindow(n, m int) window {
	w := window{lo: make([]int, n), hi: make([]int, n)}
	for i := range w.hi {
		w.hi[i] = m
	}
	return w
}

// expandWindow projects a coarse path onto the n x m grid. Every coarse cell
// within radius of the path contributes its four children.
func expandWindow(path []Cell, n, m, radius int) window {
	// Coarse rows run from -radius to (n-1)/2+radius.
	rows := (n-1)/2 + 2*radius + 1
	clo := make([]int, rows)
	chi := make([]int, rows)
	for r := range clo {
		clo[r] = math.MaxInt
		chi[r] = math.MinInt
	}

	for _, c := range path {
		for a := -radius; a <= radius; a++ {
			r := c.I + a + radius
			if r < 0 || r >= rows {
				continue
			}
			clo[r] = min(clo[r], c.J-radius)
			chi[r] = max(chi[r], c.J+radius)
		}
	}

	w := window{lo: make([]int, n), hi: make([]int, n)}
	prevLo := 0
	for i := 0; i < n; i++ {
		r := i/2 + radius
		lo, hi := prevLo, prevLo+1
		if clo[r] <= chi[r] {
			lo = max(2*clo[r], prevLo, 0)
			hi = min(2*chi[r]+2, m)
		}
		if hi <= lo {
			lo, hi = prevLo, min(prevLo+1, m)
		}
		w.lo[i], w.hi[i] = lo, hi
		prevLo = lo
	}
	return w
}
