package align

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

type step uint8

const (
	stepUp step = iota
	stepLeft
	stepDiag
)

// dtw fills the cumulative cost over w and backtracks the optimal path.
// On equal cost the predecessor is chosen up, then left, then diagonal.
func dtw(x, y [][]float64, w window, norm float64) (float64, []Cell) {
	n, m := len(x), len(y)
	inf := math.Inf(1)

	cost := make([][]float64, n)
	steps := make([][]step, n)

	at := func(i, j int) float64 {
		if i < 0 || j < 0 {
			if i == -1 && j == -1 {
				return 0
			}
			return inf
		}
		if !w.contains(i, j) {
			return inf
		}
		return cost[i][j-w.lo[i]]
	}

	for i := 0; i < n; i++ {
		width := w.hi[i] - w.lo[i]
		cost[i] = make([]float64, width)
		steps[i] = make([]step, width)

		for j := w.lo[i]; j < w.hi[i]; j++ {
			d := floats.Distance(x[i], y[j], norm)

			best, s := at(i-1, j)+d, stepUp
			if v := at(i, j-1) + d; v < best {
				best, s = v, stepLeft
			}
			if v := at(i-1, j-1) + d; v < best {
				best, s = v, stepDiag
			}
			cost[i][j-w.lo[i]] = best
			steps[i][j-w.lo[i]] = s
		}
	}

	total := at(n-1, m-1)
	if math.IsInf(total, 1) {
		return total, nil
	}

	path := make([]Cell, 0, n+m)
	i, j := n-1, m-1
	for i >= 0 && j >= 0 {
		path = append(path, Cell{I: i, J: j})
		switch steps[i][j-w.lo[i]] {
		case stepUp:
			i--
		case stepLeft:
			j--
		default:
			i--
			j--
		}
	}

	for l, r := 0, len(path)-1; l < r; l, r = l+1, r-1 {
		path[l], path[r] = path[r], path[l]
	}
	return total, path
}
