// Package align computes elastic time-warp distances between feature
// sequences with FastDTW.
package align

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

var (
	ErrEmptySequence     = errors.New("empty sequence")
	ErrDimensionMismatch = errors.New("feature dimensions differ")
	ErrNonFinite         = errors.New("sequence contains NaN or Inf")
	ErrInvalidParams     = errors.New("invalid alignment parameters")
)

// AlignmentError reports sequences that could not be aligned.
type AlignmentError struct {
	LenX, LenY int
	Err        error
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("align %dx%d: %v", e.LenX, e.LenY, e.Err)
}

func (e *AlignmentError) Unwrap() error { return e.Err }

// Cell is one aligned frame pair, I indexing x and J indexing y.
type Cell struct {
	I int `json:"i"`
	J int `json:"j"`
}

type Result struct {
	// Distance is the accumulated local cost along Path.
	Distance float64
	// Path runs from (0,0) to (len(x)-1, len(y)-1).
	Path []Cell
}

const (
	DefaultRadius = 1
	DefaultNorm   = 1
)

// Aligner holds FastDTW parameters. The zero value uses DefaultRadius and
// DefaultNorm.
type Aligner struct {
	// Radius widens the projected search window at each resolution.
	Radius int
	// Norm is the Minkowski order of the local frame distance: 1 is
	// city-block, 2 Euclidean, +Inf Chebyshev.
	Norm float64
}

func DefaultAligner() Aligner {
	return Aligner{Radius: DefaultRadius, Norm: DefaultNorm}
}

func (a Aligner) effective() Aligner {
	if a.Radius == 0 {
		a.Radius = DefaultRadius
	}
	if a.Norm == 0 {
		a.Norm = DefaultNorm
	}
	return a
}

func (a Aligner) Validate() error {
	a = a.effective()
	if a.Radius < 1 {
		return fmt.Errorf("%w: radius must be at least 1, got %d", ErrInvalidParams, a.Radius)
	}
	if math.IsNaN(a.Norm) || a.Norm < 1 {
		return fmt.Errorf("%w: norm must be >= 1, got %g", ErrInvalidParams, a.Norm)
	}
	return nil
}

// Align runs FastDTW on x and y.
func (a Aligner) Align(x, y [][]float64) (Result, error) {
	a = a.effective()
	if err := a.check(x, y); err != nil {
		return Result{}, err
	}
	d, path := a.fast(x, y)
	return Result{Distance: d, Path: path}, nil
}

// Distance is Align without the path.
func (a Aligner) Distance(x, y [][]float64) (float64, error) {
	res, err := a.Align(x, y)
	if err != nil {
		return math.Inf(1), err
	}
	return res.Distance, nil
}

// Exact runs unconstrained DTW. It is quadratic in time and memory and never
// returns more than Align on the same input.
func (a Aligner) Exact(x, y [][]float64) (Result, error) {
	a = a.effective()
	if err := a.check(x, y); err != nil {
		return Result{}, err
	}
	d, path := dtw(x, y, fullWindow(len(x), len(y)), a.Norm)
	return Result{Distance: d, Path: path}, nil
}

func (a Aligner) check(x, y [][]float64) error {
	fail := func(err error) error {
		return &AlignmentError{LenX: len(x), LenY: len(y), Err: err}
	}
	if err := a.Validate(); err != nil {
		return fail(err)
	}
	if len(x) == 0 || len(y) == 0 {
		return fail(ErrEmptySequence)
	}
	dim := len(x[0])
	if dim == 0 {
		return fail(fmt.Errorf("%w: zero-length frame", ErrDimensionMismatch))
	}
	for name, seq := range map[string][][]float64{"x": x, "y": y} {
		for i, frame := range seq {
			if len(frame) != dim {
				return fail(fmt.Errorf("%w: %s[%d] has %d values, want %d", ErrDimensionMismatch, name, i, len(frame), dim))
			}
			for _, v := range frame {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return fail(fmt.Errorf("%w: %s[%d]", ErrNonFinite, name, i))
				}
			}
		}
	}
	return nil
}

// fast is the FastDTW recursion: solve at half resolution, project the path
// back, and search only a band of Radius cells around it.
func (a Aligner) fast(x, y [][]float64) (float64, []Cell) {
	minSize := a.Radius + 2
	if len(x) < minSize || len(y) < minSize {
		return dtw(x, y, fullWindow(len(x), len(y)), a.Norm)
	}

	_, coarse := a.fast(reduceByHalf(x), reduceByHalf(y))
	return dtw(x, y, expandWindow(coarse, len(x), len(y), a.Radius), a.Norm)
}

// reduceByHalf averages adjacent frame pairs. An odd trailing frame is dropped.
func reduceByHalf(seq [][]float64) [][]float64 {
	out := make([][]float64, 0, len(seq)/2)
	for i := 0; i+1 < len(seq); i += 2 {
		v := make([]float64, len(seq[i]))
		floats.AddTo(v, seq[i], seq[i+1])
		floats.Scale(0.5, v)
		out = append(out, v)
	}
	return out
}
