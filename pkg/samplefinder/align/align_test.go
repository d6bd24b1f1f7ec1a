package align

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func scalars(vs ...float64) [][]float64 {
	out := make([][]float64, len(vs))
	for i, v := range vs {
		out[i] = []float64{v}
	}
	return out
}

func randomSequence(rng *rand.Rand, frames, dim int) [][]float64 {
	seq := make([][]float64, frames)
	for i := range seq {
		seq[i] = make([]float64, dim)
		for j := range seq[i] {
			seq[i][j] = rng.NormFloat64() * 10
		}
	}
	return seq
}

// smoothSequence traces slow sinusoids sampled at a warped clock, roughly
// what MFCC trajectories of the same sound at two speeds look like.
func smoothSequence(rng *rand.Rand, frames, dim int, speed float64) [][]float64 {
	seq := make([][]float64, frames)
	for i := range seq {
		seq[i] = make([]float64, dim)
		tt := float64(i) * speed
		for d := range seq[i] {
			seq[i][d] = 10*math.Sin(tt/7+float64(d)) + rng.NormFloat64()*0.1
		}
	}
	return seq
}

func checkPath(t *testing.T, path []Cell, n, m int) {
	t.Helper()
	if len(path) == 0 {
		t.Fatal("empty path")
	}
	if path[0] != (Cell{0, 0}) {
		t.Errorf("path starts at %v, want (0,0)", path[0])
	}
	if last := path[len(path)-1]; last != (Cell{n - 1, m - 1}) {
		t.Errorf("path ends at %v, want (%d,%d)", last, n-1, m-1)
	}
	for k := 1; k < len(path); k++ {
		di, dj := path[k].I-path[k-1].I, path[k].J-path[k-1].J
		if di < 0 || dj < 0 || di > 1 || dj > 1 || (di == 0 && dj == 0) {
			t.Fatalf("illegal step %v -> %v", path[k-1], path[k])
		}
	}
}

func pathCost(x, y [][]float64, path []Cell) float64 {
	total := 0.0
	for _, c := range path {
		for d := range x[c.I] {
			total += math.Abs(x[c.I][d] - y[c.J][d])
		}
	}
	return total
}

func TestKnownDistance(t *testing.T) {
	x := scalars(1, 2, 3, 4, 5)
	y := scalars(2, 3, 4)

	for name, run := range map[string]func([][]float64, [][]float64) (Result, error){
		"fast":  DefaultAligner().Align,
		"exact": DefaultAligner().Exact,
	} {
		t.Run(name, func(t *testing.T) {
			res, err := run(x, y)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Distance != 2 {
				t.Errorf("Distance = %v, want 2", res.Distance)
			}
			checkPath(t, res.Path, len(x), len(y))
			if got := pathCost(x, y, res.Path); got != res.Distance {
				t.Errorf("path cost %v != distance %v", got, res.Distance)
			}
		})
	}
}

func TestIdentityIsZero(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	x := randomSequence(rng, 120, 13)

	res, err := DefaultAligner().Align(x, x)
	if err != nil {
		t.Fatal(err)
	}
	if res.Distance != 0 {
		t.Errorf("self distance = %v, want 0", res.Distance)
	}
	if len(res.Path) != len(x) {
		t.Errorf("self path has %d cells, want the %d-cell diagonal", len(res.Path), len(x))
	}
	for k, c := range res.Path {
		if c.I != k || c.J != k {
			t.Fatalf("path[%d] = %v, want diagonal", k, c)
		}
	}
}

func TestExactNeverExceedsFast(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	a := DefaultAligner()

	for trial := 0; trial < 25; trial++ {
		x := randomSequence(rng, 5+rng.Intn(80), 4)
		y := randomSequence(rng, 5+rng.Intn(80), 4)

		fast, err := a.Align(x, y)
		if err != nil {
			t.Fatal(err)
		}
		exact, err := a.Exact(x, y)
		if err != nil {
			t.Fatal(err)
		}
		if exact.Distance > fast.Distance+1e-9 {
			t.Errorf("trial %d: exact %v > fast %v", trial, exact.Distance, fast.Distance)
		}
		checkPath(t, fast.Path, len(x), len(y))
		if got := pathCost(x, y, fast.Path); math.Abs(got-fast.Distance) > 1e-9 {
			t.Errorf("trial %d: path cost %v != distance %v", trial, got, fast.Distance)
		}
	}
}

func TestExactSymmetric(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	x := randomSequence(rng, 40, 13)
	y := randomSequence(rng, 57, 13)

	xy, err := DefaultAligner().Exact(x, y)
	if err != nil {
		t.Fatal(err)
	}
	yx, err := DefaultAligner().Exact(y, x)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(xy.Distance-yx.Distance) > 1e-9 {
		t.Errorf("Exact(x,y)=%v, Exact(y,x)=%v", xy.Distance, yx.Distance)
	}
}

func TestFastNearlySymmetric(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	x := smoothSequence(rng, 64, 13, 1.0)
	y := smoothSequence(rng, 90, 13, 64.0/90)

	a := Aligner{Radius: 4}
	xy, err := a.Distance(x, y)
	if err != nil {
		t.Fatal(err)
	}
	yx, err := a.Distance(y, x)
	if err != nil {
		t.Fatal(err)
	}
	exact, err := a.Exact(x, y)
	if err != nil {
		t.Fatal(err)
	}
	// Both directions are approximations from above of the same exact value.
	if xy < exact.Distance-1e-9 || yx < exact.Distance-1e-9 {
		t.Errorf("fast below exact: xy=%v yx=%v exact=%v", xy, yx, exact.Distance)
	}
	if rel := math.Abs(xy-yx) / exact.Distance; rel > 0.2 {
		t.Errorf("asymmetry %.3f too large: xy=%v yx=%v", rel, xy, yx)
	}
}

func TestLargeRadiusIsExact(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	x := randomSequence(rng, 30, 3)
	y := randomSequence(rng, 45, 3)

	a := Aligner{Radius: 100}
	fast, err := a.Align(x, y)
	if err != nil {
		t.Fatal(err)
	}
	exact, err := a.Exact(x, y)
	if err != nil {
		t.Fatal(err)
	}
	if fast.Distance != exact.Distance {
		t.Errorf("radius covering both sequences: fast %v != exact %v", fast.Distance, exact.Distance)
	}
}

func TestNormChangesDistance(t *testing.T) {
	x := [][]float64{{0, 0}, {1, 1}}
	y := [][]float64{{3, 4}, {1, 1}}

	l1, err := Aligner{Norm: 1}.Distance(x, y)
	if err != nil {
		t.Fatal(err)
	}
	l2, err := Aligner{Norm: 2}.Distance(x, y)
	if err != nil {
		t.Fatal(err)
	}
	if l1 != 7 {
		t.Errorf("L1 distance = %v, want 7", l1)
	}
	if l2 != 5 {
		t.Errorf("L2 distance = %v, want 5", l2)
	}
}

func TestSingleFrame(t *testing.T) {
	res, err := DefaultAligner().Align(scalars(1), scalars(4, 6))
	if err != nil {
		t.Fatal(err)
	}
	if res.Distance != 8 {
		t.Errorf("Distance = %v, want 8", res.Distance)
	}
	checkPath(t, res.Path, 1, 2)
}

func TestAlignErrors(t *testing.T) {
	tests := []struct {
		name string
		a    Aligner
		x, y [][]float64
		want error
	}{
		{"empty x", DefaultAligner(), nil, scalars(1), ErrEmptySequence},
		{"empty y", DefaultAligner(), scalars(1), [][]float64{}, ErrEmptySequence},
		{"dims between", DefaultAligner(), [][]float64{{1, 2}}, scalars(1), ErrDimensionMismatch},
		{"dims within", DefaultAligner(), [][]float64{{1, 2}, {1}}, [][]float64{{1, 2}}, ErrDimensionMismatch},
		{"zero dim", DefaultAligner(), [][]float64{{}}, [][]float64{{}}, ErrDimensionMismatch},
		{"nan", DefaultAligner(), scalars(1, math.NaN()), scalars(1), ErrNonFinite},
		{"inf", DefaultAligner(), scalars(1), scalars(math.Inf(-1)), ErrNonFinite},
		{"negative radius", Aligner{Radius: -1}, scalars(1), scalars(1), ErrInvalidParams},
		{"fractional norm", Aligner{Norm: 0.5}, scalars(1), scalars(1), ErrInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.a.Align(tt.x, tt.y)
			var ae *AlignmentError
			if !errors.As(err, &ae) {
				t.Fatalf("expected *AlignmentError, got %T: %v", err, err)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("error %v does not wrap %v", err, tt.want)
			}

			d, err := tt.a.Distance(tt.x, tt.y)
			if err == nil || !math.IsInf(d, 1) {
				t.Errorf("Distance = %v, %v; want +Inf and an error", d, err)
			}
		})
	}
}
