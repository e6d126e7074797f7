package utils

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestXavierArrayBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	fanOut, fanIn := 16, 64
	limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
	vals := XavierArray(rng, fanOut, fanIn)
	if len(vals) != fanOut*fanIn {
		t.Fatalf("got %d values, want %d", len(vals), fanOut*fanIn)
	}
	for _, v := range vals {
		if v < -limit || v > limit {
			t.Fatalf("value %g outside [-%g, %g]", v, limit, limit)
		}
	}
}

func TestClipGradsGlobalNorm(t *testing.T) {
	a := mat.NewDense(2, 2, []float64{3, 0, 0, 0})
	b := mat.NewDense(1, 2, []float64{0, 4})
	s := ClipGrads(1.0, a, b)
	if math.Abs(s-0.2) > 1e-12 {
		t.Fatalf("scale = %g, want 0.2", s)
	}
	total := math.Sqrt(MatrixNorm(a)*MatrixNorm(a) + MatrixNorm(b)*MatrixNorm(b))
	if math.Abs(total-1.0) > 1e-9 {
		t.Fatalf("post-clip norm = %g, want 1", total)
	}
	// under the threshold nothing moves
	c := mat.NewDense(1, 1, []float64{0.5})
	if s := ClipGrads(1.0, c); s != 1.0 {
		t.Fatalf("unexpected clip scale %g", s)
	}
	if c.At(0, 0) != 0.5 {
		t.Fatalf("grad modified below threshold")
	}
}

func TestLRScheduleWarmupAndPeak(t *testing.T) {
	if got := LRSchedule(0, 10, 0, 1.0); got != 0 {
		t.Fatalf("step 0 LR = %g, want 0", got)
	}
	if got := LRSchedule(5, 10, 0, 1.0); math.Abs(got-0.5) > 1e-12 {
		t.Fatalf("mid-warmup LR = %g, want 0.5", got)
	}
	if got := LRSchedule(10, 10, 0, 1.0); got != 1.0 {
		t.Fatalf("post-warmup LR = %g, want 1", got)
	}
	// cosine decay ends at zero
	if got := LRSchedule(110, 10, 100, 1.0); math.Abs(got) > 1e-12 {
		t.Fatalf("decayed LR = %g, want 0", got)
	}
}

func TestReluPrimeMatchesActivation(t *testing.T) {
	x := mat.NewDense(2, 2, []float64{-1, 0, 2, -0.5})
	p := ReluPrime(x)
	want := [][]float64{{0, 0}, {1, 0}}
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			if p.At(i, j) != want[i][j] {
				t.Fatalf("ReluPrime[%d,%d] = %g, want %g", i, j, p.At(i, j), want[i][j])
			}
		}
	}
}
