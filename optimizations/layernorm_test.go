package optimizations

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func randDense(rng *rand.Rand, r, c int) *mat.Dense {
	m := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			m.Set(i, j, rng.NormFloat64()*2)
		}
	}
	return m
}

func TestLayerNormNormalizesColumns(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	d, T := 16, 4
	ln := NewLayerNorm(d, 1e-6, DefaultAdam())
	out := ln.Forward(randDense(rng, d, T))

	for col := 0; col < T; col++ {
		mean := 0.0
		for i := 0; i < d; i++ {
			mean += out.At(i, col)
		}
		mean /= float64(d)
		if math.Abs(mean) > 1e-9 {
			t.Fatalf("column %d mean = %g, want ~0", col, mean)
		}
		variance := 0.0
		for i := 0; i < d; i++ {
			diff := out.At(i, col) - mean
			variance += diff * diff
		}
		variance /= float64(d)
		if math.Abs(variance-1.0) > 1e-4 {
			t.Fatalf("column %d variance = %g, want ~1", col, variance)
		}
	}
}

func TestLayerNormGradCheck(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	d, T := 6, 3
	ln := NewLayerNorm(d, 1e-6, DefaultAdam())
	X := randDense(rng, d, T)
	W := randDense(rng, d, T) // fixed weights; loss = sum(W * forward(X))

	loss := func() float64 {
		Y := ln.Forward(X)
		s := 0.0
		for i := 0; i < d; i++ {
			for j := 0; j < T; j++ {
				s += W.At(i, j) * Y.At(i, j)
			}
		}
		return s
	}

	loss()
	dX, dGamma, dBeta := ln.BackwardGradsOnly(W)

	check := func(name string, p, g *mat.Dense, i, j int) {
		eps := 1e-5
		v0 := p.At(i, j)
		p.Set(i, j, v0+eps)
		lp := loss()
		p.Set(i, j, v0-eps)
		lm := loss()
		p.Set(i, j, v0)
		num := (lp - lm) / (2 * eps)
		if math.Abs(num-g.At(i, j)) > 1e-4 {
			t.Fatalf("%s[%d,%d]: num=%.6g ana=%.6g", name, i, j, num, g.At(i, j))
		}
	}

	check("X", X, dX, 0, 0)
	check("X", X, dX, 3, 2)
	check("Gamma", ln.Gamma, dGamma, 2, 0)
	check("Beta", ln.Beta, dBeta, 4, 0)
}

func TestLayerNormBackwardStepsParams(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	d := 4
	ln := NewLayerNorm(d, 1e-6, DefaultAdam())
	ln.LearningRate = 0.1
	ln.Forward(randDense(rng, d, 2))

	g0 := ln.Gamma.At(0, 0)
	ln.Backward(randDense(rng, d, 2))
	if ln.Gamma.At(0, 0) == g0 {
		t.Fatalf("gamma unchanged after Backward")
	}
	if ln.T != 1 {
		t.Fatalf("step count = %d, want 1", ln.T)
	}
}
