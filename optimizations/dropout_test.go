package optimizations

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestDropoutIdentityAtInference(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	d := NewDropout(0.5, rng)
	X := randDense(rng, 3, 4)

	out := d.Forward(X)
	if out != X {
		t.Fatalf("inactive dropout should return its input unchanged")
	}
	dY := randDense(rng, 3, 4)
	if back := d.Backward(dY); back != dY {
		t.Fatalf("inactive dropout should pass the gradient through")
	}
	// zero rate is also inactive even while training
	d0 := NewDropout(0, rng)
	d0.Training = true
	if d0.MaskMatrix(2, 2) != nil {
		t.Fatalf("zero-rate gate drew a mask")
	}
}

func TestDropoutZerosAndScales(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	rate := 0.3
	d := NewDropout(rate, rng)
	d.Training = true
	keep := 1.0 / (1.0 - rate)

	X := mat.NewDense(20, 20, nil)
	for i := 0; i < 20; i++ {
		for j := 0; j < 20; j++ {
			X.Set(i, j, 1)
		}
	}
	out := d.Forward(X)
	zeros := 0
	for i := 0; i < 20; i++ {
		for j := 0; j < 20; j++ {
			v := out.At(i, j)
			if v == 0 {
				zeros++
			} else if math.Abs(v-keep) > 1e-12 {
				t.Fatalf("survivor [%d,%d]=%g, want %g", i, j, v, keep)
			}
		}
	}
	if zeros == 0 || zeros == 400 {
		t.Fatalf("dropout zeroed %d/400 elements at rate %g", zeros, rate)
	}
}

func TestDropoutBackwardReusesForwardMask(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	d := NewDropout(0.5, rng)
	d.Training = true

	X := randDense(rng, 5, 5)
	out := d.Forward(X)
	dY := mat.NewDense(5, 5, nil)
	for i := 0; i < 5; i++ {
		for j := 0; j < 5; j++ {
			dY.Set(i, j, 1)
		}
	}
	back := d.Backward(dY)
	for i := 0; i < 5; i++ {
		for j := 0; j < 5; j++ {
			if (out.At(i, j) == 0) != (back.At(i, j) == 0) {
				t.Fatalf("mask mismatch at [%d,%d]: fwd=%g bwd=%g",
					i, j, out.At(i, j), back.At(i, j))
			}
		}
	}
}
