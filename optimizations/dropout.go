package optimizations

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Dropout is an inverted-dropout gate: while training, each element is
// zeroed independently with probability Rate and survivors are scaled
// by 1/(1-Rate) so the expectation is unchanged. At inference the gate
// is the identity.
type Dropout struct {
	Rate     float64
	Training bool

	rng  *rand.Rand
	mask *mat.Dense // mask of the most recent Forward; nil when inactive
}

func NewDropout(rate float64, rng *rand.Rand) *Dropout {
	return &Dropout{Rate: rate, rng: rng}
}

func (d *Dropout) active() bool {
	return d.Training && d.Rate > 0
}

// MaskMatrix draws a fresh (r x c) keep/scale mask, or nil when the
// gate is inactive. Callers that gate several tensors per step (e.g.
// per-head attention weights) hold their own masks for the backward
// pass.
func (d *Dropout) MaskMatrix(r, c int) *mat.Dense {
	if !d.active() {
		return nil
	}
	keep := 1.0 / (1.0 - d.Rate)
	m := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if d.rng.Float64() >= d.Rate {
				m.Set(i, j, keep)
			}
		}
	}
	return m
}

// Forward gates X, caching the mask for Backward.
func (d *Dropout) Forward(X *mat.Dense) *mat.Dense {
	r, c := X.Dims()
	d.mask = d.MaskMatrix(r, c)
	if d.mask == nil {
		return X
	}
	out := mat.NewDense(r, c, nil)
	out.MulElem(X, d.mask)
	return out
}

// Backward routes the gradient through the cached mask.
func (d *Dropout) Backward(dY *mat.Dense) *mat.Dense {
	if d.mask == nil {
		return dY
	}
	r, c := dY.Dims()
	out := mat.NewDense(r, c, nil)
	out.MulElem(dY, d.mask)
	return out
}
