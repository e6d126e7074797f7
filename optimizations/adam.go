package optimizations

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// AdamConfig carries the optimizer hyperparameters every module shares.
// It is threaded through constructors instead of living in a global so
// a test can build modules with its own settings.
type AdamConfig struct {
	Beta1       float64
	Beta2       float64
	Eps         float64
	WeightDecay float64 // applied to weights only, never biases/norms
}

// DefaultAdam matches the usual (0.9, 0.999, 1e-8) setting with no decay.
func DefaultAdam() AdamConfig {
	return AdamConfig{Beta1: 0.9, Beta2: 0.999, Eps: 1e-8}
}

// AdamUpdateInPlace performs one AdamW step with bias correction:
// p -= lr * (mhat/(sqrt(vhat)+eps) + weightDecay*p).
func AdamUpdateInPlace(p, g, m, v *mat.Dense, t int, lr, weightDecay float64, c AdamConfig) {
	pr, pc := p.Dims()
	if gr, gc := g.Dims(); gr != pr || gc != pc {
		panic("AdamUpdateInPlace: grad shape mismatch")
	}
	if mr, mc := m.Dims(); mr != pr || mc != pc {
		panic("AdamUpdateInPlace: m shape mismatch")
	}
	if vr, vc := v.Dims(); vr != pr || vc != pc {
		panic("AdamUpdateInPlace: v shape mismatch")
	}
	b1t := math.Pow(c.Beta1, float64(t))
	b2t := math.Pow(c.Beta2, float64(t))
	c1 := 1.0 / (1.0 - b1t)
	c2 := 1.0 / (1.0 - b2t)
	for i := 0; i < pr; i++ {
		for j := 0; j < pc; j++ {
			gij := g.At(i, j)
			mij := c.Beta1*m.At(i, j) + (1.0-c.Beta1)*gij
			vij := c.Beta2*v.At(i, j) + (1.0-c.Beta2)*gij*gij
			mhat := mij * c1
			vhat := vij * c2
			update := mhat/(math.Sqrt(vhat)+c.Eps) + weightDecay*p.At(i, j)
			m.Set(i, j, mij)
			v.Set(i, j, vij)
			p.Set(i, j, p.At(i, j)-lr*update)
		}
	}
}

func zerosLike(a *mat.Dense) *mat.Dense {
	r, c := a.Dims()
	return mat.NewDense(r, c, nil)
}
