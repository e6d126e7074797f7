package utils

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// MaskedCrossEntropy scores logits (vocab x T) against gold ids, one
// per column. Columns whose gold id equals padID contribute nothing to
// the loss and receive a zero gradient. Returns the summed loss, the
// gradient w.r.t. the logits, and the number of scored tokens.
func MaskedCrossEntropy(logits *mat.Dense, gold []int, padID int) (float64, *mat.Dense, int) {
	v, T := logits.Dims()
	if len(gold) != T {
		panic("MaskedCrossEntropy: gold length mismatch")
	}
	probs := ColSoftmax(logits)
	grad := mat.NewDense(v, T, nil)
	loss := 0.0
	tokens := 0
	for t := 0; t < T; t++ {
		g := gold[t]
		if g == padID {
			continue
		}
		if g < 0 || g >= v {
			panic("MaskedCrossEntropy: gold id out of range")
		}
		loss += -math.Log(probs.At(g, t) + 1e-12)
		for i := 0; i < v; i++ {
			grad.Set(i, t, probs.At(i, t))
		}
		grad.Set(g, t, grad.At(g, t)-1.0)
		tokens++
	}
	return loss, grad, tokens
}
