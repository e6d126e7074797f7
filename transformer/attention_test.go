package transformer

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/mwhitfield/seq2seq/optimizations"
	"github.com/mwhitfield/seq2seq/utils"
)

func finiteDiffCheck(t *testing.T, name string, param, grad *mat.Dense,
	forward func() float64, i, j int) {
	t.Helper()
	eps := 1e-5
	w0 := param.At(i, j)

	param.Set(i, j, w0+eps)
	lp := forward()
	param.Set(i, j, w0-eps)
	lm := forward()
	param.Set(i, j, w0)

	numGrad := (lp - lm) / (2.0 * eps)
	anaGrad := grad.At(i, j)
	if math.Abs(numGrad-anaGrad) > 1e-4 {
		t.Fatalf("%s[%d,%d] grad mismatch: num=%.6g ana=%.6g",
			name, i, j, numGrad, anaGrad)
	}
}

func randMat(rng *rand.Rand, r, c int) *mat.Dense {
	m := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			m.Set(i, j, rng.NormFloat64())
		}
	}
	return m
}

// weightedSum is the scalar loss used by the grad checks below.
func weightedSum(W, Y *mat.Dense) float64 {
	r, c := Y.Dims()
	s := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			s += W.At(i, j) * Y.At(i, j)
		}
	}
	return s
}

func TestSelfAttentionGradCheck(t *testing.T) {
	rng := rand.New(rand.NewSource(123))
	dModel, nHeads, T := 4, 2, 3
	attn := NewAttention(rng, dModel, nHeads, optimizations.DefaultAdam(),
		optimizations.NewDropout(0, rng))

	X := randMat(rng, dModel, T)
	W := randMat(rng, dModel, T)

	forward := func() float64 {
		return weightedSum(W, attn.Forward(X, X, nil))
	}

	forward()
	dX, dM, dWq, dWk, dWv, dWo := attn.BackwardGradsOnly(W)

	finiteDiffCheck(t, "Wquery", attn.Wquery[0], dWq[0], forward, 0, 0)
	finiteDiffCheck(t, "Wkey", attn.Wkey[1], dWk[1], forward, 1, 2)
	finiteDiffCheck(t, "Wvalue", attn.Wvalue[0], dWv[0], forward, 0, 3)
	finiteDiffCheck(t, "Woutput", attn.Woutput, dWo, forward, 2, 1)

	// self-attention feeds X through both roles: the input gradient is
	// the query-side and key/value-side contributions added
	dTotal := utils.ToDense(utils.Add(dX, dM))
	finiteDiffCheck(t, "X", X, dTotal, forward, 0, 0)
	finiteDiffCheck(t, "X", X, dTotal, forward, 3, 2)
}

func TestCrossAttentionGradCheck(t *testing.T) {
	rng := rand.New(rand.NewSource(321))
	dModel, nHeads, Tq, Tk := 4, 2, 2, 5
	attn := NewAttention(rng, dModel, nHeads, optimizations.DefaultAdam(),
		optimizations.NewDropout(0, rng))

	X := randMat(rng, dModel, Tq)
	M := randMat(rng, dModel, Tk)
	W := randMat(rng, dModel, Tq)

	forward := func() float64 {
		return weightedSum(W, attn.Forward(X, M, nil))
	}

	forward()
	dX, dM, _, _, _, _ := attn.BackwardGradsOnly(W)

	finiteDiffCheck(t, "X", X, dX, forward, 0, 1)
	finiteDiffCheck(t, "M", M, dM, forward, 2, 4)
	finiteDiffCheck(t, "M", M, dM, forward, 0, 0)
}

func TestAttentionMaskZeroesWeights(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	dModel, nHeads, T := 8, 2, 4
	attn := NewAttention(rng, dModel, nHeads, optimizations.DefaultAdam(),
		optimizations.NewDropout(0, rng))

	X := randMat(rng, dModel, T)
	mask := SelfMask([]int{5, 6, 7, 8}, true)
	attn.Forward(X, X, mask)

	for h := 0; h < nHeads; h++ {
		A := attn.A[h]
		for i := 0; i < T; i++ {
			rowSum := 0.0
			for j := 0; j < T; j++ {
				v := A.At(i, j)
				if j > i && v != 0 {
					t.Fatalf("head %d weight [%d,%d]=%g above the diagonal", h, i, j, v)
				}
				rowSum += v
			}
			if math.Abs(rowSum-1.0) > 1e-12 {
				t.Fatalf("head %d row %d sums to %g", h, i, rowSum)
			}
		}
	}
}

func TestAttentionPaddingKeysGetZeroWeight(t *testing.T) {
	rng := rand.New(rand.NewSource(19))
	dModel, nHeads := 8, 2
	attn := NewAttention(rng, dModel, nHeads, optimizations.DefaultAdam(),
		optimizations.NewDropout(0, rng))

	srcIDs := []int{5, 0, 6, 0} // ids 0 are <pad>
	Tq := 3
	X := randMat(rng, dModel, Tq)
	M := randMat(rng, dModel, len(srcIDs))
	attn.Forward(X, M, PaddingMask(Tq, srcIDs))

	for h := 0; h < nHeads; h++ {
		A := attn.A[h]
		for i := 0; i < Tq; i++ {
			if A.At(i, 1) != 0 || A.At(i, 3) != 0 {
				t.Fatalf("head %d row %d attends to padding: %g %g",
					h, i, A.At(i, 1), A.At(i, 3))
			}
		}
	}
}

func TestAttentionAllPadSourceGetsZeroWeights(t *testing.T) {
	rng := rand.New(rand.NewSource(23))
	dModel, nHeads := 8, 2
	attn := NewAttention(rng, dModel, nHeads, optimizations.DefaultAdam(),
		optimizations.NewDropout(0, rng))

	// an empty source encodes to all <pad>; every key is suppressed
	srcIDs := []int{0, 0, 0, 0}
	Tq := 3
	X := randMat(rng, dModel, Tq)
	M := randMat(rng, dModel, len(srcIDs))
	Y := attn.Forward(X, M, PaddingMask(Tq, srcIDs))

	for h := 0; h < nHeads; h++ {
		A := attn.A[h]
		for i := 0; i < Tq; i++ {
			for j := 0; j < len(srcIDs); j++ {
				if A.At(i, j) != 0 {
					t.Fatalf("head %d weight [%d,%d]=%g on a padding key",
						h, i, j, A.At(i, j))
				}
			}
		}
	}
	r, c := Y.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if math.IsNaN(Y.At(i, j)) {
				t.Fatalf("NaN output at [%d,%d]", i, j)
			}
		}
	}
}

func TestAttentionOutputShape(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	dModel, nHeads := 8, 4
	attn := NewAttention(rng, dModel, nHeads, optimizations.DefaultAdam(),
		optimizations.NewDropout(0, rng))

	X := randMat(rng, dModel, 3)
	M := randMat(rng, dModel, 6)
	Y := attn.Forward(X, M, nil)
	r, c := Y.Dims()
	if r != dModel || c != 3 {
		t.Fatalf("output shape = (%d,%d), want (%d,3)", r, c, dModel)
	}
}

func TestNewAttentionRejectsIndivisibleHeads(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for dModel %% nHeads != 0")
		}
	}()
	rng := rand.New(rand.NewSource(1))
	NewAttention(rng, 6, 4, optimizations.DefaultAdam(), optimizations.NewDropout(0, rng))
}
