package utils

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// RowSoftmax applies softmax independently to each row across columns.
// Attention scores are (Tq x Tk); each query row becomes a probability
// distribution over key positions.
func RowSoftmax(m mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		mx := m.At(i, 0)
		for j := 1; j < c; j++ {
			if v := m.At(i, j); v > mx {
				mx = v
			}
		}
		sum := 0.0
		for j := 0; j < c; j++ {
			e := math.Exp(m.At(i, j) - mx)
			out.Set(i, j, e)
			sum += e
		}
		inv := 1.0 / sum
		for j := 0; j < c; j++ {
			out.Set(i, j, out.At(i, j)*inv)
		}
	}
	return out
}

// suppressedBelow separates real scores from mask-suppressed ones: raw
// scores stay orders of magnitude above it, masked scores orders below.
const suppressedBelow = -1e8

// RowSoftmaxMasked computes softmax(m + mask) row-wise. The mask is
// additive: 0 keeps a position, a large negative value suppresses it,
// driving its weight to exactly representable zero after exp. A row
// with every position suppressed (an all-pad key sequence) comes back
// all-zero rather than uniform.
func RowSoftmaxMasked(m, mask *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	if mr, mc := mask.Dims(); mr != r || mc != c {
		panic("RowSoftmaxMasked: mask shape mismatch")
	}
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		mx := m.At(i, 0) + mask.At(i, 0)
		for j := 1; j < c; j++ {
			if v := m.At(i, j) + mask.At(i, j); v > mx {
				mx = v
			}
		}
		if mx < suppressedBelow {
			continue
		}
		sum := 0.0
		for j := 0; j < c; j++ {
			e := math.Exp(m.At(i, j) + mask.At(i, j) - mx)
			out.Set(i, j, e)
			sum += e
		}
		inv := 1.0 / sum
		for j := 0; j < c; j++ {
			out.Set(i, j, out.At(i, j)*inv)
		}
	}
	return out
}

// SoftmaxBackward is the VJP of row-wise softmax. For each row i,
// s = sum_k dA[i,k]*A[i,k]; dS[i,j] = A[i,j]*(dA[i,j]-s).
func SoftmaxBackward(dA mat.Matrix, A *mat.Dense) *mat.Dense {
	r, c := A.Dims()
	dS := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		s := 0.0
		for k := 0; k < c; k++ {
			s += dA.At(i, k) * A.At(i, k)
		}
		for j := 0; j < c; j++ {
			aj := A.At(i, j)
			dS.Set(i, j, aj*(dA.At(i, j)-s))
		}
	}
	return dS
}

// ColSoftmax applies softmax down each column. Logit matrices are
// (vocab x T), one column of scores per position.
func ColSoftmax(m *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	for j := 0; j < c; j++ {
		mx := m.At(0, j)
		for i := 1; i < r; i++ {
			if v := m.At(i, j); v > mx {
				mx = v
			}
		}
		sum := 0.0
		for i := 0; i < r; i++ {
			e := math.Exp(m.At(i, j) - mx)
			out.Set(i, j, e)
			sum += e
		}
		inv := 1.0 / sum
		for i := 0; i < r; i++ {
			out.Set(i, j, out.At(i, j)*inv)
		}
	}
	return out
}
