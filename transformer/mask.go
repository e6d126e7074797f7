package transformer

import (
	"gonum.org/v1/gonum/mat"

	"github.com/mwhitfield/seq2seq/corpus"
)

// Masks are additive (Tq x Tk) matrices applied to attention scores
// before softmax: 0 keeps a position, maskOff suppresses it.
const maskOff = -1e9

// PaddingMask suppresses attention to padding key positions. Every
// query row shares the same key-side pattern.
func PaddingMask(qLen int, keyIDs []int) *mat.Dense {
	out := mat.NewDense(qLen, len(keyIDs), nil)
	for j, id := range keyIDs {
		if id != corpus.PadID {
			continue
		}
		for i := 0; i < qLen; i++ {
			out.Set(i, j, maskOff)
		}
	}
	return out
}

// SelfMask builds the decoder self-attention mask over ids: padding
// keys are always suppressed, and with causal set, each position may
// only attend to itself and earlier positions.
func SelfMask(ids []int, causal bool) *mat.Dense {
	T := len(ids)
	out := PaddingMask(T, ids)
	if causal {
		for i := 0; i < T; i++ {
			for j := i + 1; j < T; j++ {
				out.Set(i, j, maskOff)
			}
		}
	}
	return out
}
