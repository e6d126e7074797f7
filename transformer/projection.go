package transformer

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/mwhitfield/seq2seq/optimizations"
	"github.com/mwhitfield/seq2seq/utils"
)

// Projection maps decoder hidden states (dModel x T) to vocabulary
// logits (vocab x T).
type Projection struct {
	W *mat.Dense // (vocab x dModel)
	B *mat.Dense // (vocab x 1)

	LearningRate float64
	Opt          optimizations.AdamConfig
	GradClip     float64

	t         int
	mW, vW    *mat.Dense
	mB, vB    *mat.Dense
	lastInput *mat.Dense
}

func NewProjection(rng *rand.Rand, dModel, vocab int, opt optimizations.AdamConfig) *Projection {
	return &Projection{
		W:   utils.XavierDense(rng, vocab, dModel),
		B:   mat.NewDense(vocab, 1, nil),
		Opt: opt,
		mW:  mat.NewDense(vocab, dModel, nil),
		vW:  mat.NewDense(vocab, dModel, nil),
		mB:  mat.NewDense(vocab, 1, nil),
		vB:  mat.NewDense(vocab, 1, nil),
	}
}

func (p *Projection) Forward(Y *mat.Dense) *mat.Dense {
	p.lastInput = Y
	return utils.AddBias(utils.ToDense(utils.Dot(p.W, Y)), p.B)
}

// Backward applies one AdamW step and returns the gradient w.r.t. the
// decoder output.
func (p *Projection) Backward(dLogits *mat.Dense) *mat.Dense {
	dW := utils.ToDense(utils.Dot(dLogits, p.lastInput.T()))
	dB := utils.RowSumsInto(dLogits)
	dY := utils.ToDense(utils.Dot(p.W.T(), dLogits))

	utils.ClipGrads(p.GradClip, dW, dB)
	p.t++
	optimizations.AdamUpdateInPlace(p.W, dW, p.mW, p.vW, p.t, p.LearningRate, p.Opt.WeightDecay, p.Opt)
	optimizations.AdamUpdateInPlace(p.B, dB, p.mB, p.vB, p.t, p.LearningRate, 0, p.Opt)
	return dY
}
