package transformer

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/mwhitfield/seq2seq/optimizations"
	"github.com/mwhitfield/seq2seq/utils"
)

// FeedForward is the position-wise two-layer block: dModel -> dFF ->
// dModel with ReLU and dropout between the projections. Columns never
// mix, so one matmul handles every position at once.
type FeedForward struct {
	Inputs, Hiddens, Outputs  int
	HiddenWeights, HiddenBias *mat.Dense
	OutputWeights, OutputBias *mat.Dense

	LearningRate float64
	Opt          optimizations.AdamConfig
	GradClip     float64
	Drop         *optimizations.Dropout

	// cache for backprop
	T            int
	lastInput    *mat.Dense
	hiddenPreAct *mat.Dense
	hiddenOut    *mat.Dense

	mHiddenW, vHiddenW *mat.Dense
	mHiddenB, vHiddenB *mat.Dense
	mOutputW, vOutputW *mat.Dense
	mOutputB, vOutputB *mat.Dense
}

func NewFeedForward(rng *rand.Rand, dModel, dFF int, opt optimizations.AdamConfig, drop *optimizations.Dropout) *FeedForward {
	return &FeedForward{
		Inputs:        dModel,
		Hiddens:       dFF,
		Outputs:       dModel,
		HiddenWeights: utils.XavierDense(rng, dFF, dModel),
		HiddenBias:    mat.NewDense(dFF, 1, nil),
		OutputWeights: utils.XavierDense(rng, dModel, dFF),
		OutputBias:    mat.NewDense(dModel, 1, nil),
		Opt:           opt,
		Drop:          drop,

		mHiddenW: mat.NewDense(dFF, dModel, nil),
		vHiddenW: mat.NewDense(dFF, dModel, nil),
		mHiddenB: mat.NewDense(dFF, 1, nil),
		vHiddenB: mat.NewDense(dFF, 1, nil),
		mOutputW: mat.NewDense(dModel, dFF, nil),
		vOutputW: mat.NewDense(dModel, dFF, nil),
		mOutputB: mat.NewDense(dModel, 1, nil),
		vOutputB: mat.NewDense(dModel, 1, nil),
	}
}

func (ff *FeedForward) Forward(X *mat.Dense) *mat.Dense {
	ff.lastInput = X
	hidden := utils.AddBias(utils.ToDense(utils.Dot(ff.HiddenWeights, X)), ff.HiddenBias)
	ff.hiddenPreAct = hidden
	act := utils.ToDense(utils.Apply(utils.ReluApply, hidden))
	ff.hiddenOut = ff.Drop.Forward(act)
	out := utils.AddBias(utils.ToDense(utils.Dot(ff.OutputWeights, ff.hiddenOut)), ff.OutputBias)
	return out
}

// Backward computes grads, applies one AdamW step, and returns dX.
func (ff *FeedForward) Backward(dY *mat.Dense) *mat.Dense {
	dX, dWhid, dbHid, dWout, dbOut := ff.BackwardGradsOnly(dY)
	utils.ClipGrads(ff.GradClip, dWout, dWhid, dbOut, dbHid)

	ff.T++
	lr := ff.LearningRate
	optimizations.AdamUpdateInPlace(ff.OutputWeights, dWout, ff.mOutputW, ff.vOutputW, ff.T, lr, ff.Opt.WeightDecay, ff.Opt)
	optimizations.AdamUpdateInPlace(ff.OutputBias, dbOut, ff.mOutputB, ff.vOutputB, ff.T, lr, 0, ff.Opt)
	optimizations.AdamUpdateInPlace(ff.HiddenWeights, dWhid, ff.mHiddenW, ff.vHiddenW, ff.T, lr, ff.Opt.WeightDecay, ff.Opt)
	optimizations.AdamUpdateInPlace(ff.HiddenBias, dbHid, ff.mHiddenB, ff.vHiddenB, ff.T, lr, 0, ff.Opt)
	return dX
}

func (ff *FeedForward) BackwardGradsOnly(dY *mat.Dense) (dX, dWhid, dbHid, dWout, dbOut *mat.Dense) {
	dWout = utils.ToDense(utils.Dot(dY, ff.hiddenOut.T()))
	dbOut = utils.RowSumsInto(dY)

	dHiddenOut := utils.ToDense(utils.Dot(ff.OutputWeights.T(), dY))
	dAct := ff.Drop.Backward(dHiddenOut)
	dHidden := utils.ToDense(utils.Multiply(dAct, utils.ReluPrime(ff.hiddenPreAct)))

	dWhid = utils.ToDense(utils.Dot(dHidden, ff.lastInput.T()))
	dbHid = utils.RowSumsInto(dHidden)

	dX = utils.ToDense(utils.Dot(ff.HiddenWeights.T(), dHidden))
	return dX, dWhid, dbHid, dWout, dbOut
}
