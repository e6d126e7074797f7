package transformer

import (
	"math/rand"
	"testing"

	"github.com/mwhitfield/seq2seq/optimizations"
)

func TestFeedForwardGradCheck(t *testing.T) {
	rng := rand.New(rand.NewSource(123))
	dModel, dFF, T := 4, 5, 3
	ff := NewFeedForward(rng, dModel, dFF, optimizations.DefaultAdam(),
		optimizations.NewDropout(0, rng))

	X := randMat(rng, dModel, T)
	W := randMat(rng, dModel, T)
	forward := func() float64 {
		return weightedSum(W, ff.Forward(X))
	}

	forward()
	dX, dWhid, dbHid, dWout, dbOut := ff.BackwardGradsOnly(W)

	finiteDiffCheck(t, "HiddenWeights", ff.HiddenWeights, dWhid, forward, 0, 0)
	finiteDiffCheck(t, "HiddenBias", ff.HiddenBias, dbHid, forward, 2, 0)
	finiteDiffCheck(t, "OutputWeights", ff.OutputWeights, dWout, forward, 1, 3)
	finiteDiffCheck(t, "OutputBias", ff.OutputBias, dbOut, forward, 3, 0)
	finiteDiffCheck(t, "X", X, dX, forward, 0, 1)
}

func TestFeedForwardShapePreserved(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	ff := NewFeedForward(rng, 8, 32, optimizations.DefaultAdam(),
		optimizations.NewDropout(0, rng))
	Y := ff.Forward(randMat(rng, 8, 6))
	r, c := Y.Dims()
	if r != 8 || c != 6 {
		t.Fatalf("shape = (%d,%d), want (8,6)", r, c)
	}
}

func TestProjectionGradCheck(t *testing.T) {
	rng := rand.New(rand.NewSource(77))
	dModel, vocab, T := 4, 7, 2
	p := NewProjection(rng, dModel, vocab, optimizations.DefaultAdam())
	p.LearningRate = 0

	X := randMat(rng, dModel, T)
	W := randMat(rng, vocab, T)
	forward := func() float64 {
		return weightedSum(W, p.Forward(X))
	}

	forward()
	dX := p.Backward(W)
	finiteDiffCheck(t, "X", X, dX, forward, 0, 0)
	finiteDiffCheck(t, "X", X, dX, forward, 3, 1)
}
