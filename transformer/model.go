package transformer

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/mwhitfield/seq2seq/optimizations"
	"github.com/mwhitfield/seq2seq/params"
)

// Model is the full encoder-decoder transformer. Encode, Decode, and
// Project stay separate operations so an encoder pass could be reused
// across decoding steps; training drives all three plus Backward.
type Model struct {
	Cfg params.Config

	SrcEmb *Embedding
	TgtEmb *Embedding
	SrcPos *PositionalEncoding
	TgtPos *PositionalEncoding
	Enc    *Encoder
	Dec    *Decoder
	Proj   *Projection

	// ids of the most recent Encode/Decode, for the embedding step
	srcIDs []int
	tgtIDs []int
}

// New validates the configuration and builds every parameter. All
// weight matrices are Xavier-uniform; vocab sizes come from the built
// vocabularies rather than the configured cap so a small corpus gets
// a small model.
func New(cfg params.Config, srcVocab, tgtVocab int, rng *rand.Rand) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opt := optimizations.AdamConfig{
		Beta1:       cfg.AdamBeta1,
		Beta2:       cfg.AdamBeta2,
		Eps:         cfg.AdamEps,
		WeightDecay: cfg.WeightDecay,
	}
	m := &Model{
		Cfg:    cfg,
		SrcEmb: NewEmbedding(rng, cfg.DModel, srcVocab, opt),
		TgtEmb: NewEmbedding(rng, cfg.DModel, tgtVocab, opt),
		SrcPos: NewPositionalEncoding(cfg.DModel, cfg.MaxSeqLen, optimizations.NewDropout(cfg.Dropout, rng)),
		TgtPos: NewPositionalEncoding(cfg.DModel, cfg.MaxSeqLen, optimizations.NewDropout(cfg.Dropout, rng)),
		Enc:    NewEncoder(rng, cfg, opt),
		Dec:    NewDecoder(rng, cfg, opt),
		Proj:   NewProjection(rng, cfg.DModel, tgtVocab, opt),
	}
	m.SrcEmb.GradClip = cfg.GradClip
	m.TgtEmb.GradClip = cfg.GradClip
	m.Proj.GradClip = cfg.GradClip
	m.SetLearningRate(cfg.LR)
	return m, nil
}

// Encode embeds the source ids and runs the encoder stack.
func (m *Model) Encode(srcIDs []int, srcMask *mat.Dense) *mat.Dense {
	m.srcIDs = srcIDs
	X := m.SrcPos.Forward(m.SrcEmb.Embed(srcIDs))
	return m.Enc.Forward(X, srcMask)
}

// Decode embeds the (shifted) target ids and runs the decoder stack
// against the encoder output.
func (m *Model) Decode(memory *mat.Dense, srcMask *mat.Dense, tgtIDs []int, tgtMask *mat.Dense) *mat.Dense {
	m.tgtIDs = tgtIDs
	X := m.TgtPos.Forward(m.TgtEmb.Embed(tgtIDs))
	return m.Dec.Forward(X, memory, srcMask, tgtMask)
}

// Project maps decoder output to vocabulary logits.
func (m *Model) Project(Y *mat.Dense) *mat.Dense {
	return m.Proj.Forward(Y)
}

// Backward runs the full reverse pass from the logit gradient:
// projection, decoder (collecting the cross-attention memory
// gradient), encoder, and finally both embedding tables. Each module
// applies its own optimizer step as the gradient passes through.
func (m *Model) Backward(dLogits *mat.Dense) {
	dDec := m.Proj.Backward(dLogits)
	dTgtX, dMemory := m.Dec.Backward(dDec)
	m.TgtEmb.Step(m.tgtIDs, m.TgtPos.Backward(dTgtX))

	dSrcX := m.Enc.Backward(dMemory)
	m.SrcEmb.Step(m.srcIDs, m.SrcPos.Backward(dSrcX))
}

// SetTraining flips every dropout gate in the model.
func (m *Model) SetTraining(training bool) {
	m.SrcPos.Drop.Training = training
	m.TgtPos.Drop.Training = training
	for _, b := range m.Enc.Blocks {
		b.SelfAttn.Drop.Training = training
		b.FF.Drop.Training = training
		b.res1.Drop.Training = training
		b.res2.Drop.Training = training
	}
	for _, b := range m.Dec.Blocks {
		b.SelfAttn.Drop.Training = training
		b.CrossAttn.Drop.Training = training
		b.FF.Drop.Training = training
		b.res1.Drop.Training = training
		b.res2.Drop.Training = training
		b.res3.Drop.Training = training
	}
}

// SetLearningRate pushes a (scheduled) learning rate to every module.
func (m *Model) SetLearningRate(lr float64) {
	m.SrcEmb.LearningRate = lr
	m.TgtEmb.LearningRate = lr
	m.Proj.LearningRate = lr
	for _, b := range m.Enc.Blocks {
		b.SelfAttn.LearningRate = lr
		b.FF.LearningRate = lr
		b.res1.Norm.LearningRate = lr
		b.res2.Norm.LearningRate = lr
	}
	m.Enc.Norm.LearningRate = lr
	for _, b := range m.Dec.Blocks {
		b.SelfAttn.LearningRate = lr
		b.CrossAttn.LearningRate = lr
		b.FF.LearningRate = lr
		b.res1.Norm.LearningRate = lr
		b.res2.Norm.LearningRate = lr
		b.res3.Norm.LearningRate = lr
	}
	m.Dec.Norm.LearningRate = lr
}
