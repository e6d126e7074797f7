package transformer

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/mwhitfield/seq2seq/optimizations"
	"github.com/mwhitfield/seq2seq/params"
)

// EncoderBlock is one self-attention sublayer followed by one
// feed-forward sublayer, each wrapped pre-norm with its own residual.
type EncoderBlock struct {
	SelfAttn *Attention
	FF       *FeedForward

	self *selfAttnSublayer
	res1 *Residual
	res2 *Residual
}

func newEncoderBlock(rng *rand.Rand, cfg params.Config, opt optimizations.AdamConfig) *EncoderBlock {
	b := &EncoderBlock{
		SelfAttn: NewAttention(rng, cfg.DModel, cfg.NumHeads, opt, optimizations.NewDropout(cfg.Dropout, rng)),
		FF:       NewFeedForward(rng, cfg.DModel, cfg.DFF, opt, optimizations.NewDropout(cfg.Dropout, rng)),
	}
	b.SelfAttn.GradClip = cfg.GradClip
	b.FF.GradClip = cfg.GradClip
	b.self = &selfAttnSublayer{attn: b.SelfAttn}
	b.res1 = NewResidual(
		optimizations.NewLayerNorm(cfg.DModel, cfg.NormEps, opt),
		optimizations.NewDropout(cfg.Dropout, rng),
		b.self,
	)
	b.res2 = NewResidual(
		optimizations.NewLayerNorm(cfg.DModel, cfg.NormEps, opt),
		optimizations.NewDropout(cfg.Dropout, rng),
		&feedForwardSublayer{ff: b.FF},
	)
	return b
}

func (b *EncoderBlock) Forward(X *mat.Dense, srcMask *mat.Dense) *mat.Dense {
	b.self.mask = srcMask
	return b.res2.Forward(b.res1.Forward(X))
}

func (b *EncoderBlock) Backward(dY *mat.Dense) *mat.Dense {
	return b.res1.Backward(b.res2.Backward(dY))
}

// Encoder is the fixed stack of N blocks with a final normalization.
type Encoder struct {
	Blocks []*EncoderBlock
	Norm   *optimizations.LayerNorm
}

func NewEncoder(rng *rand.Rand, cfg params.Config, opt optimizations.AdamConfig) *Encoder {
	blocks := make([]*EncoderBlock, cfg.NumLayers)
	for i := range blocks {
		blocks[i] = newEncoderBlock(rng, cfg, opt)
	}
	return &Encoder{
		Blocks: blocks,
		Norm:   optimizations.NewLayerNorm(cfg.DModel, cfg.NormEps, opt),
	}
}

func (e *Encoder) Forward(X *mat.Dense, srcMask *mat.Dense) *mat.Dense {
	for i := 0; i < len(e.Blocks); i++ {
		X = e.Blocks[i].Forward(X, srcMask)
	}
	return e.Norm.Forward(X)
}

func (e *Encoder) Backward(dY *mat.Dense) *mat.Dense {
	dY = e.Norm.Backward(dY)
	for i := len(e.Blocks) - 1; i >= 0; i-- {
		dY = e.Blocks[i].Backward(dY)
	}
	return dY
}
