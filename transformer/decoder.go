package transformer

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/mwhitfield/seq2seq/optimizations"
	"github.com/mwhitfield/seq2seq/params"
	"github.com/mwhitfield/seq2seq/utils"
)

// DecoderBlock runs masked self-attention, cross-attention against the
// encoder output, then the feed-forward sublayer, each pre-norm
// residual-wrapped.
type DecoderBlock struct {
	SelfAttn  *Attention
	CrossAttn *Attention
	FF        *FeedForward

	self  *selfAttnSublayer
	cross *crossAttnSublayer
	res1  *Residual
	res2  *Residual
	res3  *Residual
}

func newDecoderBlock(rng *rand.Rand, cfg params.Config, opt optimizations.AdamConfig) *DecoderBlock {
	b := &DecoderBlock{
		SelfAttn:  NewAttention(rng, cfg.DModel, cfg.NumHeads, opt, optimizations.NewDropout(cfg.Dropout, rng)),
		CrossAttn: NewAttention(rng, cfg.DModel, cfg.NumHeads, opt, optimizations.NewDropout(cfg.Dropout, rng)),
		FF:        NewFeedForward(rng, cfg.DModel, cfg.DFF, opt, optimizations.NewDropout(cfg.Dropout, rng)),
	}
	b.SelfAttn.GradClip = cfg.GradClip
	b.CrossAttn.GradClip = cfg.GradClip
	b.FF.GradClip = cfg.GradClip
	b.self = &selfAttnSublayer{attn: b.SelfAttn}
	b.cross = &crossAttnSublayer{attn: b.CrossAttn}
	b.res1 = NewResidual(
		optimizations.NewLayerNorm(cfg.DModel, cfg.NormEps, opt),
		optimizations.NewDropout(cfg.Dropout, rng),
		b.self,
	)
	b.res2 = NewResidual(
		optimizations.NewLayerNorm(cfg.DModel, cfg.NormEps, opt),
		optimizations.NewDropout(cfg.Dropout, rng),
		b.cross,
	)
	b.res3 = NewResidual(
		optimizations.NewLayerNorm(cfg.DModel, cfg.NormEps, opt),
		optimizations.NewDropout(cfg.Dropout, rng),
		&feedForwardSublayer{ff: b.FF},
	)
	return b
}

func (b *DecoderBlock) Forward(X, memory *mat.Dense, srcMask, tgtMask *mat.Dense) *mat.Dense {
	b.self.mask = tgtMask
	b.cross.mask = srcMask
	b.cross.memory = memory
	return b.res3.Forward(b.res2.Forward(b.res1.Forward(X)))
}

// Backward returns the gradient for the block input and for the
// encoder output this block attended to.
func (b *DecoderBlock) Backward(dY *mat.Dense) (dX, dMemory *mat.Dense) {
	d2 := b.res3.Backward(dY)
	d1 := b.res2.Backward(d2)
	dX = b.res1.Backward(d1)
	return dX, b.cross.dMemory
}

// Decoder is the fixed stack of N decoder blocks with a final norm.
type Decoder struct {
	Blocks []*DecoderBlock
	Norm   *optimizations.LayerNorm
}

func NewDecoder(rng *rand.Rand, cfg params.Config, opt optimizations.AdamConfig) *Decoder {
	blocks := make([]*DecoderBlock, cfg.NumLayers)
	for i := range blocks {
		blocks[i] = newDecoderBlock(rng, cfg, opt)
	}
	return &Decoder{
		Blocks: blocks,
		Norm:   optimizations.NewLayerNorm(cfg.DModel, cfg.NormEps, opt),
	}
}

func (d *Decoder) Forward(X, memory *mat.Dense, srcMask, tgtMask *mat.Dense) *mat.Dense {
	for i := 0; i < len(d.Blocks); i++ {
		X = d.Blocks[i].Forward(X, memory, srcMask, tgtMask)
	}
	return d.Norm.Forward(X)
}

// Backward returns the input gradient and the memory gradient summed
// across every block's cross-attention.
func (d *Decoder) Backward(dY *mat.Dense) (dX, dMemory *mat.Dense) {
	dY = d.Norm.Backward(dY)
	for i := len(d.Blocks) - 1; i >= 0; i-- {
		var dMem *mat.Dense
		dY, dMem = d.Blocks[i].Backward(dY)
		if dMemory == nil {
			dMemory = dMem
		} else {
			dMemory = utils.ToDense(utils.Add(dMemory, dMem))
		}
	}
	return dY, dMemory
}
