package transformer

import (
	"gonum.org/v1/gonum/mat"

	"github.com/mwhitfield/seq2seq/optimizations"
	"github.com/mwhitfield/seq2seq/utils"
)

// Sublayer is the one operation a residual wrapper needs: apply the
// block to an already-normalized input, and run the matching VJP.
// Grad may update the sublayer's own parameters as a side effect,
// mirroring how every module here steps its weights during backward.
type Sublayer interface {
	Apply(x *mat.Dense) *mat.Dense
	Grad(dy *mat.Dense) *mat.Dense
}

// Residual implements the pre-norm residual connection:
// out = x + dropout(sublayer(norm(x))). The raw input rides the skip
// path untouched.
type Residual struct {
	Norm *optimizations.LayerNorm
	Drop *optimizations.Dropout
	Sub  Sublayer
}

func NewResidual(norm *optimizations.LayerNorm, drop *optimizations.Dropout, sub Sublayer) *Residual {
	return &Residual{Norm: norm, Drop: drop, Sub: sub}
}

func (r *Residual) Forward(X *mat.Dense) *mat.Dense {
	branch := r.Drop.Forward(r.Sub.Apply(r.Norm.Forward(X)))
	return utils.ToDense(utils.Add(X, branch))
}

// Backward splits dY between the skip path and the sublayer branch.
func (r *Residual) Backward(dY *mat.Dense) *mat.Dense {
	dBranch := r.Drop.Backward(dY)
	dNormIn := r.Sub.Grad(dBranch)
	return utils.ToDense(utils.Add(dY, r.Norm.Backward(dNormIn)))
}

// The three sublayer variants. Masks and the cross-attention memory
// change every forward pass, so the owning block refreshes these
// fields before calling Forward on the wrapper.

type selfAttnSublayer struct {
	attn *Attention
	mask *mat.Dense
}

func (s *selfAttnSublayer) Apply(x *mat.Dense) *mat.Dense {
	return s.attn.Forward(x, x, s.mask)
}

func (s *selfAttnSublayer) Grad(dy *mat.Dense) *mat.Dense {
	dX, dM := s.attn.Backward(dy)
	return utils.ToDense(utils.Add(dX, dM))
}

type crossAttnSublayer struct {
	attn    *Attention
	mask    *mat.Dense
	memory  *mat.Dense
	dMemory *mat.Dense // set by Grad, read by the owning decoder block
}

func (c *crossAttnSublayer) Apply(x *mat.Dense) *mat.Dense {
	return c.attn.Forward(x, c.memory, c.mask)
}

func (c *crossAttnSublayer) Grad(dy *mat.Dense) *mat.Dense {
	dX, dM := c.attn.Backward(dy)
	c.dMemory = dM
	return dX
}

type feedForwardSublayer struct {
	ff *FeedForward
}

func (f *feedForwardSublayer) Apply(x *mat.Dense) *mat.Dense {
	return f.ff.Forward(x)
}

func (f *feedForwardSublayer) Grad(dy *mat.Dense) *mat.Dense {
	return f.ff.Backward(dy)
}
