package transformer

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/mwhitfield/seq2seq/optimizations"
	"github.com/mwhitfield/seq2seq/utils"
)

// Embedding is a trained (dModel x vocab) lookup table. Lookups are
// scaled by sqrt(dModel) so the positional signal does not swamp the
// embedding at small widths.
type Embedding struct {
	DModel       int
	Table        *mat.Dense // (d x V)
	LearningRate float64
	Opt          optimizations.AdamConfig
	GradClip     float64

	scale float64
	t     int
	m, v  *mat.Dense
}

func NewEmbedding(rng *rand.Rand, dModel, vocab int, opt optimizations.AdamConfig) *Embedding {
	return &Embedding{
		DModel: dModel,
		Table:  utils.XavierDense(rng, dModel, vocab),
		Opt:    opt,
		scale:  math.Sqrt(float64(dModel)),
		m:      mat.NewDense(dModel, vocab, nil),
		v:      mat.NewDense(dModel, vocab, nil),
	}
}

// Embed gathers columns for ids into a (d x T) matrix, scaled.
func (e *Embedding) Embed(ids []int) *mat.Dense {
	T := len(ids)
	out := mat.NewDense(e.DModel, T, nil)
	for t, id := range ids {
		for i := 0; i < e.DModel; i++ {
			out.Set(i, t, e.Table.At(i, id)*e.scale)
		}
	}
	return out
}

// Step scatters the sequence gradient dX (d x T) back into the table
// columns the forward pass read, then applies one Adam update.
func (e *Embedding) Step(ids []int, dX *mat.Dense) {
	d, V := e.Table.Dims()
	dTable := mat.NewDense(d, V, nil)
	for t, id := range ids {
		for i := 0; i < d; i++ {
			dTable.Set(i, id, dTable.At(i, id)+dX.At(i, t)*e.scale)
		}
	}
	utils.ClipGrads(e.GradClip, dTable)
	e.t++
	optimizations.AdamUpdateInPlace(e.Table, dTable, e.m, e.v, e.t, e.LearningRate, 0, e.Opt)
}

// sinusoidCache holds one table per (dModel, maxLen); the model runs
// single-threaded so a plain map suffices.
var sinusoidCache = map[[2]int]*mat.Dense{}

// Sinusoid returns the (dModel x maxLen) deterministic positional
// table: even feature rows use sin, odd rows cos, of
// pos / 10000^(2i/dModel). Computed once per shape.
func Sinusoid(dModel, maxLen int) *mat.Dense {
	key := [2]int{dModel, maxLen}
	if t, ok := sinusoidCache[key]; ok {
		return t
	}
	out := mat.NewDense(dModel, maxLen, nil)
	for pos := 0; pos < maxLen; pos++ {
		for i := 0; i < dModel; i++ {
			exp := float64(2*(i/2)) / float64(dModel)
			angle := float64(pos) / math.Pow(10000, exp)
			if i%2 == 0 {
				out.Set(i, pos, math.Sin(angle))
			} else {
				out.Set(i, pos, math.Cos(angle))
			}
		}
	}
	sinusoidCache[key] = out
	return out
}

// PositionalEncoding adds the sinusoidal signal and gates the result
// with dropout during training.
type PositionalEncoding struct {
	DModel int
	MaxLen int
	Drop   *optimizations.Dropout

	table *mat.Dense
}

func NewPositionalEncoding(dModel, maxLen int, drop *optimizations.Dropout) *PositionalEncoding {
	return &PositionalEncoding{
		DModel: dModel,
		MaxLen: maxLen,
		Drop:   drop,
		table:  Sinusoid(dModel, maxLen),
	}
}

func (p *PositionalEncoding) Forward(X *mat.Dense) *mat.Dense {
	d, T := X.Dims()
	if T > p.MaxLen {
		panic("PositionalEncoding: sequence longer than table")
	}
	out := mat.NewDense(d, T, nil)
	for t := 0; t < T; t++ {
		for i := 0; i < d; i++ {
			out.Set(i, t, X.At(i, t)+p.table.At(i, t))
		}
	}
	return p.Drop.Forward(out)
}

// Backward routes the gradient through the dropout gate; the table
// itself is deterministic and owns no parameters.
func (p *PositionalEncoding) Backward(dY *mat.Dense) *mat.Dense {
	return p.Drop.Backward(dY)
}
