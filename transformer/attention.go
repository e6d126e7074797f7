package transformer

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/mwhitfield/seq2seq/optimizations"
	"github.com/mwhitfield/seq2seq/utils"
)

// Attention is scaled dot-product attention split across H heads.
// The query source and the key/value source are separate arguments so
// one implementation serves both self-attention (X == M) and
// cross-attention (X from the decoder, M the encoder output).
type Attention struct {
	H      int
	DModel int
	DHead  int

	Wquery  []*mat.Dense // per head (dHead x dModel)
	Wkey    []*mat.Dense
	Wvalue  []*mat.Dense
	Woutput *mat.Dense // (dModel x dModel)

	LearningRate float64
	Opt          optimizations.AdamConfig
	GradClip     float64
	Drop         *optimizations.Dropout // gates attention weights

	// Adam state
	t        int
	mWq, vWq []*mat.Dense
	mWk, vWk []*mat.Dense
	mWv, vWv []*mat.Dense
	mWo, vWo *mat.Dense

	// cache for backprop
	X, M      *mat.Dense
	Q, K, V   []*mat.Dense
	A         []*mat.Dense // post-softmax weights (Tq x Tk)
	dropMasks []*mat.Dense // per-head dropout masks, nil when inactive
	Ocat      *mat.Dense
}

// NewAttention builds a multi-head attention module. dModel must
// divide evenly into heads; violating that is a programmer error and
// is rejected before any weight exists.
func NewAttention(rng *rand.Rand, dModel, nHeads int, opt optimizations.AdamConfig, drop *optimizations.Dropout) *Attention {
	if nHeads <= 0 || dModel%nHeads != 0 {
		panic("attention: dModel must be divisible by nHeads")
	}
	dHead := dModel / nHeads
	a := &Attention{
		H:      nHeads,
		DModel: dModel,
		DHead:  dHead,
		Opt:    opt,
		Drop:   drop,

		Wquery: make([]*mat.Dense, nHeads),
		Wkey:   make([]*mat.Dense, nHeads),
		Wvalue: make([]*mat.Dense, nHeads),

		mWq: make([]*mat.Dense, nHeads),
		vWq: make([]*mat.Dense, nHeads),
		mWk: make([]*mat.Dense, nHeads),
		vWk: make([]*mat.Dense, nHeads),
		mWv: make([]*mat.Dense, nHeads),
		vWv: make([]*mat.Dense, nHeads),

		Q:         make([]*mat.Dense, nHeads),
		K:         make([]*mat.Dense, nHeads),
		V:         make([]*mat.Dense, nHeads),
		A:         make([]*mat.Dense, nHeads),
		dropMasks: make([]*mat.Dense, nHeads),
	}
	for h := 0; h < nHeads; h++ {
		a.Wquery[h] = utils.XavierDense(rng, dHead, dModel)
		a.Wkey[h] = utils.XavierDense(rng, dHead, dModel)
		a.Wvalue[h] = utils.XavierDense(rng, dHead, dModel)

		a.mWq[h] = mat.NewDense(dHead, dModel, nil)
		a.vWq[h] = mat.NewDense(dHead, dModel, nil)
		a.mWk[h] = mat.NewDense(dHead, dModel, nil)
		a.vWk[h] = mat.NewDense(dHead, dModel, nil)
		a.mWv[h] = mat.NewDense(dHead, dModel, nil)
		a.vWv[h] = mat.NewDense(dHead, dModel, nil)
	}
	a.Woutput = utils.XavierDense(rng, dModel, dModel)
	a.mWo = mat.NewDense(dModel, dModel, nil)
	a.vWo = mat.NewDense(dModel, dModel, nil)
	return a
}

// Forward computes multi-head attention with queries from X (d x Tq)
// and keys/values from M (d x Tk). mask, if non-nil, is additive
// (Tq x Tk); suppressed positions end up with exactly zero weight.
func (a *Attention) Forward(X, M *mat.Dense, mask *mat.Dense) *mat.Dense {
	a.X, a.M = X, M
	_, Tq := X.Dims()
	_, Tk := M.Dims()
	rescale := 1.0 / math.Sqrt(float64(a.DHead))

	headsCat := mat.NewDense(a.DModel, Tq, nil)
	for h := 0; h < a.H; h++ {
		a.Q[h] = utils.ToDense(utils.Dot(a.Wquery[h], X)) // (dHead x Tq)
		a.K[h] = utils.ToDense(utils.Dot(a.Wkey[h], M))   // (dHead x Tk)
		a.V[h] = utils.ToDense(utils.Dot(a.Wvalue[h], M)) // (dHead x Tk)

		scores := mat.NewDense(Tq, Tk, nil)
		scores.Mul(a.Q[h].T(), a.K[h])
		scores.Scale(rescale, scores)
		if mask != nil {
			a.A[h] = utils.RowSoftmaxMasked(scores, mask)
		} else {
			a.A[h] = utils.RowSoftmax(scores)
		}

		Ah := a.A[h]
		a.dropMasks[h] = a.Drop.MaskMatrix(Tq, Tk)
		if a.dropMasks[h] != nil {
			Ah = utils.ToDense(utils.Multiply(Ah, a.dropMasks[h]))
		}

		O := mat.NewDense(a.DHead, Tq, nil)
		O.Mul(a.V[h], Ah.T())
		base := h * a.DHead
		dst := headsCat.Slice(base, base+a.DHead, 0, Tq).(*mat.Dense)
		dst.Copy(O)
	}
	a.Ocat = headsCat
	return utils.ToDense(utils.Dot(a.Woutput, headsCat))
}

// Backward computes gradients, applies one Adam step to the weights,
// and returns the gradients w.r.t. the query source and the key/value
// source. Self-attention callers add the two.
func (a *Attention) Backward(dY *mat.Dense) (dX, dM *mat.Dense) {
	dX, dM, dWq, dWk, dWv, dWo := a.BackwardGradsOnly(dY)

	flat := make([]*mat.Dense, 0, 3*a.H+1)
	flat = append(flat, dWo)
	flat = append(flat, dWq...)
	flat = append(flat, dWk...)
	flat = append(flat, dWv...)
	utils.ClipGrads(a.GradClip, flat...)

	a.t++
	lr := a.LearningRate
	for h := 0; h < a.H; h++ {
		optimizations.AdamUpdateInPlace(a.Wquery[h], dWq[h], a.mWq[h], a.vWq[h], a.t, lr, a.Opt.WeightDecay, a.Opt)
		optimizations.AdamUpdateInPlace(a.Wkey[h], dWk[h], a.mWk[h], a.vWk[h], a.t, lr, a.Opt.WeightDecay, a.Opt)
		optimizations.AdamUpdateInPlace(a.Wvalue[h], dWv[h], a.mWv[h], a.vWv[h], a.t, lr, a.Opt.WeightDecay, a.Opt)
	}
	optimizations.AdamUpdateInPlace(a.Woutput, dWo, a.mWo, a.vWo, a.t, lr, a.Opt.WeightDecay, a.Opt)
	return dX, dM
}

// BackwardGradsOnly computes all gradients without touching weights.
func (a *Attention) BackwardGradsOnly(dY *mat.Dense) (
	dX, dM *mat.Dense,
	dWq, dWk, dWv []*mat.Dense,
	dWo *mat.Dense,
) {
	_, Tq := a.X.Dims()
	_, Tk := a.M.Dims()
	rescale := 1.0 / math.Sqrt(float64(a.DHead))

	dWq = make([]*mat.Dense, a.H)
	dWk = make([]*mat.Dense, a.H)
	dWv = make([]*mat.Dense, a.H)

	// Y = Wo * Ocat
	dWo = utils.ToDense(utils.Dot(dY, a.Ocat.T()))
	dOcat := utils.ToDense(utils.Dot(a.Woutput.T(), dY))

	dX = mat.NewDense(a.DModel, Tq, nil)
	dM = mat.NewDense(a.DModel, Tk, nil)

	for h := 0; h < a.H; h++ {
		base := h * a.DHead
		dO := dOcat.Slice(base, base+a.DHead, 0, Tq).(*mat.Dense)

		// O = V * Ad^T where Ad is the (possibly dropped) weight matrix
		Ad := a.A[h]
		if a.dropMasks[h] != nil {
			Ad = utils.ToDense(utils.Multiply(Ad, a.dropMasks[h]))
		}
		dV := utils.ToDense(utils.Dot(dO, Ad))        // (dHead x Tk)
		dAd := utils.ToDense(utils.Dot(a.V[h].T(), dO)).T() // (Tq x Tk)

		// undo dropout, then softmax VJP
		dA := utils.ToDense(dAd)
		if a.dropMasks[h] != nil {
			dA = utils.ToDense(utils.Multiply(dA, a.dropMasks[h]))
		}
		dS := utils.SoftmaxBackward(dA, a.A[h]) // (Tq x Tk)

		// S = (Q^T K) * rescale
		dQ := utils.ToDense(utils.Scale(rescale, utils.Dot(a.K[h], dS.T()))) // (dHead x Tq)
		dK := utils.ToDense(utils.Scale(rescale, utils.Dot(a.Q[h], dS)))     // (dHead x Tk)

		dWq[h] = utils.ToDense(utils.Dot(dQ, a.X.T()))
		dWk[h] = utils.ToDense(utils.Dot(dK, a.M.T()))
		dWv[h] = utils.ToDense(utils.Dot(dV, a.M.T()))

		dX.Add(dX, utils.ToDense(utils.Dot(a.Wquery[h].T(), dQ)))
		dM.Add(dM, utils.ToDense(utils.Dot(a.Wkey[h].T(), dK)))
		dM.Add(dM, utils.ToDense(utils.Dot(a.Wvalue[h].T(), dV)))
	}
	return dX, dM, dWq, dWk, dWv, dWo
}
