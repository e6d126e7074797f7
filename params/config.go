package params

import "fmt"

// Config holds every knob for building and training the model.
// All fields are fixed at construction time; nothing is reconfigured
// while a run is in flight.
type Config struct {
	// Core transformer parameters
	DModel    int // model width
	NumLayers int // encoder/decoder blocks per stack
	NumHeads  int // attention heads; DHead = DModel/NumHeads
	DFF       int // feed-forward hidden width
	Dropout   float64
	MaxSeqLen int // sequences are padded/truncated to this length
	VocabSize int // cap for each of the source/target vocabularies

	// Training
	LR        float64
	BatchSize int
	Epochs    int
	ValFrac   float64 // fraction of pairs held out for evaluation

	// Optimizer
	AdamBeta1   float64
	AdamBeta2   float64
	AdamEps     float64
	WeightDecay float64 // AdamW-style, weights only; 0 disables
	WarmupSteps int     // linear warmup steps
	DecaySteps  int     // cosine decay steps after warmup (0 = none)
	GradClip    float64 // per-module global-norm clip; <=0 disables

	// Stability / behavior
	NormEps float64 // LayerNorm variance epsilon
	Causal  bool    // mask future positions in decoder self-attention
	Seed    int64
}

// Default returns a configuration sized for small CPU experiments.
func Default() Config {
	return Config{
		DModel:    64,
		NumLayers: 2,
		NumHeads:  4,
		DFF:       128,
		Dropout:   0.1,
		MaxSeqLen: 24,
		VocabSize: 2048,

		LR:        3e-4,
		BatchSize: 32,
		Epochs:    20,
		ValFrac:   0.1,

		AdamBeta1:   0.9,
		AdamBeta2:   0.999,
		AdamEps:     1e-8,
		WeightDecay: 0.01,
		WarmupSteps: 200,
		DecaySteps:  0,
		GradClip:    1.0,

		NormEps: 1e-6,
		Causal:  true,
		Seed:    42,
	}
}

// ReservedTokens is the number of vocabulary slots taken by the
// special ids (<pad>, <unk>, <bos>, <eos>).
const ReservedTokens = 4

// Validate rejects configurations that cannot build a model. It runs
// before any weight is allocated so a bad run dies immediately.
func (c Config) Validate() error {
	if c.DModel <= 0 || c.NumLayers <= 0 || c.DFF <= 0 || c.MaxSeqLen < 2 {
		return fmt.Errorf("params: non-positive dimension (dModel=%d layers=%d dFF=%d seqLen=%d)",
			c.DModel, c.NumLayers, c.DFF, c.MaxSeqLen)
	}
	if c.NumHeads <= 0 || c.DModel%c.NumHeads != 0 {
		return fmt.Errorf("params: dModel %d not divisible by %d heads", c.DModel, c.NumHeads)
	}
	if c.VocabSize <= ReservedTokens {
		return fmt.Errorf("params: vocab size %d leaves no room after %d reserved tokens",
			c.VocabSize, ReservedTokens)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return fmt.Errorf("params: dropout %g outside [0,1)", c.Dropout)
	}
	if c.LR <= 0 {
		return fmt.Errorf("params: learning rate %g must be positive", c.LR)
	}
	if c.NormEps <= 0 {
		return fmt.Errorf("params: norm epsilon %g must be positive", c.NormEps)
	}
	return nil
}
