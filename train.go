package main

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/mwhitfield/seq2seq/corpus"
	"github.com/mwhitfield/seq2seq/params"
	"github.com/mwhitfield/seq2seq/transformer"
	"github.com/mwhitfield/seq2seq/utils"
)

// TrainState carries the mutable bits of a run (optimizer step count,
// shuffle RNG) explicitly through the training functions.
type TrainState struct {
	Step int
	Rng  *rand.Rand
}

// TrainModel runs the full teacher-forcing training loop: per epoch,
// shuffle, walk mini-batches, one forward/backward per example, then
// print the epoch's mean token loss (and held-out perplexity when an
// eval split exists). A non-finite loss aborts the run.
func TrainModel(model *transformer.Model, train, eval []corpus.Example, cfg params.Config, st *TrainState) error {
	for e := 0; e < cfg.Epochs; e++ {
		model.SetTraining(true)
		corpus.Shuffle(st.Rng, train)

		bar := progressbar.NewOptions(len(train),
			progressbar.OptionSetDescription(fmt.Sprintf("epoch %d/%d", e+1, cfg.Epochs)),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionClearOnFinish(),
		)

		start := time.Now()
		var totalLoss float64
		var tokens int
		for bs := 0; bs < len(train); bs += cfg.BatchSize {
			be := bs + cfg.BatchSize
			if be > len(train) {
				be = len(train)
			}
			for _, ex := range train[bs:be] {
				loss, n, err := trainStep(model, ex, cfg, st)
				if err != nil {
					return err
				}
				totalLoss += loss
				tokens += n
				_ = bar.Add(1)
			}
		}
		_ = bar.Finish()

		avg := 0.0
		if tokens > 0 {
			avg = totalLoss / float64(tokens)
		}
		line := fmt.Sprintf("Epoch %d - TrainTokLoss: %.4f, TrainPPL: %.1f, Tokens: %d, Time: %v",
			e+1, avg, math.Exp(avg), tokens, time.Since(start).Round(time.Millisecond))
		if len(eval) > 0 {
			evalLoss, evalTokens := EvaluateLoss(model, eval, cfg)
			if evalTokens > 0 {
				line += fmt.Sprintf(", EvalPPL: %.1f", math.Exp(evalLoss/float64(evalTokens)))
			}
		}
		fmt.Println(line)
	}
	return nil
}

// trainStep runs one example through encode -> decode -> project,
// scores it with pad-ignoring cross-entropy, and backpropagates.
// The decoder input is the target minus its last token; the expected
// output is the target minus its first (teacher forcing).
func trainStep(model *transformer.Model, ex corpus.Example, cfg params.Config, st *TrainState) (float64, int, error) {
	decIn := ex.Tgt[:len(ex.Tgt)-1]
	gold := ex.Tgt[1:]

	srcMask := transformer.PaddingMask(len(ex.Src), ex.Src)
	crossMask := transformer.PaddingMask(len(decIn), ex.Src)
	tgtMask := transformer.SelfMask(decIn, cfg.Causal)

	memory := model.Encode(ex.Src, srcMask)
	decOut := model.Decode(memory, crossMask, decIn, tgtMask)
	logits := model.Project(decOut)

	loss, grad, n := utils.MaskedCrossEntropy(logits, gold, corpus.PadID)
	if n == 0 {
		return 0, 0, nil
	}
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return 0, 0, fmt.Errorf("training diverged: loss=%v at step %d", loss, st.Step)
	}

	st.Step++
	model.SetLearningRate(utils.LRSchedule(st.Step, cfg.WarmupSteps, cfg.DecaySteps, cfg.LR))
	model.Backward(grad)
	return loss, n, nil
}

// EvaluateLoss scores examples in their fixed order with every
// dropout gate off. Forward only; no weight moves.
func EvaluateLoss(model *transformer.Model, eval []corpus.Example, cfg params.Config) (float64, int) {
	model.SetTraining(false)
	defer model.SetTraining(true)

	var totalLoss float64
	var tokens int
	for _, ex := range eval {
		decIn := ex.Tgt[:len(ex.Tgt)-1]
		gold := ex.Tgt[1:]

		srcMask := transformer.PaddingMask(len(ex.Src), ex.Src)
		crossMask := transformer.PaddingMask(len(decIn), ex.Src)
		tgtMask := transformer.SelfMask(decIn, cfg.Causal)

		memory := model.Encode(ex.Src, srcMask)
		logits := model.Project(model.Decode(memory, crossMask, decIn, tgtMask))
		loss, _, n := utils.MaskedCrossEntropy(logits, gold, corpus.PadID)
		totalLoss += loss
		tokens += n
	}
	return totalLoss, tokens
}
