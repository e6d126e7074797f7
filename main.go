package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"

	"github.com/mwhitfield/seq2seq/corpus"
	"github.com/mwhitfield/seq2seq/params"
	"github.com/mwhitfield/seq2seq/transformer"
)

func main() {
	cfg := params.Default()

	dataPath := flag.String("data", "", "tab-separated parallel corpus (source\\ttarget per line); empty uses the built-in demo pairs")
	flag.IntVar(&cfg.DModel, "dmodel", cfg.DModel, "model width")
	flag.IntVar(&cfg.NumLayers, "layers", cfg.NumLayers, "encoder/decoder blocks")
	flag.IntVar(&cfg.NumHeads, "heads", cfg.NumHeads, "attention heads")
	flag.IntVar(&cfg.DFF, "dff", cfg.DFF, "feed-forward width")
	flag.Float64Var(&cfg.Dropout, "dropout", cfg.Dropout, "dropout rate")
	flag.IntVar(&cfg.MaxSeqLen, "seqlen", cfg.MaxSeqLen, "max sequence length")
	flag.IntVar(&cfg.VocabSize, "vocab", cfg.VocabSize, "vocabulary cap per side")
	flag.IntVar(&cfg.BatchSize, "batch", cfg.BatchSize, "mini-batch size")
	flag.Float64Var(&cfg.LR, "lr", cfg.LR, "peak learning rate")
	flag.IntVar(&cfg.Epochs, "epochs", cfg.Epochs, "training epochs")
	flag.Float64Var(&cfg.ValFrac, "valfrac", cfg.ValFrac, "held-out fraction")
	flag.BoolVar(&cfg.Causal, "causal", cfg.Causal, "causal mask in decoder self-attention")
	flag.Int64Var(&cfg.Seed, "seed", cfg.Seed, "RNG seed")
	flag.Parse()

	if err := run(cfg, *dataPath); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(cfg params.Config, dataPath string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	pairs := demoPairs
	if dataPath != "" {
		var err error
		pairs, err = corpus.LoadPairs(dataPath)
		if err != nil {
			return err
		}
	}
	if len(pairs) == 0 {
		return fmt.Errorf("no training pairs")
	}

	srcLines := make([]string, len(pairs))
	tgtLines := make([]string, len(pairs))
	for i, p := range pairs {
		srcLines[i] = p.Source
		tgtLines[i] = p.Target
	}
	srcVocab, err := corpus.BuildVocab(srcLines, cfg.VocabSize)
	if err != nil {
		return err
	}
	tgtVocab, err := corpus.BuildVocab(tgtLines, cfg.VocabSize)
	if err != nil {
		return err
	}
	fmt.Printf("Pairs: %d  SrcVocab: %d  TgtVocab: %d\n", len(pairs), srcVocab.Size(), tgtVocab.Size())

	rng := rand.New(rand.NewSource(cfg.Seed))
	examples := corpus.MakeExamples(pairs, srcVocab, tgtVocab, cfg.MaxSeqLen)
	corpus.Shuffle(rng, examples)
	train, eval := corpus.Split(examples, cfg.ValFrac)

	model, err := transformer.New(cfg, srcVocab.Size(), tgtVocab.Size(), rng)
	if err != nil {
		return err
	}

	st := &TrainState{Rng: rng}
	return TrainModel(model, train, eval, cfg, st)
}

// demoPairs keeps `go run .` working without a corpus on disk.
var demoPairs = []corpus.Pair{
	{Source: "hello", Target: "hola"},
	{Source: "good morning", Target: "buenos dias"},
	{Source: "good night", Target: "buenas noches"},
	{Source: "thank you", Target: "gracias"},
	{Source: "see you tomorrow", Target: "hasta manana"},
	{Source: "how are you", Target: "como estas"},
	{Source: "i am fine", Target: "estoy bien"},
	{Source: "what is your name", Target: "como te llamas"},
	{Source: "my name is ana", Target: "me llamo ana"},
	{Source: "where is the station", Target: "donde esta la estacion"},
	{Source: "the cat sleeps", Target: "el gato duerme"},
	{Source: "the dog eats", Target: "el perro come"},
	{Source: "i like coffee", Target: "me gusta el cafe"},
	{Source: "i like tea", Target: "me gusta el te"},
	{Source: "the book is red", Target: "el libro es rojo"},
	{Source: "the house is big", Target: "la casa es grande"},
	{Source: "we go home", Target: "vamos a casa"},
	{Source: "it rains today", Target: "llueve hoy"},
	{Source: "the water is cold", Target: "el agua esta fria"},
	{Source: "i speak a little spanish", Target: "hablo un poco de espanol"},
}
