package corpus

import (
	"bufio"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"
)

// Pair is one parallel example: a source sentence and its translation.
type Pair struct {
	Source string
	Target string
}

// Example is a Pair encoded and padded to fixed length. Src holds the
// encoder input; Tgt is <bos> ... <eos> padded, feeding the
// teacher-forcing shift in the training loop.
type Example struct {
	Src []int
	Tgt []int
}

// LoadPairs reads a tab-separated parallel corpus, one
// "source\ttarget" pair per line. Blank lines are skipped.
func LoadPairs(path string) ([]Pair, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := bufio.NewReaderSize(f, 1<<20)
	var pairs []Pair
	lineNo := 0
	for {
		line, err := r.ReadString('\n')
		if len(line) > 0 {
			lineNo++
			line = strings.TrimRight(line, "\n")
			if strings.TrimSpace(line) != "" {
				src, tgt, ok := strings.Cut(line, "\t")
				if !ok {
					return nil, fmt.Errorf("corpus: line %d has no tab separator", lineNo)
				}
				pairs = append(pairs, Pair{Source: src, Target: tgt})
			}
		}
		if err == io.EOF {
			return pairs, nil
		}
		if err != nil {
			return pairs, err
		}
	}
}

// PadOrTruncate right-pads ids with <pad> to maxLen, truncating first
// if the sequence is longer.
func PadOrTruncate(ids []int, maxLen int) []int {
	out := make([]int, maxLen)
	for i := range out {
		out[i] = PadID
	}
	n := len(ids)
	if n > maxLen {
		n = maxLen
	}
	copy(out, ids[:n])
	return out
}

// MakeExamples encodes and pads every pair. Source sequences are bare
// token ids; target sequences are wrapped <bos> ... <eos> before
// padding so the decoder always sees a start symbol and learns to
// emit an end symbol.
func MakeExamples(pairs []Pair, srcVocab, tgtVocab Vocabulary, maxLen int) []Example {
	out := make([]Example, 0, len(pairs))
	for _, p := range pairs {
		src := PadOrTruncate(srcVocab.Encode(p.Source), maxLen)

		tgt := make([]int, 0, maxLen)
		tgt = append(tgt, BosID)
		tgt = append(tgt, tgtVocab.Encode(p.Target)...)
		tgt = append(tgt, EosID)
		tgt = PadOrTruncate(tgt, maxLen)

		out = append(out, Example{Src: src, Tgt: tgt})
	}
	return out
}

// Shuffle permutes examples in place. The training loop calls this at
// the start of every epoch; evaluation keeps its fixed order.
func Shuffle(rng *rand.Rand, ex []Example) {
	rng.Shuffle(len(ex), func(i, j int) {
		ex[i], ex[j] = ex[j], ex[i]
	})
}

// Split carves off the last fraction of examples as a held-out set.
func Split(ex []Example, valFrac float64) (train, val []Example) {
	if valFrac <= 0 || len(ex) < 2 {
		return ex, nil
	}
	n := int(float64(len(ex)) * (1 - valFrac))
	if n < 1 {
		n = 1
	}
	if n >= len(ex) {
		n = len(ex) - 1
	}
	return ex[:n], ex[n:]
}
