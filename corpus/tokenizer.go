package corpus

import (
	"fmt"
	"sort"
	"strings"
)

// Reserved token ids. Ids 0 and 1 carry the padding/unknown contract;
// <bos>/<eos> delimit target sequences for the teacher-forcing shift.
const (
	PadID = 0
	UnkID = 1
	BosID = 2
	EosID = 3
)

var special = []string{"<pad>", "<unk>", "<bos>", "<eos>"}

// Vocabulary is a frozen bidirectional word<->id mapping. Build it
// once from training text; it never grows afterwards.
type Vocabulary struct {
	TokenToID map[string]int
	IDToToken []string
}

// BuildVocab counts whitespace-delimited tokens across the corpus and
// keeps the most frequent ones after the reserved ids. Ties break
// lexicographically so the vocabulary is deterministic.
func BuildVocab(lines []string, maxSize int) (Vocabulary, error) {
	if maxSize <= len(special) {
		return Vocabulary{}, fmt.Errorf("corpus: vocab size %d must exceed %d reserved tokens",
			maxSize, len(special))
	}
	counts := make(map[string]int, 1<<12)
	for _, s := range lines {
		for _, t := range strings.Fields(s) {
			counts[t]++
		}
	}
	type kv struct {
		k string
		v int
	}
	arr := make([]kv, 0, len(counts))
	for k, v := range counts {
		arr = append(arr, kv{k, v})
	}
	sort.Slice(arr, func(i, j int) bool {
		if arr[i].v == arr[j].v {
			return arr[i].k < arr[j].k
		}
		return arr[i].v > arr[j].v
	})

	idToToken := append([]string{}, special...)
	for _, p := range arr {
		if len(idToToken) >= maxSize {
			break
		}
		idToToken = append(idToToken, p.k)
	}
	tok2id := make(map[string]int, len(idToToken))
	for i, t := range idToToken {
		tok2id[t] = i
	}
	return Vocabulary{TokenToID: tok2id, IDToToken: idToToken}, nil
}

func (v Vocabulary) Size() int { return len(v.IDToToken) }

// Lookup maps a token to its id, falling back to <unk>.
func (v Vocabulary) Lookup(tok string) int {
	if id, ok := v.TokenToID[tok]; ok {
		return id
	}
	return UnkID
}

// Encode maps whitespace tokens to ids. Out-of-vocabulary words
// collapse wholly to the unknown id; there is no subword fallback.
func (v Vocabulary) Encode(text string) []int {
	fields := strings.Fields(text)
	ids := make([]int, len(fields))
	for i, t := range fields {
		ids[i] = v.Lookup(t)
	}
	return ids
}

// Decode is the inverse of Encode: unrecognized ids render as the
// literal unknown token. The round trip is lossy exactly where Encode
// was.
func (v Vocabulary) Decode(ids []int) string {
	toks := make([]string, len(ids))
	for i, id := range ids {
		if id < 0 || id >= len(v.IDToToken) {
			toks[i] = special[UnkID]
			continue
		}
		toks[i] = v.IDToToken[id]
	}
	return strings.Join(toks, " ")
}
