// Package analyzer turns field text into the spans and embedding vectors
// the term trees are built from.
package analyzer

import (
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Span is a (start, length) token boundary measured in runes over the
// original character buffer.
type Span struct {
	Start, Length int
}

// AnalyzedString is the output of Analyze: the original rune buffer, the
// token spans found in it, and one embedding vector per span.
type AnalyzedString struct {
	Runes      []rune
	Spans      []Span
	Embeddings [][]float64
}

// Term returns the substring for span i.
func (a AnalyzedString) Term(i int) string {
	sp := a.Spans[i]
	return string(a.Runes[sp.Start : sp.Start+sp.Length])
}

// Terms returns every span's substring, in span order.
func (a AnalyzedString) Terms() []string {
	out := make([]string, len(a.Spans))
	for i := range a.Spans {
		out[i] = a.Term(i)
	}
	return out
}

// EmbeddingWidth is the dimensionality of the built-in hash embedder.
const EmbeddingWidth = 16

// Embedder derives a deterministic embedding vector from a token's runes.
// Identical token strings must yield identical vectors.
type Embedder interface {
	Embed(runes []rune) []float64
}

// HashEmbedder is the built-in deterministic embedder: it folds character
// n-grams through FNV-1a into EmbeddingWidth buckets. It requires no
// training and is a pure function of the span's runes, satisfying the
// determinism contract without any model dependency.
type HashEmbedder struct {
	N int // n-gram width; defaults to 3 if zero
}

func (h HashEmbedder) Embed(runes []rune) []float64 {
	n := h.N
	if n <= 0 {
		n = 3
	}
	vec := make([]float64, EmbeddingWidth)
	if len(runes) == 0 {
		return vec
	}
	for i := 0; i < len(runes); i++ {
		end := i + n
		if end > len(runes) {
			end = len(runes)
		}
		gram := runes[i:end]
		sum := fnv.New32a()
		for _, r := range gram {
			sum.Write([]byte(string(r)))
		}
		bucket := sum.Sum32() % uint32(EmbeddingWidth)
		vec[bucket]++
		if end == len(runes) {
			break
		}
	}
	normalize(vec)
	return vec
}

func normalize(v []float64) {
	var sum float64
	for _, f := range v {
		sum += f * f
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] /= norm
	}
}

// Options configures Analyze.
type Options struct {
	// SingleToken treats the whole value as one span (for fields prefixed
	// with a single underscore).
	SingleToken bool
	Embedder    Embedder
}

// Analyze splits s into token spans (or a single span when SingleToken is
// set) and derives one embedding per span.
func Analyze(s string, opts Options) AnalyzedString {
	runes := []rune(strings.ToLower(s))
	embedder := opts.Embedder
	if embedder == nil {
		embedder = HashEmbedder{}
	}

	var spans []Span
	if opts.SingleToken {
		if len(runes) > 0 {
			spans = []Span{{Start: 0, Length: len(runes)}}
		}
	} else {
		spans = splitSpans(runes)
	}

	embeddings := make([][]float64, len(spans))
	for i, sp := range spans {
		embeddings[i] = embedder.Embed(runes[sp.Start : sp.Start+sp.Length])
	}
	return AnalyzedString{Runes: runes, Spans: spans, Embeddings: embeddings}
}

func splitSpans(runes []rune) []Span {
	var spans []Span
	start := -1
	isWord := func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }
	for i, r := range runes {
		if isWord(r) {
			if start == -1 {
				start = i
			}
		} else if start != -1 {
			spans = append(spans, Span{Start: start, Length: i - start})
			start = -1
		}
	}
	if start != -1 {
		spans = append(spans, Span{Start: start, Length: len(runes) - start})
	}
	return spans
}
