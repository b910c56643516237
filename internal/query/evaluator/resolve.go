package evaluator

import (
	"math"
	"os"
	"strings"

	"github.com/lattice-io/termdex/internal/analyzer"
	"github.com/lattice-io/termdex/internal/block"
	"github.com/lattice-io/termdex/internal/postings"
	"github.com/lattice-io/termdex/internal/query/parser"
	"github.com/lattice-io/termdex/internal/trie"
	"github.com/lattice-io/termdex/internal/vectree"
	"github.com/lattice-io/termdex/internal/version"
)

// rangeUnbounded sorts after any realistic indexed term: its first rune is
// the highest Unicode code point, which UTF-8-encodes to a leading byte no
// ordinary term's first character reaches.
var rangeUnbounded = strings.Repeat(string(rune(0x10FFFF)), 4)

// resolveStatement resolves one top-level statement (and, for a multi-term
// value, its Then-chain of inner-conjunction terms) to a single ScoredList
// tagged with the statement's top-level Op, or nil if it matched nothing.
func (e *Evaluator) resolveStatement(n *parser.Node, batch version.BatchInfo) (*postings.ScoredList, error) {
	if n.IsRange {
		list, err := e.resolveRange(n, batch)
		if err != nil || list == nil {
			return nil, err
		}
		list.Op = toPostingsOp(n.Op)
		return list, nil
	}

	var inner []postings.ScoredList
	for t := n; t != nil; t = t.Then {
		list, err := e.resolveTerm(t, batch)
		if err != nil {
			return nil, err
		}
		if list == nil {
			list = &postings.ScoredList{Scores: map[uint64]float32{}}
		}
		list.Op = postings.OpAND
		inner = append(inner, *list)
	}
	if len(inner) == 0 {
		return nil, nil
	}
	_, acc := postings.Fold(inner)
	return &postings.ScoredList{Scores: acc, Op: toPostingsOp(n.Op)}, nil
}

// toPostingsOp translates a parser.Op into the equivalent postings.Op: the
// two enums share NOT's ordinal but order AND/OR oppositely, so this is not
// a plain numeric cast.
func toPostingsOp(op parser.Op) postings.Op {
	switch op {
	case parser.OpAND:
		return postings.OpAND
	case parser.OpNOT:
		return postings.OpNOT
	default:
		return postings.OpOR
	}
}

// resolveTerm resolves one Value/Modifier pair against its field's term
// tree (vector tree for a configured vector field, trie otherwise).
func (e *Evaluator) resolveTerm(n *parser.Node, batch version.BatchInfo) (*postings.ScoredList, error) {
	if e.col.Config.VectorFields[n.Key] {
		return e.resolveVectorTerm(n, batch)
	}
	tr, ok, err := e.loadTrie(batch.VersionID, n.Key)
	if err != nil || !ok {
		return nil, err
	}
	switch n.Modifier {
	case parser.ModFuzzy:
		return e.resolveFuzzy(tr, n.Value, batch)
	case parser.ModPrefix:
		return e.resolvePrefix(tr, n.Value, batch)
	default:
		return e.resolveExact(tr, n.Value, batch)
	}
}

func (e *Evaluator) resolveExact(tr *trie.Trie, value string, batch version.BatchInfo) (*postings.ScoredList, error) {
	node := tr.Lookup(value)
	if node == nil || !node.HasPostings {
		return nil, nil
	}
	ids, err := e.col.Postings.Read(e.col.ID, node.Postings.Offset)
	if err != nil {
		return nil, err
	}
	score := idf(batch.DocCount, len(ids))
	list := postings.UniformScoredList(ids, postings.OpOR, score)
	return &list, nil
}

// resolveFuzzy unions near(value, default-edits)'s matched terms' postings,
// scoring each doc by (1 − distance/max-edits) × idf of the term that
// matched it (summed across terms, per §4.8's "union the postings").
func (e *Evaluator) resolveFuzzy(tr *trie.Trie, value string, batch version.BatchInfo) (*postings.ScoredList, error) {
	matches := tr.Near(value, e.fuzzyEdits)
	if len(matches) == 0 {
		return nil, nil
	}
	scores := make(map[uint64]float32)
	for _, m := range matches {
		node := tr.Lookup(m.Term)
		if node == nil || !node.HasPostings {
			continue
		}
		ids, err := e.col.Postings.Read(e.col.ID, node.Postings.Offset)
		if err != nil {
			return nil, err
		}
		weight := float32(1-float64(m.Distance)/float64(e.fuzzyEdits)) * idf(batch.DocCount, len(ids))
		for _, id := range ids {
			scores[id] += weight
		}
	}
	if len(scores) == 0 {
		return nil, nil
	}
	return &postings.ScoredList{Scores: scores, Op: postings.OpOR}, nil
}

// resolvePrefix unions starts-with(value)'s matched terms' postings, each
// contributing its own idf.
func (e *Evaluator) resolvePrefix(tr *trie.Trie, value string, batch version.BatchInfo) (*postings.ScoredList, error) {
	terms := tr.StartsWith(value)
	if len(terms) == 0 {
		return nil, nil
	}
	scores := make(map[uint64]float32)
	for _, term := range terms {
		node := tr.Lookup(term)
		if node == nil || !node.HasPostings {
			continue
		}
		ids, err := e.col.Postings.Read(e.col.ID, node.Postings.Offset)
		if err != nil {
			return nil, err
		}
		weight := idf(batch.DocCount, len(ids))
		for _, id := range ids {
			scores[id] += weight
		}
	}
	if len(scores) == 0 {
		return nil, nil
	}
	return &postings.ScoredList{Scores: scores, Op: postings.OpOR}, nil
}

// resolveRange unions every term lexicographically within [lo, hi]'s
// postings with a uniform membership score — §1's Non-goals rule out any
// ranking beyond tf-idf and the vector angle score, so a range match is
// scored as presence only.
func (e *Evaluator) resolveRange(n *parser.Node, batch version.BatchInfo) (*postings.ScoredList, error) {
	tr, ok, err := e.loadTrie(batch.VersionID, n.Key)
	if err != nil || !ok {
		return nil, err
	}
	lo := ""
	if n.HasLo {
		lo = n.RangeLo
	}
	hi := rangeUnbounded
	if n.HasHi {
		hi = n.RangeHi
	}
	terms := tr.Range(lo, hi)
	if len(terms) == 0 {
		return nil, nil
	}
	scores := make(map[uint64]float32)
	for _, term := range terms {
		node := tr.Lookup(term)
		if node == nil || !node.HasPostings {
			continue
		}
		ids, err := e.col.Postings.Read(e.col.ID, node.Postings.Offset)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			scores[id] += 1
		}
	}
	if len(scores) == 0 {
		return nil, nil
	}
	return &postings.ScoredList{Scores: scores, Op: postings.OpOR}, nil
}

// resolveVectorTerm embeds the statement's value and resolves it against
// the vector tree's closest-match, scoring by the angle-based score §1
// names as the vector variant's ranking.
func (e *Evaluator) resolveVectorTerm(n *parser.Node, batch version.BatchInfo) (*postings.ScoredList, error) {
	keyID, ok := e.col.Keys.ID(n.Key)
	if !ok {
		return nil, nil
	}
	vt, ok, err := e.loadVectree(batch.VersionID, keyID)
	if err != nil || !ok {
		return nil, err
	}
	analyzed := analyzer.Analyze(n.Value, analyzer.Options{SingleToken: true})
	if len(analyzed.Embeddings) == 0 {
		return nil, nil
	}
	docs, angle := vt.ClosestMatch(analyzed.Embeddings[0])
	if len(docs) == 0 {
		return nil, nil
	}
	score := float32(1 - angle/math.Pi)
	scores := make(map[uint64]float32, len(docs))
	for d := range docs {
		scores[uint64(d)] = score
	}
	return &postings.ScoredList{Scores: scores, Op: postings.OpOR}, nil
}

func (e *Evaluator) loadTrie(versionID int64, fieldName string) (*trie.Trie, bool, error) {
	path := e.col.TriePath(versionID, fieldName)
	if _, err := os.Stat(path); err != nil {
		return nil, false, nil
	}
	stream, err := block.OpenAppendStream(path)
	if err != nil {
		return nil, false, err
	}
	defer stream.Close()
	tr, err := trie.ReadAll(stream)
	if err != nil {
		return nil, false, err
	}
	return tr, true, nil
}

func (e *Evaluator) loadVectree(versionID int64, keyID uint64) (*vectree.Tree, bool, error) {
	idxPath := e.col.VectorIndexPath(versionID, keyID)
	if _, err := os.Stat(idxPath); err != nil {
		return nil, false, nil
	}
	idxStream, err := block.OpenAppendStream(idxPath)
	if err != nil {
		return nil, false, err
	}
	defer idxStream.Close()
	vecStream, err := block.OpenAppendStream(e.col.VecPath())
	if err != nil {
		return nil, false, err
	}
	defer vecStream.Close()
	vt, err := vectree.ReadAll(idxStream, vecStream, e.col.Config.VectorThresholds)
	if err != nil {
		return nil, false, err
	}
	return vt, true, nil
}

func idf(totalDocs int64, matchCount int) float32 {
	if matchCount == 0 || totalDocs <= 0 {
		return 0
	}
	return float32(math.Log(float64(totalDocs)/float64(matchCount)) + 1)
}
