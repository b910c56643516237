package postings

import "sort"

// Op is a boolean set operation folded left-to-right into an accumulator.
type Op uint8

const (
	OpAND Op = iota
	OpOR
	OpNOT
)

// Cursor names one operand of a Reduce call: the postings list rooted at
// HeadOffset, combined with Op, weighted uniformly by Score.
type Cursor struct {
	HeadOffset int64
	Op         Op
	Score      float32
}

// Scored is one (doc-id, score) result row.
type Scored struct {
	DocID uint64
	Score float32
}

// ScoredList is an already-resolved operand of Fold: a doc-id→score map
// combined via Op. It is the same algebra Reduce runs against postings
// pages, one level up — the query evaluator resolves term matches (trie
// lookups, fuzzy unions with per-match distance weighting, prefix unions)
// into per-doc scores itself and folds them here, without ever materializing
// a postings page for the union. Reduce builds a ScoredList with a uniform
// weight per doc-id in the resolved list; the evaluator builds one with
// per-doc weights that vary (fuzzy distance, vector angle).
type ScoredList struct {
	Scores map[uint64]float32
	Op     Op
}

// UniformScoredList wraps a plain doc-id list combined via Op, every member
// weighted identically by score.
func UniformScoredList(docIDs []uint64, op Op, score float32) ScoredList {
	scores := make(map[uint64]float32, len(docIDs))
	for _, id := range docIDs {
		scores[id] = score
	}
	return ScoredList{Scores: scores, Op: op}
}

// Fold combines lists left-to-right into a doc-id-keyed score accumulator:
// AND keeps the intersection and sums scores, OR unions and sums scores,
// NOT removes. The returned order is the accumulator's insertion order, the
// tie-break a stable sort over the result relies on.
func Fold(lists []ScoredList) (order []uint64, acc map[uint64]float32) {
	acc = make(map[uint64]float32)
	order = make([]uint64, 0)
	started := false

	for _, list := range lists {
		switch list.Op {
		case OpNOT:
			for id := range list.Scores {
				delete(acc, id)
			}
		case OpAND:
			if !started {
				for id, score := range list.Scores {
					acc[id] = score
					order = append(order, id)
				}
				started = true
				continue
			}
			for id := range acc {
				if score, ok := list.Scores[id]; !ok {
					delete(acc, id)
				} else {
					acc[id] += score
				}
			}
		case OpOR:
			for id, score := range list.Scores {
				if _, ok := acc[id]; ok {
					acc[id] += score
				} else {
					acc[id] = score
					order = append(order, id)
				}
			}
			started = true
		}
	}
	return order, acc
}

// foldAndPage runs Fold, sorts descending by score — stable, so ties keep
// Fold's insertion order — then applies skip/take paging.
func foldAndPage(lists []ScoredList, skip, take int) []Scored {
	order, acc := Fold(lists)

	out := make([]Scored, 0, len(acc))
	seen := make(map[uint64]struct{}, len(acc))
	for _, id := range order {
		if _, ok := acc[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, Scored{DocID: id, Score: acc[id]})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })

	if skip >= len(out) {
		return nil
	}
	end := len(out)
	if take > 0 && skip+take < end {
		end = skip + take
	}
	return out[skip:end]
}

// Reduce resolves each cursor's list (via Store.Read, so the cache is
// consulted) and folds it per Fold's algebra — the boolean reduction design
// note 9 has the postings service perform server-side.
func (s *Store) Reduce(collectionID uint64, cursors []Cursor, skip, take int) ([]Scored, error) {
	if len(cursors) == 0 {
		return nil, nil
	}
	lists := make([]ScoredList, 0, len(cursors))
	for _, cur := range cursors {
		list, err := s.Read(collectionID, cur.HeadOffset)
		if err != nil {
			return nil, err
		}
		lists = append(lists, UniformScoredList(list, cur.Op, cur.Score))
	}
	return foldAndPage(lists, skip, take), nil
}
