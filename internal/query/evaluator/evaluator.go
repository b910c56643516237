// Package evaluator resolves parsed queries against a collection's term
// trees and postings, newest batch version first, folding per-statement
// boolean composition through the same reduce algebra the postings store
// uses, then shadows primary keys across versions and pages the result.
package evaluator

import (
	"fmt"
	"sort"
	"time"

	"github.com/lattice-io/termdex/internal/block"
	"github.com/lattice-io/termdex/internal/collection"
	"github.com/lattice-io/termdex/internal/postings"
	"github.com/lattice-io/termdex/internal/query/parser"
	"github.com/lattice-io/termdex/internal/valuestore"
	"github.com/lattice-io/termdex/internal/version"
)

// defaultFuzzyEdits is the "default-edits" budget §4.8 names for the `~`
// modifier without pinning a number; 2 is generous enough to catch
// single-typo queries without flooding short terms with false matches.
const defaultFuzzyEdits = 2

// Hit is one (doc-id, score) row in a Result.
type Hit struct {
	DocID int64
	Score float32
}

// Result is a page of a query's ranked output plus the total match count
// before paging, mirroring the read-reduce wire frame's total-then-rows
// shape.
type Result struct {
	Hits  []Hit
	Total int64
}

// Evaluator answers queries against one collection's published batches.
type Evaluator struct {
	col        *collection.Collection
	fuzzyEdits int
}

// New returns an Evaluator reading col's published batches.
func New(col *collection.Collection) *Evaluator {
	return &Evaluator{col: col, fuzzyEdits: defaultFuzzyEdits}
}

// Query parses queryStr, resolves it against every published batch newest
// first, shadows primary keys across batches via
// version.CombineTakingLatestVersion, and returns a skip/take page sorted
// descending by score with a stable ascending-doc-id tie-break. An empty
// query returns an empty Result, not an error.
func (e *Evaluator) Query(queryStr string, skip, take int) (Result, error) {
	root, err := parser.Parse(queryStr)
	if err != nil {
		return Result{}, err
	}
	if root == nil {
		return Result{}, nil
	}

	batches, err := version.Newest(e.col.DataDir, e.col.ID)
	if err != nil {
		return Result{}, err
	}

	var rows []version.Record
	for _, batch := range batches {
		scored, err := e.evaluateBatch(root, batch)
		if err != nil {
			return Result{}, err
		}
		for _, s := range scored {
			pk, err := e.primaryKeyValue(int64(s.DocID), batch.VersionID)
			if err != nil {
				return Result{}, err
			}
			rows = append(rows, version.Record{
				PrimaryKey: pk,
				VersionID:  batch.VersionID,
				DocID:      int64(s.DocID),
				Score:      s.Score,
			})
		}
	}

	combined := version.CombineTakingLatestVersion(rows)
	sort.SliceStable(combined, func(i, j int) bool {
		if combined[i].Score != combined[j].Score {
			return combined[i].Score > combined[j].Score
		}
		return combined[i].DocID < combined[j].DocID
	})

	total := int64(len(combined))
	page := combined
	if skip >= len(page) {
		page = nil
	} else {
		end := len(page)
		if take > 0 && skip+take < end {
			end = skip + take
		}
		page = page[skip:end]
	}

	hits := make([]Hit, len(page))
	for i, r := range page {
		hits[i] = Hit{DocID: r.DocID, Score: r.Score}
	}
	return Result{Hits: hits, Total: total}, nil
}

// evaluateBatch folds every top-level statement's resolved ScoredList
// through postings.Fold, in source order, for one batch version.
func (e *Evaluator) evaluateBatch(root *parser.Node, batch version.BatchInfo) ([]postings.Scored, error) {
	var lists []postings.ScoredList
	for n := root; n != nil; n = n.Next {
		list, err := e.resolveStatement(n, batch)
		if err != nil {
			return nil, err
		}
		if list == nil {
			continue
		}
		lists = append(lists, *list)
	}
	if len(lists) == 0 {
		return nil, nil
	}
	order, acc := postings.Fold(lists)
	out := make([]postings.Scored, 0, len(acc))
	for _, id := range order {
		if score, ok := acc[id]; ok {
			out = append(out, postings.Scored{DocID: id, Score: score})
		}
	}
	return out, nil
}

// primaryKeyValue resolves the shadowing key for a hit: the configured
// primary-key field's value, stringified, or — when no primary key field is
// configured, or the document has none — a version-scoped doc-id so the
// document never collides with an unrelated one during CombineTakingLatestVersion.
func (e *Evaluator) primaryKeyValue(docID, versionID int64) (string, error) {
	fallback := fmt.Sprintf("%d:%d", versionID, docID)
	pkField := e.col.Config.PrimaryKeyField
	if pkField == "" {
		return fallback, nil
	}
	keyID, ok := e.col.Keys.ID(pkField)
	if !ok {
		return fallback, nil
	}
	fields, err := e.col.Docs.Read(docID)
	if err != nil {
		return "", err
	}
	for _, f := range fields {
		if f.KeyID != keyID {
			continue
		}
		v, err := e.col.Values.Read(block.Block{Offset: f.ValueOff, Length: f.ValueLen, TypeTag: f.ValueTag})
		if err != nil {
			return "", err
		}
		return valueToString(v), nil
	}
	return fallback, nil
}

func valueToString(v valuestore.Value) string {
	switch v.Tag {
	case valuestore.TypeInt:
		return fmt.Sprintf("i:%d", v.Int)
	case valuestore.TypeFloat:
		return fmt.Sprintf("f:%v", v.Float)
	case valuestore.TypeString:
		return "s:" + v.Str
	case valuestore.TypeTimestamp:
		return "t:" + v.Time.Format(time.RFC3339Nano)
	default:
		return ""
	}
}
