package media

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/lattice-io/termdex/internal/docmodel"
	"github.com/lattice-io/termdex/internal/query/evaluator"
	"github.com/lattice-io/termdex/internal/valuestore"
)

// jsonDecoder decodes a JSON array of flat objects into documents, one per
// element; a single bare object is accepted as a one-document payload.
// Numbers decode to Float unless they round-trip as an integer, strings
// decode to String, and RFC3339 strings are not special-cased — callers
// wanting a timestamp field set it explicitly via docmodel.Document.Set.
type jsonDecoder struct{}

func (jsonDecoder) Decode(r io.Reader) ([]docmodel.Document, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding json payload: %w", err)
	}

	var records []map[string]any
	if err := json.Unmarshal(raw, &records); err != nil {
		var single map[string]any
		if err2 := json.Unmarshal(raw, &single); err2 != nil {
			return nil, fmt.Errorf("json payload is neither an object nor an array of objects: %w", err)
		}
		records = []map[string]any{single}
	}

	docs := make([]docmodel.Document, len(records))
	for i, rec := range records {
		var doc docmodel.Document
		for name, v := range rec {
			doc.Set(name, jsonValue(v))
		}
		docs[i] = doc
	}
	return docs, nil
}

func jsonValue(v any) valuestore.Value {
	switch t := v.(type) {
	case float64:
		if t == float64(int64(t)) {
			return valuestore.Int(int64(t))
		}
		return valuestore.Float(t)
	case string:
		return valuestore.String(t)
	case bool:
		if t {
			return valuestore.Int(1)
		}
		return valuestore.Int(0)
	default:
		return valuestore.String(fmt.Sprintf("%v", t))
	}
}

// jsonEncoder renders an evaluator.Result as a JSON object with "total" and
// "hits" fields, each hit a {"doc_id", "score"} pair.
type jsonEncoder struct{}

type jsonHit struct {
	DocID int64   `json:"doc_id"`
	Score float32 `json:"score"`
}

type jsonResult struct {
	Total int64     `json:"total"`
	Hits  []jsonHit `json:"hits"`
}

func (jsonEncoder) Encode(w io.Writer, result evaluator.Result) error {
	out := jsonResult{Total: result.Total, Hits: make([]jsonHit, len(result.Hits))}
	for i, h := range result.Hits {
		out.Hits[i] = jsonHit{DocID: h.DocID, Score: h.Score}
	}
	return json.NewEncoder(w).Encode(out)
}

