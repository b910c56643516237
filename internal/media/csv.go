package media

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/lattice-io/termdex/internal/docmodel"
	"github.com/lattice-io/termdex/internal/valuestore"
)

// csvDecoder decodes a header row plus data rows into documents, one per
// data row, using the header row's entries as field names. A cell that
// parses as an integer or float decodes as that type; everything else
// decodes as a string. Ingest-only — there is no tabular rendering of a
// ranked query result, so this media type has no Encoder.
type csvDecoder struct{}

func (csvDecoder) Decode(r io.Reader) ([]docmodel.Document, error) {
	reader := csv.NewReader(r)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("decoding csv payload: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	header := rows[0]
	docs := make([]docmodel.Document, 0, len(rows)-1)
	for _, row := range rows[1:] {
		var doc docmodel.Document
		for i, cell := range row {
			if i >= len(header) {
				break
			}
			doc.Set(header[i], csvValue(cell))
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func csvValue(cell string) valuestore.Value {
	if n, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return valuestore.Int(n)
	}
	if f, err := strconv.ParseFloat(cell, 64); err == nil {
		return valuestore.Float(f)
	}
	return valuestore.String(cell)
}
