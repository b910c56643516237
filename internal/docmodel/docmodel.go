// Package docmodel defines the dynamic document representation ingested by
// a write session: an ordered mapping from field name to a tagged
// comparable union, with engine-reserved sigils recognized up front.
package docmodel

import (
	"strings"
	"time"

	"github.com/lattice-io/termdex/internal/valuestore"
)

// FieldKind classifies a field name by its reserved-sigil prefix.
type FieldKind uint8

const (
	// KindUser is an ordinary, indexed field.
	KindUser FieldKind = iota
	// KindEngine is a "__"-prefixed field (__docid, __score): never indexed.
	KindEngine
	// KindSingleToken is a "_"-prefixed field indexed as one token.
	KindSingleToken
)

// ClassifyField returns the FieldKind for a raw field name.
func ClassifyField(name string) FieldKind {
	switch {
	case strings.HasPrefix(name, "__"):
		return KindEngine
	case strings.HasPrefix(name, "_"):
		return KindSingleToken
	default:
		return KindUser
	}
}

// Field is one name/value pair in a Document's input order.
type Field struct {
	Name  string
	Value valuestore.Value
}

// Document is an ordered field list preserving input order, as design note
// 9 requires for the doc-map invariant.
type Document struct {
	Fields []Field
}

// Get returns the first field with the given name, if present.
func (d Document) Get(name string) (valuestore.Value, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return valuestore.Value{}, false
}

// Set appends or replaces a field's value, preserving its original position
// if it already exists.
func (d *Document) Set(name string, v valuestore.Value) {
	for i, f := range d.Fields {
		if f.Name == name {
			d.Fields[i].Value = v
			return
		}
	}
	d.Fields = append(d.Fields, Field{Name: name, Value: v})
}

// StampEngineFields assigns __docid, propagates any upstream __docid to
// _original, and sets _created — the first step of the write session's
// per-document pipeline (§4.10 step 1).
func StampEngineFields(d *Document, docID int64, now time.Time) {
	if upstream, ok := d.Get("__docid"); ok {
		d.Set("_original", upstream)
	}
	d.Set("__docid", valuestore.Int(docID))
	d.Set("_created", valuestore.Timestamp(now))
}
