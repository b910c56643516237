// Package media is the polymorphism point over per-media-type capabilities:
// a registry keyed by media-type string whose values are small orthogonal
// capability sets (decode for ingest, encode for query responses) rather
// than an inheritance chain, so adding a media type never touches the
// ingest or query-response code paths.
package media

import (
	"fmt"
	"io"
	"sync"

	"github.com/lattice-io/termdex/internal/docmodel"
	"github.com/lattice-io/termdex/internal/query/evaluator"
	tderrors "github.com/lattice-io/termdex/pkg/errors"
)

// ErrNotSupported is returned for an unregistered media type or a
// registered one missing the requested capability.
var ErrNotSupported = tderrors.ErrNotSupported

// Decoder turns a raw ingest payload into documents.
type Decoder interface {
	Decode(r io.Reader) ([]docmodel.Document, error)
}

// Encoder renders a query result for a media type's response format.
type Encoder interface {
	Encode(w io.Writer, result evaluator.Result) error
}

// Plugin is one media type's capability set. Either field may be nil if
// the media type only supports one direction.
type Plugin struct {
	Decoder Decoder
	Encoder Encoder
}

// Registry dispatches a Content-Type string to a Plugin. The same registry
// instance is shared between the Kafka ingest path and the HTTP front end.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
}

func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]Plugin)}
}

// Register installs plugin for mediaType, overwriting any prior plugin.
func (r *Registry) Register(mediaType string, plugin Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins[mediaType] = plugin
}

// Decoder returns mediaType's decoder, or an error if unregistered or the
// media type has no decode capability.
func (r *Registry) Decoder(mediaType string) (Decoder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	plugin, ok := r.plugins[mediaType]
	if !ok || plugin.Decoder == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotSupported, mediaType)
	}
	return plugin.Decoder, nil
}

// Encoder returns mediaType's encoder, or an error if unregistered or the
// media type has no encode capability.
func (r *Registry) Encoder(mediaType string) (Encoder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	plugin, ok := r.plugins[mediaType]
	if !ok || plugin.Encoder == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotSupported, mediaType)
	}
	return plugin.Encoder, nil
}

// Default returns a Registry with the built-in JSON and CSV plugins
// registered: JSON supports both directions, CSV ingest-only.
func Default() *Registry {
	r := NewRegistry()
	r.Register("application/json", Plugin{Decoder: jsonDecoder{}, Encoder: jsonEncoder{}})
	r.Register("text/csv", Plugin{Decoder: csvDecoder{}})
	return r
}
