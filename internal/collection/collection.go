// Package collection wires the on-disk stores (value, doc, key, postings)
// together for one named collection and assigns it its 64-bit
// collection-id, the prefix every collection file shares.
package collection

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/lattice-io/termdex/internal/docstore"
	"github.com/lattice-io/termdex/internal/keytable"
	"github.com/lattice-io/termdex/internal/postings"
	"github.com/lattice-io/termdex/internal/valuestore"
	"github.com/lattice-io/termdex/internal/vectree"
)

// Config is the set of collection-scoped policy knobs.
type Config struct {
	// PrimaryKeyField is the field whose value uniquely identifies a record
	// across versions; later versions shadow earlier ones on match.
	PrimaryKeyField string
	// VectorFields names fields indexed with the vector-space term tree
	// instead of the trie (Open Question: no field uses both).
	VectorFields map[string]bool
	// VectorThresholds overrides the default cosine-angle thresholds.
	VectorThresholds vectree.Thresholds
	// ValidatorSampleRate is the fraction of inserts the deferred validator
	// queue re-checks after build (0 disables it; 1 checks every insert).
	ValidatorSampleRate float64
	// WorkerCount sizes the model-builder pool.
	WorkerCount int
	// QueueDepth bounds the model-builder queue.
	QueueDepth int
}

// Collection owns the durable stores shared by every write session and
// read session against one named collection.
type Collection struct {
	Name    string
	ID      uint64
	DataDir string
	Config  Config

	Values   *valuestore.Store
	Docs     *docstore.Store
	Keys     *keytable.Table
	Postings *postings.Store

	nextDocID atomic.Int64
}

// HashName returns the 64-bit collection-id for a collection name.
func HashName(name string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return h.Sum64()
}

// Open opens (creating as needed) every file belonging to name's collection
// under dataDir, all sharing the collection-id prefix.
func Open(dataDir, name string, cfg Config) (*Collection, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}
	id := HashName(name)
	prefix := filepath.Join(dataDir, fmt.Sprintf("%d", id))

	values, err := valuestore.Open(prefix + ".val")
	if err != nil {
		return nil, err
	}
	docs, err := docstore.Open(prefix+".docs", prefix+".dix", prefix+".del")
	if err != nil {
		return nil, err
	}
	keys, err := keytable.Open(prefix + ".key")
	if err != nil {
		return nil, err
	}
	pos, err := postings.Open(prefix + ".pos")
	if err != nil {
		return nil, err
	}

	c := &Collection{
		Name:     name,
		ID:       id,
		DataDir:  dataDir,
		Config:   cfg,
		Values:   values,
		Docs:     docs,
		Keys:     keys,
		Postings: pos,
	}
	c.nextDocID.Store(docCountFromIndex(prefix + ".dix"))
	return c, nil
}

func docCountFromIndex(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size() / 12 // indexStride in docstore
}

// NextDocID assigns the next monotonic doc-id, dense within a write
// session's batch.
func (c *Collection) NextDocID() int64 {
	return c.nextDocID.Add(1) - 1
}

// FieldPrefix returns the <collection-id> path prefix every collection file
// shares.
func (c *Collection) FieldPrefix() string {
	return filepath.Join(c.DataDir, fmt.Sprintf("%d", c.ID))
}

// TriePath returns the per-collection, per-version, per-field serialized
// trie path.
func (c *Collection) TriePath(versionID int64, fieldName string) string {
	return filepath.Join(c.DataDir, fmt.Sprintf("%d-%d-%s.tri", c.ID, versionID, fieldName))
}

// VectorIndexPath returns the per-collection, per-version, per-key vector
// tree index path.
func (c *Collection) VectorIndexPath(versionID int64, keyID uint64) string {
	return filepath.Join(c.DataDir, fmt.Sprintf("%d-%d.%d.ix1", c.ID, versionID, keyID))
}

// VectorPostingsAddrPath returns the per-collection, per-version, per-key
// vector tree postings-address path.
func (c *Collection) VectorPostingsAddrPath(versionID int64, keyID uint64) string {
	return filepath.Join(c.DataDir, fmt.Sprintf("%d-%d.%d.ixp1", c.ID, versionID, keyID))
}

// VecPath returns the shared vector payload file for the vector-index
// variant.
func (c *Collection) VecPath() string {
	return c.FieldPrefix() + ".vec"
}

// Close closes every open store.
func (c *Collection) Close() error {
	c.Values.Close()
	c.Docs.Close()
	c.Keys.Close()
	return c.Postings.Close()
}
