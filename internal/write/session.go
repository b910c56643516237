// Package write implements the write session and indexing pipeline:
// bounded producer/consumer queues feeding per-field term trees,
// deferred-start validation, and atomic version commit.
package write

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lattice-io/termdex/internal/analyzer"
	"github.com/lattice-io/termdex/internal/block"
	"github.com/lattice-io/termdex/internal/collection"
	"github.com/lattice-io/termdex/internal/docmodel"
	"github.com/lattice-io/termdex/internal/docstore"
	"github.com/lattice-io/termdex/internal/trie"
	"github.com/lattice-io/termdex/internal/valuestore"
	"github.com/lattice-io/termdex/internal/vectree"
	"github.com/lattice-io/termdex/internal/version"
	tderrors "github.com/lattice-io/termdex/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Config sizes the model-builder pool and the deferred validator.
type Config struct {
	WorkerCount         int
	QueueDepth          int
	ValidatorSampleRate float64
}

func (c Config) withDefaults() Config {
	if c.WorkerCount <= 0 {
		c.WorkerCount = 4
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = 256
	}
	return c
}

type job struct {
	docID     int64
	keyID     uint64
	fieldName string
	analyzed  analyzer.AnalyzedString
	isVector  bool
}

type validatorSample struct {
	keyID     uint64
	term      string
	embedding []float64
	docID     int64
	isVector  bool
}

// Session coordinates one collection's value/doc/postings/tree writers for
// the duration of one batch.
type Session struct {
	col       *collection.Collection
	lock      *collection.Lock
	versionID int64
	cfg       Config

	jobs chan job
	wg   sync.WaitGroup

	treeMu    sync.Mutex // guards the maps below and per-tree locks
	tries     map[uint64]*trie.Trie
	vectrees  map[uint64]*vectree.Tree
	treeLocks map[uint64]*sync.Mutex
	fieldName map[uint64]string

	validatorMu      sync.Mutex
	validatorSamples []validatorSample

	docCount atomic.Int64
	flushed  atomic.Bool
	flushing atomic.Bool
	closed   atomic.Bool

	fatalMu  sync.Mutex
	fatalErr error
}

// NewSession acquires the collection's write lock and starts the
// model-builder worker pool. ErrConflictingWrite is returned immediately if
// another session already holds the lock. Zero fields of cfg fall back to
// the collection's Config before the package defaults apply.
func NewSession(col *collection.Collection, cfg Config) (*Session, error) {
	lock, err := collection.Acquire(col.DataDir)
	if err != nil {
		return nil, err
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = col.Config.WorkerCount
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = col.Config.QueueDepth
	}
	if cfg.ValidatorSampleRate <= 0 {
		cfg.ValidatorSampleRate = col.Config.ValidatorSampleRate
	}
	cfg = cfg.withDefaults()
	s := &Session{
		col:       col,
		lock:      lock,
		versionID: time.Now().UnixNano(),
		cfg:       cfg,
		jobs:      make(chan job, cfg.QueueDepth),
		tries:     make(map[uint64]*trie.Trie),
		vectrees:  make(map[uint64]*vectree.Tree),
		treeLocks: make(map[uint64]*sync.Mutex),
		fieldName: make(map[uint64]string),
	}
	for i := 0; i < cfg.WorkerCount; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s, nil
}

// VersionID is this session's batch version-id.
func (s *Session) VersionID() int64 { return s.versionID }

func (s *Session) worker() {
	defer s.wg.Done()
	for j := range s.jobs {
		s.processJob(j)
	}
}

func (s *Session) processJob(j job) {
	lock := s.treeLockFor(j.keyID, j.fieldName)
	lock.Lock()
	if j.isVector {
		tree := s.vectreeFor(j.keyID)
		for i := range j.analyzed.Spans {
			tree.Insert(j.analyzed.Embeddings[i], j.docID)
		}
	} else {
		tr := s.trieFor(j.keyID)
		for i := range j.analyzed.Spans {
			tr.InsertDoc(j.analyzed.Term(i), j.docID)
		}
	}
	lock.Unlock()

	if s.cfg.ValidatorSampleRate > 0 && len(j.analyzed.Spans) > 0 && rand.Float64() < s.cfg.ValidatorSampleRate {
		s.validatorMu.Lock()
		s.validatorSamples = append(s.validatorSamples, validatorSample{
			keyID: j.keyID, term: j.analyzed.Term(0), embedding: j.analyzed.Embeddings[0],
			docID: j.docID, isVector: j.isVector,
		})
		s.validatorMu.Unlock()
	}
}

func (s *Session) treeLockFor(keyID uint64, fieldName string) *sync.Mutex {
	s.treeMu.Lock()
	defer s.treeMu.Unlock()
	s.fieldName[keyID] = fieldName
	l, ok := s.treeLocks[keyID]
	if !ok {
		l = &sync.Mutex{}
		s.treeLocks[keyID] = l
	}
	return l
}

func (s *Session) trieFor(keyID uint64) *trie.Trie {
	s.treeMu.Lock()
	defer s.treeMu.Unlock()
	t, ok := s.tries[keyID]
	if !ok {
		t = trie.New()
		s.tries[keyID] = t
	}
	return t
}

func (s *Session) vectreeFor(keyID uint64) *vectree.Tree {
	s.treeMu.Lock()
	defer s.treeMu.Unlock()
	t, ok := s.vectrees[keyID]
	if !ok {
		t = vectree.New(s.col.Config.VectorThresholds)
		s.vectrees[keyID] = t
	}
	return t
}

// Submit runs the per-document pipeline from §4.10 step 1-4: assign
// doc-id, stamp engine fields, intern keys, append values, append the
// doc-map, then enqueue each indexable field's analyzed text onto the
// bounded model-builder queue. It returns the assigned doc-id.
func (s *Session) Submit(doc docmodel.Document) (int64, error) {
	if s.closed.Load() || s.flushed.Load() {
		return 0, fmt.Errorf("write session is closed")
	}
	docID := s.col.NextDocID()
	docmodel.StampEngineFields(&doc, docID, time.Now())

	fields := make([]docstore.FieldRef, 0, len(doc.Fields))
	for _, f := range doc.Fields {
		keyID, err := s.col.Keys.Intern(f.Name)
		if err != nil {
			return 0, err
		}
		blk, err := s.col.Values.Append(f.Value)
		if err != nil {
			return 0, err
		}
		fields = append(fields, docstore.FieldRef{
			KeyID: keyID, ValueOff: blk.Offset, ValueLen: blk.Length, ValueTag: blk.TypeTag,
		})
	}
	if err := s.col.Docs.Append(docID, fields); err != nil {
		return 0, err
	}

	for _, f := range doc.Fields {
		kind := docmodel.ClassifyField(f.Name)
		if kind == docmodel.KindEngine || f.Value.Tag != valuestore.TypeString {
			continue
		}
		keyID, _ := s.col.Keys.ID(f.Name)
		isVector := s.col.Config.VectorFields[f.Name]
		analyzed := analyzer.Analyze(f.Value.Str, analyzer.Options{SingleToken: kind == docmodel.KindSingleToken})
		if len(analyzed.Spans) == 0 {
			continue
		}
		s.jobs <- job{docID: docID, keyID: keyID, fieldName: f.Name, analyzed: analyzed, isVector: isVector}
	}

	s.docCount.Add(1)
	return docID, nil
}

// Flush joins the model-builder queue, runs the deferred validator (if
// configured), serializes each dirty tree in parallel, and posts every
// term's accumulated doc-ids to the postings store. Flush is idempotent
// and not concurrent with itself.
func (s *Session) Flush() error {
	if s.flushed.Load() {
		return nil
	}
	if !s.flushing.CompareAndSwap(false, true) {
		return fmt.Errorf("flush already in progress")
	}
	defer s.flushing.Store(false)

	s.closed.Store(true)
	close(s.jobs)
	s.wg.Wait()

	if err := s.runValidator(); err != nil {
		return err
	}

	var eg errgroup.Group
	s.treeMu.Lock()
	tries := s.tries
	vectrees := s.vectrees
	s.treeMu.Unlock()
	for keyID, tr := range tries {
		keyID, tr := keyID, tr
		eg.Go(func() error { return s.flushTrie(keyID, tr) })
	}
	for keyID, vt := range vectrees {
		keyID, vt := keyID, vt
		eg.Go(func() error { return s.flushVectree(keyID, vt) })
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	if err := s.col.Values.Flush(); err != nil {
		return err
	}
	if err := s.col.Docs.Flush(); err != nil {
		return err
	}
	if err := s.col.Keys.Flush(); err != nil {
		return err
	}
	if err := s.col.Postings.Flush(); err != nil {
		return err
	}

	s.flushed.Store(true)
	return nil
}

// runValidator re-queries each sampled (term, doc-id) pair against the
// still-in-memory tree and asserts the doc-id is reachable. Any miss is a
// fatal DataMisaligned that aborts the session.
func (s *Session) runValidator() error {
	s.validatorMu.Lock()
	samples := s.validatorSamples
	s.validatorMu.Unlock()

	for _, sample := range samples {
		if sample.isVector {
			tree := s.vectreeFor(sample.keyID)
			docs, _ := tree.ClosestMatch(sample.embedding)
			if _, ok := docs[sample.docID]; !ok {
				return fmt.Errorf("%w: validator could not reach doc %d via its nearest vector node", tderrors.ErrDataMisaligned, sample.docID)
			}
			continue
		}
		tr := s.trieFor(sample.keyID)
		n := tr.Lookup(sample.term)
		if n == nil {
			return fmt.Errorf("%w: validator miss for term %q doc %d", tderrors.ErrDataMisaligned, sample.term, sample.docID)
		}
		found := false
		for _, id := range n.DocIDs {
			if id == sample.docID {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: validator could not reach doc %d via term %q", tderrors.ErrDataMisaligned, sample.docID, sample.term)
		}
	}
	return nil
}

func (s *Session) flushTrie(keyID uint64, tr *trie.Trie) error {
	fieldName := s.fieldName[keyID]
	var postErr error
	tr.Walk(func(term string, n *trie.Node) {
		if postErr != nil || len(n.DocIDs) == 0 {
			return
		}
		ids := make([]uint64, len(n.DocIDs))
		for i, d := range n.DocIDs {
			ids[i] = uint64(d)
		}
		head, err := s.col.Postings.NewList(s.col.ID, ids)
		if err != nil {
			postErr = err
			return
		}
		n.Postings = block.Block{Offset: head, Length: int32(len(ids))}
		n.HasPostings = true
		n.DocIDs = nil
	})
	if postErr != nil {
		return postErr
	}

	stream, err := block.OpenAppendStream(s.col.TriePath(s.versionID, fieldName))
	if err != nil {
		return err
	}
	defer stream.Close()
	return tr.WriteTo(stream)
}

func (s *Session) flushVectree(keyID uint64, vt *vectree.Tree) error {
	addrStream, err := vectree.OpenPostingsAddrStream(s.col.VectorPostingsAddrPath(s.versionID, keyID))
	if err != nil {
		return err
	}
	defer addrStream.Close()

	var postErr error
	vt.Walk(func(n *vectree.Node) {
		if postErr != nil || len(n.Docs) == 0 {
			return
		}
		ids := make([]uint64, 0, len(n.Docs))
		for d := range n.Docs {
			ids = append(ids, uint64(d))
		}
		head, err := s.col.Postings.NewList(s.col.ID, ids)
		if err != nil {
			postErr = err
			return
		}
		n.Postings = block.Block{Offset: head, Length: int32(len(ids))}
		n.HasPostings = true
		if _, err := addrStream.Record(n.Postings); err != nil {
			postErr = err
		}
	})
	if postErr != nil {
		return postErr
	}
	if err := addrStream.Flush(); err != nil {
		return err
	}

	idxStream, err := block.OpenAppendStream(s.col.VectorIndexPath(s.versionID, keyID))
	if err != nil {
		return err
	}
	defer idxStream.Close()
	vecStream, err := block.OpenAppendStream(s.col.VecPath())
	if err != nil {
		return err
	}
	defer vecStream.Close()
	return vt.WriteTo(idxStream, vecStream)
}

// Commit flushes then publishes the batch-info file last — its presence is
// the publication signal readers use to include this batch.
func (s *Session) Commit(compression string) error {
	if err := s.Flush(); err != nil {
		return err
	}
	info := version.BatchInfo{
		VersionID:       s.versionID,
		DocCount:        s.docCount.Load(),
		Compression:     compression,
		PrimaryKeyField: s.col.Config.PrimaryKeyField,
	}
	if err := version.Publish(s.col.DataDir, s.col.ID, info); err != nil {
		return err
	}
	return s.lock.Release()
}

// Close performs cooperative cancellation: it drains and commits current
// work rather than rolling back mid-batch.
func (s *Session) Close() error {
	return s.Commit("none")
}
