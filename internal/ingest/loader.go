// Package ingest drains a Kafka ingest topic and feeds decoded documents
// into write sessions, one open session per collection, committing on a
// size or time threshold. Grounded on the teacher's
// pkg/kafka.Consumer/internal/indexer/consumer pairing, generalized from a
// single-engine handler to a per-collection session pool since a bulk
// loader here fans out across many named collections rather than indexing
// into one engine.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lattice-io/termdex/internal/collection"
	"github.com/lattice-io/termdex/internal/media"
	"github.com/lattice-io/termdex/internal/write"
	"github.com/lattice-io/termdex/pkg/kafka"
	"github.com/lattice-io/termdex/pkg/metrics"
)

// Event is the Kafka message envelope: a collection name, a media type
// dispatching the payload through the registry, and the raw payload.
type Event struct {
	Collection  string `json:"collection"`
	ContentType string `json:"content_type"`
	Payload     []byte `json:"payload"`
}

// Config sizes the per-collection commit policy and the write sessions
// opened underneath it.
type Config struct {
	FlushInterval time.Duration
	BatchMaxDocs  int
	SessionConfig write.Config
}

func (c Config) withDefaults() Config {
	if c.FlushInterval <= 0 {
		c.FlushInterval = 5 * time.Second
	}
	if c.BatchMaxDocs <= 0 {
		c.BatchMaxDocs = 1000
	}
	return c
}

// ConfigResolver returns the collection.Config to open a named collection
// with, the first time the Loader sees that name.
type ConfigResolver func(name string) collection.Config

// Loader decodes ingest events and submits them to per-collection write
// sessions. Submit commits a session once it holds BatchMaxDocs documents
// or has been open for FlushInterval; the check runs only inside Submit, so
// no timer commits a session that receives no further events (Flush and
// FlushCollection commit on demand).
type Loader struct {
	dataDir  string
	registry *media.Registry
	resolve  ConfigResolver
	cfg      Config
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*pending
}

type pending struct {
	col      *collection.Collection
	sess     *write.Session
	count    int
	openedAt time.Time
}

// New returns a Loader rooted at dataDir, decoding payloads via registry and
// resolving each newly-seen collection's Config via resolve (nil resolve
// opens every collection with a zero Config). m may be nil to disable
// metric recording.
func New(dataDir string, registry *media.Registry, resolve ConfigResolver, cfg Config, m *metrics.Metrics) *Loader {
	if resolve == nil {
		resolve = func(string) collection.Config { return collection.Config{} }
	}
	return &Loader{
		dataDir:  dataDir,
		registry: registry,
		resolve:  resolve,
		cfg:      cfg.withDefaults(),
		metrics:  m,
		logger:   slog.Default().With("component", "ingest-loader"),
		sessions: make(map[string]*pending),
	}
}

// Handler returns a kafka.MessageHandler that decodes each message value as
// an Event and submits its documents.
func (l *Loader) Handler() kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[Event](value)
		if err != nil {
			l.logger.Error("failed to decode ingest event", "error", err)
			return nil
		}
		return l.Submit(event)
	}
}

// Submit decodes event's payload and submits each resulting document to
// event.Collection's open session, committing it first if the commit
// policy has been reached.
func (l *Loader) Submit(event Event) error {
	decoder, err := l.registry.Decoder(event.ContentType)
	if err != nil {
		return err
	}
	docs, err := decoder.Decode(bytes.NewReader(event.Payload))
	if err != nil {
		return fmt.Errorf("decoding %s payload for collection %q: %w", event.ContentType, event.Collection, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	p, err := l.sessionFor(event.Collection)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if _, err := p.sess.Submit(doc); err != nil {
			return fmt.Errorf("submitting document to %q: %w", event.Collection, err)
		}
		p.count++
	}
	if l.metrics != nil {
		l.metrics.WriteQueueDepth.WithLabelValues(event.Collection).Set(float64(p.count))
	}

	if p.count >= l.cfg.BatchMaxDocs || time.Since(p.openedAt) >= l.cfg.FlushInterval {
		return l.commitLocked(event.Collection)
	}
	return nil
}

// Flush commits every collection's open session regardless of its commit
// policy threshold; callers use this on shutdown so no submitted document
// is left unpublished.
func (l *Loader) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for name := range l.sessions {
		if err := l.commitLocked(name); err != nil {
			return err
		}
	}
	return nil
}

// FlushCollection commits name's open session, if any, regardless of its
// commit policy threshold. It is a no-op if name has no pending session.
func (l *Loader) FlushCollection(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.commitLocked(name)
}

func (l *Loader) sessionFor(name string) (*pending, error) {
	if p, ok := l.sessions[name]; ok {
		return p, nil
	}
	col, err := collection.Open(l.dataDir, name, l.resolve(name))
	if err != nil {
		return nil, fmt.Errorf("opening collection %q: %w", name, err)
	}
	sess, err := write.NewSession(col, l.cfg.SessionConfig)
	if err != nil {
		col.Close()
		return nil, fmt.Errorf("opening write session for %q: %w", name, err)
	}
	p := &pending{col: col, sess: sess, openedAt: time.Now()}
	l.sessions[name] = p
	return p, nil
}

// commitLocked commits and closes name's session; caller holds l.mu.
func (l *Loader) commitLocked(name string) error {
	p, ok := l.sessions[name]
	if !ok {
		return nil
	}
	delete(l.sessions, name)
	started := time.Now()
	if err := p.sess.Commit("none"); err != nil {
		p.col.Close()
		if l.metrics != nil {
			l.metrics.BatchCommitsTotal.WithLabelValues(name, "error").Inc()
		}
		return fmt.Errorf("committing collection %q: %w", name, err)
	}
	if l.metrics != nil {
		l.metrics.BatchCommitsTotal.WithLabelValues(name, "ok").Inc()
		l.metrics.BatchCommitLatency.WithLabelValues(name).Observe(time.Since(started).Seconds())
		l.metrics.WriteQueueDepth.WithLabelValues(name).Set(0)
	}
	l.logger.Info("committed ingest batch", "collection", name, "docs", p.count)
	return p.col.Close()
}
