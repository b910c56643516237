// Package adminrpc is the operator control channel: a thin JSON-over-TCP
// service for flushing and inspecting a collection out-of-band from the
// HTTP front end, built directly on pkg/grpc's method-dispatch server
// rather than the fixed binary layout internal/postingsrpc implements for
// the write/read-reduce hot path. A deployment that splits the ingest
// loader into its own process (so the HTTP front end doesn't have to be
// the one holding open write sessions) exposes this instead of requiring
// an operator to go through HTTP.
package adminrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	"github.com/lattice-io/termdex/internal/ingest"
	"github.com/lattice-io/termdex/internal/version"
	"github.com/lattice-io/termdex/pkg/grpc"
	"github.com/lattice-io/termdex/pkg/proto"
)

// StatsProvider resolves a collection name's (dataDir, collectionID) pair
// so Stats can read its published batches.
type StatsProvider func(name string) (dataDir string, collectionID uint64, err error)

// Server exposes Collection.Flush and Collection.Stats over pkg/grpc.
type Server struct {
	rpc    *grpc.Server
	loader *ingest.Loader
	stats  StatsProvider
}

// New builds an admin Server backed by loader (for Flush) and stats (for
// Stats). Either may be nil if the corresponding method should not be
// served.
func New(loader *ingest.Loader, stats StatsProvider) *Server {
	s := &Server{rpc: grpc.NewServer(), loader: loader, stats: stats}
	s.rpc.Register("Collection.Flush", s.handleFlush)
	s.rpc.Register("Collection.Stats", s.handleStats)
	return s
}

// Serve blocks accepting connections on addr until Stop is called.
func (s *Server) Serve(addr string) error {
	return s.rpc.Serve(addr)
}

// ServeListener blocks accepting connections on an already-bound listener
// until Stop is called.
func (s *Server) ServeListener(ln net.Listener) error {
	return s.rpc.ServeListener(ln)
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() {
	s.rpc.Stop()
}

func (s *Server) handleFlush(_ context.Context, req json.RawMessage) (any, error) {
	var in proto.FlushRequest
	if err := json.Unmarshal(req, &in); err != nil {
		return nil, fmt.Errorf("decoding flush request: %w", err)
	}
	if s.loader == nil {
		return proto.FlushResponse{Success: false, Message: "no ingest loader configured"}, nil
	}
	if err := s.loader.FlushCollection(in.CollectionName); err != nil {
		return proto.FlushResponse{Success: false, Message: err.Error()}, nil
	}
	return proto.FlushResponse{Success: true, Message: "flushed"}, nil
}

func (s *Server) handleStats(_ context.Context, req json.RawMessage) (any, error) {
	var in proto.StatsRequest
	if err := json.Unmarshal(req, &in); err != nil {
		return nil, fmt.Errorf("decoding stats request: %w", err)
	}
	if s.stats == nil {
		return proto.StatsResponse{}, nil
	}
	dataDir, collectionID, err := s.stats(in.CollectionName)
	if err != nil {
		return nil, err
	}
	batches, err := version.List(dataDir, collectionID)
	if err != nil {
		return nil, err
	}
	var totalDocs int64
	for _, b := range batches {
		totalDocs += b.DocCount
	}
	return proto.StatsResponse{TotalDocs: totalDocs, TotalSegments: int64(len(batches))}, nil
}

// Client dials an adminrpc Server and issues Flush/Stats commands against
// a named collection.
type Client struct {
	conn *grpc.Client
}

// Dial connects to an admin server at addr.
func Dial(addr string) (*Client, error) {
	conn, err := grpc.Dial(addr)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Flush asks the server to flush name's open ingest session.
func (c *Client) Flush(name string) (proto.FlushResponse, error) {
	var resp proto.FlushResponse
	err := c.conn.Call("Collection.Flush", proto.FlushRequest{CollectionName: name}, &resp)
	return resp, err
}

// Stats asks the server for name's published-batch totals.
func (c *Client) Stats(name string) (proto.StatsResponse, error) {
	var resp proto.StatsResponse
	err := c.conn.Call("Collection.Stats", proto.StatsRequest{CollectionName: name}, &resp)
	return resp, err
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
