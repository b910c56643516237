package postingsrpc

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/lattice-io/termdex/internal/postings"
)

const statusOK byte = 0
const statusErr byte = 1

// maxFrameSize bounds a single frame's length prefix; a value above this is
// treated as a protocol violation rather than an attempt to read gigabytes
// into memory.
const maxFrameSize = 256 << 20

// Server answers write and read-reduce frames against one collection's
// postings store over a persistent TCP connection.
type Server struct {
	store        *postings.Store
	collectionID uint64
	listener     net.Listener
	logger       *slog.Logger
	wg           sync.WaitGroup
	done         chan struct{}
}

// NewServer returns a Server bound to store for collectionID. One server
// instance serves exactly one collection's postings pages; a deployment
// with several collections runs several servers, one per port.
func NewServer(store *postings.Store, collectionID uint64) *Server {
	return &Server{
		store:        store,
		collectionID: collectionID,
		logger:       slog.Default().With("component", "postingsrpc-server"),
		done:         make(chan struct{}),
	}
}

// Serve accepts TCP connections on addr until Stop is called.
func (s *Server) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.ServeListener(ln)
}

// ServeListener accepts connections on an already-bound listener until Stop
// is called; Serve is ServeListener(net.Listen("tcp", addr)). Letting tests
// bind an ephemeral port ("127.0.0.1:0") and read back its address is the
// main reason this is split out.
func (s *Server) ServeListener(ln net.Listener) error {
	s.listener = ln
	s.logger.Info("postingsrpc server listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.done:
				return nil
			default:
				s.logger.Error("accept error", "error", err)
				continue
			}
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// Stop gracefully shuts the server down, waiting for in-flight connections.
func (s *Server) Stop() {
	close(s.done)
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	s.logger.Info("postingsrpc server stopped")
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	for {
		frame, err := readFrame(conn)
		if err != nil {
			return // connection closed or read error
		}
		if len(frame) == 0 {
			return
		}
		opcode, body := frame[0], frame[1:]

		respBody, err := s.dispatch(opcode, body)
		var out []byte
		if err != nil {
			out = append([]byte{statusErr}, []byte(err.Error())...)
		} else {
			out = append([]byte{statusOK}, respBody...)
		}
		if err := writeFrame(conn, out); err != nil {
			s.logger.Error("write error", "opcode", opcode, "error", err)
			return
		}
	}
}

func (s *Server) dispatch(opcode byte, body []byte) ([]byte, error) {
	switch opcode {
	case OpWrite:
		return s.handleWrite(body)
	case OpReadReduce:
		return s.handleReadReduce(body)
	default:
		return nil, fmt.Errorf("postingsrpc: unknown opcode %d", opcode)
	}
}

func (s *Server) handleWrite(body []byte) ([]byte, error) {
	req, err := decodeWriteRequest(body)
	if err != nil {
		return nil, err
	}
	offsets := make([]int64, len(req.Items))
	for i, item := range req.Items {
		if item.Offset == -1 {
			off, err := s.store.NewList(s.collectionID, item.DocIDs)
			if err != nil {
				return nil, err
			}
			offsets[i] = off
			continue
		}
		if err := s.store.Append(s.collectionID, item.Offset, item.DocIDs); err != nil {
			return nil, err
		}
		offsets[i] = item.Offset
	}
	return encodeWriteResponse(WriteResponse{Offsets: offsets}), nil
}

func (s *Server) handleReadReduce(body []byte) ([]byte, error) {
	req, err := decodeReadReduceRequest(body)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.Reduce(s.collectionID, req.Cursors, 0, 0)
	if err != nil {
		return nil, err
	}
	return encodeReducedResponse(ReducedResponse{Total: int64(len(rows)), Rows: rows}), nil
}

func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameSize {
		return nil, fmt.Errorf("postingsrpc: frame of %d bytes exceeds limit", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}
