package postingsrpc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/lattice-io/termdex/internal/postings"
	"github.com/lattice-io/termdex/pkg/resilience"
)

// dialTimeout bounds the initial TCP handshake to a collection's postings
// server.
const dialTimeout = 5 * time.Second

// callRetry controls how hard a single request retries a transient
// connection fault before the circuit breaker records it as a failure.
var callRetry = resilience.RetryConfig{MaxAttempts: 2, InitialDelay: 25 * time.Millisecond, MaxDelay: 200 * time.Millisecond}

// Client is a persistent TCP connection to a Server. Call is safe for
// concurrent use; requests are serialized over the one connection the same
// way pkg/grpc's Client does. A circuit breaker guards the connection so a
// postings server that's wedged or unreachable fails fast instead of
// piling up blocked callers behind the mutex.
type Client struct {
	conn net.Conn
	mu   sync.Mutex
	cb   *resilience.CircuitBreaker
}

// Dial connects to a postingsrpc server at addr.
func Dial(addr string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	return &Client{
		conn: conn,
		cb:   resilience.NewCircuitBreaker("postingsrpc:"+addr, resilience.CircuitBreakerConfig{}),
	}, nil
}

// Close closes the underlying TCP connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Write sends a bulk write frame and returns the resulting head offset per
// item, in request order.
func (c *Client) Write(items []WriteItem) ([]int64, error) {
	body, err := c.call(OpWrite, encodeWriteRequest(WriteRequest{Items: items}))
	if err != nil {
		return nil, err
	}
	resp, err := decodeWriteResponse(body)
	if err != nil {
		return nil, err
	}
	return resp.Offsets, nil
}

// ReadReduce sends a read-reduce frame: a single OR cursor is a plain read,
// several cursors compose a full boolean reduce. It returns the total match
// count and every (doc-id, score) row, unpaged.
func (c *Client) ReadReduce(cursors []postings.Cursor) (ReducedResponse, error) {
	body, err := c.call(OpReadReduce, encodeReadReduceRequest(ReadReduceRequest{Cursors: cursors}))
	if err != nil {
		return ReducedResponse{}, err
	}
	return decodeReducedResponse(body)
}

// call sends one request frame and returns its response body. The circuit
// breaker trips on repeated connection-level failures so a dead postings
// server stops accepting new callers instead of letting them queue behind
// the mutex; within an allowed request, a transient send/receive fault
// retries once before counting against the breaker. Application-level
// errors (statusErr) are never retried — retrying the same bad request
// against the same server wouldn't change the outcome.
func (c *Client) call(opcode byte, body []byte) ([]byte, error) {
	var raw []byte
	err := c.cb.Execute(func() error {
		return resilience.Retry(context.Background(), "postingsrpc.call", callRetry, func() error {
			r, rerr := c.roundTrip(opcode, body)
			if rerr != nil {
				return rerr
			}
			raw = r
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("postingsrpc: empty response")
	}
	status, respBody := raw[0], raw[1:]
	if status == statusErr {
		return nil, fmt.Errorf("postingsrpc: %s", string(respBody))
	}
	return respBody, nil
}

func (c *Client) roundTrip(opcode byte, body []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	frame := append([]byte{opcode}, body...)
	if err := writeFrame(c.conn, frame); err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	resp, err := readFrame(c.conn)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return resp, nil
}
