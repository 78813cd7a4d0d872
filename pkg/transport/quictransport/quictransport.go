// Package quictransport adapts the low-level QUIC dial/listen layer
// (pkg/transport/quic) into a bus.Transport: a single long-lived QUIC peer
// that answers SEND and RECV requests against an in-memory store, so a
// stream's messages can be published and fetched across a network instead
// of only within one process.
package quictransport

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/WebFirstLanguage/strandweave/pkg/address"
	"github.com/WebFirstLanguage/strandweave/pkg/bus"
	lowtransport "github.com/WebFirstLanguage/strandweave/pkg/transport"
	quicdial "github.com/WebFirstLanguage/strandweave/pkg/transport/quic"
)

var _ bus.Transport = (*Client)(nil)

const (
	opSend byte = 0
	opRecv byte = 1
)

type conn = lowtransport.Conn

// Server accepts QUIC connections and answers SEND/RECV requests against an
// in-memory bucket of published messages, keyed by transport index.
type Server struct {
	mu       sync.Mutex
	msgs     map[[address.IndexSize]byte][][]byte
	listener lowtransport.Listener
}

// ListenAndServe starts a Server listening at addr and serves connections
// until ctx is cancelled or Close is called.
func ListenAndServe(ctx context.Context, addr string, tlsConfig *tls.Config) (*Server, error) {
	transport := quicdial.New()
	listener, err := transport.Listen(ctx, addr, tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("quictransport: listen: %w", err)
	}
	s := &Server{
		msgs:     make(map[[address.IndexSize]byte][][]byte),
		listener: listener,
	}
	go s.acceptLoop(ctx, listener)
	return s, nil
}

func (s *Server) acceptLoop(ctx context.Context, l lowtransport.Listener) {
	for {
		c, err := l.Accept(ctx)
		if err != nil {
			return
		}
		go s.serveConn(c)
	}
}

func (s *Server) serveConn(c conn) {
	defer c.Close()
	req, err := readRequest(c)
	if err != nil {
		return
	}
	switch req.op {
	case opSend:
		s.mu.Lock()
		s.msgs[req.addr.Index()] = append(s.msgs[req.addr.Index()], req.payload)
		s.mu.Unlock()
		writeAck(c)
	case opRecv:
		s.mu.Lock()
		msgs := append([][]byte(nil), s.msgs[req.addr.Index()]...)
		s.mu.Unlock()
		writeMessages(c, msgs)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	return s.listener.Close()
}

// Client is a bus.Transport backed by a remote Server over QUIC: each call
// dials a fresh stream, issues one request, and reads one response.
type Client struct {
	serverAddr string
	tlsConfig  *tls.Config
}

// NewClient builds a Client that dials serverAddr for every call.
func NewClient(serverAddr string, tlsConfig *tls.Config) *Client {
	return &Client{serverAddr: serverAddr, tlsConfig: tlsConfig}
}

// Send publishes msg at addr on the remote server.
func (c *Client) Send(ctx context.Context, addr address.Address, msg []byte) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := writeRequest(conn, request{op: opSend, addr: addr, payload: msg}); err != nil {
		return fmt.Errorf("quictransport: send: %w", err)
	}
	return readAck(conn)
}

// Recv fetches every message published at addr on the remote server.
func (c *Client) Recv(ctx context.Context, addr address.Address) ([][]byte, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := writeRequest(conn, request{op: opRecv, addr: addr}); err != nil {
		return nil, fmt.Errorf("quictransport: recv: %w", err)
	}
	return readMessages(conn)
}

func (c *Client) dial(ctx context.Context) (conn, error) {
	transport := quicdial.New()
	dialed, err := transport.Dial(ctx, c.serverAddr, c.tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("quictransport: dial: %w", err)
	}
	return dialed, nil
}

type request struct {
	op      byte
	addr    address.Address
	payload []byte
}

// writeRequest frames a request as op(1) || index(44) || size(4) || payload.
func writeRequest(w io.Writer, req request) error {
	idx := req.addr.Index()
	buf := make([]byte, 1+address.IndexSize+4+len(req.payload))
	buf[0] = req.op
	copy(buf[1:], idx[:])
	binary.BigEndian.PutUint32(buf[1+address.IndexSize:], uint32(len(req.payload)))
	copy(buf[1+address.IndexSize+4:], req.payload)
	_, err := w.Write(buf)
	return err
}

func readRequest(r io.Reader) (request, error) {
	head := make([]byte, 1+address.IndexSize+4)
	if _, err := io.ReadFull(r, head); err != nil {
		return request{}, err
	}
	var req request
	req.op = head[0]
	copy(req.addr.AppAddr[:], head[1:1+32])
	copy(req.addr.MsgID[:], head[1+32:1+address.IndexSize])
	n := binary.BigEndian.Uint32(head[1+address.IndexSize:])
	if n > 0 {
		req.payload = make([]byte, n)
		if _, err := io.ReadFull(r, req.payload); err != nil {
			return request{}, err
		}
	}
	return req, nil
}

// writeAck writes a single byte of value 1 acknowledging a SEND.
func writeAck(w io.Writer) error {
	_, err := w.Write([]byte{1})
	return err
}

func readAck(r io.Reader) error {
	b := make([]byte, 1)
	if _, err := io.ReadFull(r, b); err != nil {
		return fmt.Errorf("quictransport: read ack: %w", err)
	}
	if b[0] != 1 {
		return fmt.Errorf("quictransport: server rejected send")
	}
	return nil
}

// writeMessages frames a RECV response as count(4) || (size(4)||bytes)*count.
func writeMessages(w io.Writer, msgs [][]byte) error {
	head := make([]byte, 4)
	binary.BigEndian.PutUint32(head, uint32(len(msgs)))
	if _, err := w.Write(head); err != nil {
		return err
	}
	for _, m := range msgs {
		lenBuf := make([]byte, 4)
		binary.BigEndian.PutUint32(lenBuf, uint32(len(m)))
		if _, err := w.Write(lenBuf); err != nil {
			return err
		}
		if _, err := w.Write(m); err != nil {
			return err
		}
	}
	return nil
}

func readMessages(r io.Reader) ([][]byte, error) {
	head := make([]byte, 4)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, fmt.Errorf("quictransport: read message count: %w", err)
	}
	count := binary.BigEndian.Uint32(head)
	out := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		lenBuf := make([]byte, 4)
		if _, err := io.ReadFull(r, lenBuf); err != nil {
			return nil, fmt.Errorf("quictransport: read message length: %w", err)
		}
		n := binary.BigEndian.Uint32(lenBuf)
		m := make([]byte, n)
		if n > 0 {
			if _, err := io.ReadFull(r, m); err != nil {
				return nil, fmt.Errorf("quictransport: read message body: %w", err)
			}
		}
		out = append(out, m)
	}
	return out, nil
}
