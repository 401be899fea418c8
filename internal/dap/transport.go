// Package dap serves the Debug Adapter Protocol (DAP) on top of a bridge
// session.
//
// A debugging front end connects over stdio or TCP. This package provides:
//   - Transport: message framing over any byte stream, with outgoing sequence numbers
//   - Server: request dispatch through a handler table, events from the session
//
// The protocol is described at: https://microsoft.github.io/debug-adapter-protocol/
package dap

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/go-dap"
)

// Transport reads requests from and writes responses and events to a front end.
type Transport struct {
	conn   io.ReadWriteCloser
	reader *bufio.Reader
	writer *bufio.Writer
	mu     sync.Mutex
	seq    int
	closed bool
}

// NewTransport creates a transport over conn, e.g. an accepted TCP connection.
func NewTransport(conn io.ReadWriteCloser) *Transport {
	return &Transport{
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
		seq:    1,
	}
}

// NewStdioTransport creates a transport reading from in and writing to out.
func NewStdioTransport(in io.ReadCloser, out io.WriteCloser) *Transport {
	return NewTransport(&stdioRWC{reader: in, writer: out})
}

type stdioRWC struct {
	reader io.ReadCloser
	writer io.WriteCloser
}

func (s *stdioRWC) Read(p []byte) (n int, err error) {
	return s.reader.Read(p)
}

func (s *stdioRWC) Write(p []byte) (n int, err error) {
	return s.writer.Write(p)
}

func (s *stdioRWC) Close() error {
	err1 := s.reader.Close()
	err2 := s.writer.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// Send stamps msg with the next sequence number and writes it. Messages are
// written in sequence order.
func (t *Transport) Send(msg dap.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("transport is closed")
	}

	switch m := msg.(type) {
	case dap.ResponseMessage:
		m.GetResponse().Seq = t.seq
	case dap.EventMessage:
		m.GetEvent().Seq = t.seq
	case dap.RequestMessage:
		m.GetRequest().Seq = t.seq
	}
	t.seq++

	if err := dap.WriteProtocolMessage(t.writer, msg); err != nil {
		return fmt.Errorf("failed to write DAP message: %w", err)
	}

	if err := t.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush DAP message: %w", err)
	}

	return nil
}

// Receive reads the next message. Requests for commands go-dap does not know
// fail with a *dap.DecodeProtocolMessageFieldError; the stream stays usable.
func (t *Transport) Receive() (dap.Message, error) {
	return dap.ReadProtocolMessage(t.reader)
}

// Close closes the underlying connection.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}

// Listen opens a TCP listener for front ends on address.
func Listen(address string) (net.Listener, error) {
	l, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	return l, nil
}
