// Package server defines the events exchanged between connection workers and
// the registry, the client handle the registry keeps per member, and the
// errors both sides report.
package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// Conn is the stream a worker owns. The worker reads from it; the registry
// writes to it and closes it. *net.TCPConn and wsConn both satisfy it.
type Conn interface {
	io.ReadWriteCloser
	RemoteAddr() net.Addr
}

// ClientHandle represents one registered connection as known to the registry.
// ConnID names the worker that registered it; only events from that worker
// may change or remove the entry.
type ClientHandle struct {
	Addr   string
	ConnID string
	Name   string
	Output io.WriteCloser
}

// Event is a single membership or text occurrence delivered to the registry.
// The set of events is closed; only types in this package implement it.
type Event interface {
	isEvent()
}

// Connected announces a client that finished its name handshake.
type Connected struct {
	Addr   string
	ConnID string
	Name   string
	Output io.WriteCloser
}

// Disconnected announces that the peer at Addr closed its connection.
type Disconnected struct {
	Addr   string
	ConnID string
}

// TextReceived carries one decoded chunk read from the client at Addr.
type TextReceived struct {
	Addr    string
	ConnID  string
	Content string
}

// statsRequest asks the registry for its member count without exposing the map.
type statsRequest struct {
	reply chan<- int
}

func (Connected) isEvent()    {}
func (Disconnected) isEvent() {}
func (TextReceived) isEvent() {}
func (statsRequest) isEvent() {}

// DuplicateClientError is reported when a Connected event names an address
// that is already registered.
type DuplicateClientError struct {
	Addr string
}

func (e *DuplicateClientError) Error() string {
	return fmt.Sprintf("client %s is already registered", e.Addr)
}

// UnknownClientError is reported when an event names an address that is not registered.
type UnknownClientError struct {
	Addr string
}

func (e *UnknownClientError) Error() string {
	return fmt.Sprintf("client %s is not registered", e.Addr)
}

// HandshakeError wraps the I/O failure that aborted a worker's name handshake.
type HandshakeError struct {
	Addr string
	Step string
	Err  error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake with %s failed during %s: %v", e.Addr, e.Step, e.Err)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// isConnectionGone reports whether err means the connection can no longer be
// read from or written to, either because the peer went away or because it
// was closed locally.
func isConnectionGone(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}
