// Package server runs one worker per client connection, turning the name
// handshake, inbound text, and connection close into hub events.
package server

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const namePrompt = "Enter your name: "

// EventPublisher accepts events on behalf of the registry. *Hub implements it.
type EventPublisher interface {
	Submit(ctx context.Context, ev Event) error
}

// Client is the worker for a single connection. It never touches other
// clients; everything it observes is reported as an Event.
type Client struct {
	conn           Conn
	events         EventPublisher
	addr           string
	id             string
	readBufferSize int
	log            *zap.Logger
}

// NewClient creates a worker for conn. The remote address becomes the
// client's identity in the registry.
func NewClient(conn Conn, events EventPublisher, cfg *Config, logger *zap.Logger) *Client {
	addr := conn.RemoteAddr().String()
	id := uuid.NewString()
	return &Client{
		conn:           conn,
		events:         events,
		addr:           addr,
		id:             id,
		readBufferSize: cfg.ReadBufferSize,
		log: logger.With(
			zap.String("component", "client"),
			zap.String("addr", addr),
			zap.String("connId", id),
		),
	}
}

// Addr returns the remote address identifying this client.
func (c *Client) Addr() string {
	return c.addr
}

// ID returns the worker's connection id, stamped on every event it publishes.
func (c *Client) ID() string {
	return c.id
}

// Run performs the name handshake, registers the client and relays inbound
// text until the peer closes the connection. It returns nil after a clean
// disconnect. If the handshake fails no event is published at all.
func (c *Client) Run(ctx context.Context) error {
	// Reads block without a deadline; closing the connection is the only way
	// to release them when the process shuts down.
	stop := context.AfterFunc(ctx, c.closeConnection)
	defer stop()

	name, err := c.handshake()
	if err != nil {
		c.log.Warn("Handshake failed", zap.Error(err))
		c.closeConnection()
		return err
	}

	if err := c.events.Submit(ctx, Connected{Addr: c.addr, ConnID: c.id, Name: name, Output: c.conn}); err != nil {
		c.closeConnection()
		return err
	}

	return c.readLoop(ctx)
}

// handshake writes the prompt and takes the first read as the display name.
func (c *Client) handshake() (string, error) {
	if _, err := c.conn.Write([]byte(namePrompt)); err != nil {
		return "", &HandshakeError{Addr: c.addr, Step: "prompt", Err: err}
	}

	buf := make([]byte, c.readBufferSize)
	n, err := c.conn.Read(buf)
	if n == 0 {
		if err == nil {
			err = errors.New("connection closed before a name was sent")
		}
		return "", &HandshakeError{Addr: c.addr, Step: "name", Err: err}
	}

	return parseName(buf[:n]), nil
}

func (c *Client) readLoop(ctx context.Context) error {
	buf := make([]byte, c.readBufferSize)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			content := decodeLossy(buf[:n])
			if perr := c.events.Submit(ctx, TextReceived{Addr: c.addr, ConnID: c.id, Content: content}); perr != nil {
				c.closeConnection()
				return perr
			}
		}

		if n == 0 && err == nil {
			return c.disconnect(ctx)
		}

		if err == nil {
			continue
		}

		if isConnectionGone(err) {
			c.log.Debug("Client connection closed", zap.Error(err))
			return c.disconnect(ctx)
		}

		c.log.Warn("Read error", zap.Error(err))
	}
}

// disconnect publishes the single Disconnected event for this client. The hub
// closes the connection when it applies the event.
func (c *Client) disconnect(ctx context.Context) error {
	if err := c.events.Submit(ctx, Disconnected{Addr: c.addr, ConnID: c.id}); err != nil {
		c.closeConnection()
		return err
	}
	return nil
}

func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isConnectionGone(err) {
		c.log.Warn("Error closing connection", zap.Error(err))
	}
}
