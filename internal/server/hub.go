// Package server coordinates client registration, message broadcast, and
// connection cleanup for the relay via the Hub type.
package server

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const (
	welcomeLine  = "Welcome to the chat!\n"
	suppressLine = "\n"
)

// ErrHubStopped is returned to callers that try to reach a Hub whose Run loop has returned.
var ErrHubStopped = errors.New("hub stopped")

// Hub is the registry of connected clients. A single goroutine running Run
// owns the client map and applies events one at a time in arrival order, so
// the map needs no locking and a broadcast never interleaves with a
// membership change.
type Hub struct {
	clients      map[string]*ClientHandle
	events       chan Event
	writeTimeout time.Duration
	log          *zap.Logger
	done         chan struct{}
}

// NewHub creates a Hub with an event queue sized from cfg.
func NewHub(cfg *Config, logger *zap.Logger) *Hub {
	return &Hub{
		clients:      make(map[string]*ClientHandle),
		events:       make(chan Event, cfg.EventQueueSize),
		writeTimeout: cfg.WriteTimeout,
		log:          logger.With(zap.String("component", "hub")),
		done:         make(chan struct{}),
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Submit enqueues ev. It blocks while the queue is full and gives up when ctx
// is done or the hub has stopped.
func (h *Hub) Submit(ctx context.Context, ev Event) error {
	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}

	select {
	case h.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrHubStopped
	}
}

// Count returns the number of registered clients. The question travels
// through the event queue like any other event, so the answer reflects every
// event enqueued before it.
func (h *Hub) Count(ctx context.Context) (int, error) {
	reply := make(chan int, 1)
	if err := h.Submit(ctx, statsRequest{reply: reply}); err != nil {
		return 0, err
	}

	select {
	case n := <-reply:
		return n, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-h.done:
		return 0, ErrHubStopped
	}
}

// Run processes events until ctx is cancelled, then closes every remaining
// client connection. It must be called exactly once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	h.log.Info("Hub started")
	for {
		select {
		case <-ctx.Done():
			h.shutdownClients()
			return
		case ev := <-h.events:
			h.dispatch(ev)
		}
	}
}

func (h *Hub) dispatch(ev Event) {
	err := h.apply(ev)
	if err == nil {
		return
	}

	var dup *DuplicateClientError
	var unknown *UnknownClientError
	switch {
	case errors.As(err, &dup):
		h.log.Warn("Rejected duplicate registration", zap.String("addr", dup.Addr))
	case errors.As(err, &unknown):
		h.log.Debug("Ignored event for unregistered client", zap.String("addr", unknown.Addr))
	default:
		h.log.Error("Failed to apply event", zap.Error(err))
	}
}

// apply performs the state transition for a single event.
func (h *Hub) apply(ev Event) error {
	switch e := ev.(type) {
	case Connected:
		return h.handleConnected(e)
	case Disconnected:
		return h.handleDisconnected(e)
	case TextReceived:
		return h.handleText(e)
	case statsRequest:
		e.reply <- len(h.clients)
		return nil
	case nil:
		return errors.New("nil event")
	default:
		return errors.New("unsupported event type")
	}
}

func (h *Hub) handleConnected(e Connected) error {
	if _, exists := h.clients[e.Addr]; exists {
		h.closeOutput(e.Addr, e.Output)
		return &DuplicateClientError{Addr: e.Addr}
	}

	client := &ClientHandle{Addr: e.Addr, ConnID: e.ConnID, Name: e.Name, Output: e.Output}
	h.clients[e.Addr] = client
	h.log.Info("Client connected",
		zap.String("addr", client.Addr),
		zap.String("name", client.Name),
		zap.Int("clients", len(h.clients)))

	if err := h.write(client, []byte(welcomeLine)); err != nil {
		h.log.Warn("Failed to send welcome", zap.String("addr", client.Addr), zap.Error(err))
	}
	return nil
}

func (h *Hub) handleDisconnected(e Disconnected) error {
	client, ok := h.clients[e.Addr]
	if !ok || client.ConnID != e.ConnID {
		return &UnknownClientError{Addr: e.Addr}
	}

	delete(h.clients, e.Addr)
	h.closeOutput(client.Addr, client.Output)
	h.log.Info("Client disconnected",
		zap.String("addr", client.Addr),
		zap.String("name", client.Name),
		zap.Int("clients", len(h.clients)))
	return nil
}

func (h *Hub) handleText(e TextReceived) error {
	sender, ok := h.clients[e.Addr]
	if !ok || sender.ConnID != e.ConnID {
		return &UnknownClientError{Addr: e.Addr}
	}

	if e.Content == suppressLine {
		h.log.Debug("Suppressed empty line", zap.String("addr", e.Addr))
		return nil
	}

	payload := []byte(sender.Name + ": " + e.Content)
	h.broadcast(sender, payload)
	return nil
}

// broadcast writes payload to every client except sender. A failed write is
// logged and skipped; the client stays registered until it disconnects.
func (h *Hub) broadcast(sender *ClientHandle, payload []byte) {
	delivered := 0
	for addr, client := range h.clients {
		if addr == sender.Addr {
			continue
		}
		if err := h.write(client, payload); err != nil {
			h.log.Warn("Failed to deliver message",
				zap.String("from", sender.Addr),
				zap.String("to", addr),
				zap.Error(err))
			continue
		}
		delivered++
	}

	h.log.Debug("Broadcast message",
		zap.String("from", sender.Addr),
		zap.Int("delivered", delivered),
		zap.Int("bytes", len(payload)))
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

func (h *Hub) write(client *ClientHandle, payload []byte) error {
	if client.Output == nil {
		return errors.New("client has no output")
	}

	if h.writeTimeout > 0 {
		if d, ok := client.Output.(writeDeadliner); ok {
			if err := d.SetWriteDeadline(time.Now().Add(h.writeTimeout)); err != nil {
				return err
			}
		}
	}

	_, err := client.Output.Write(payload)
	return err
}

func (h *Hub) closeOutput(addr string, output interface{ Close() error }) {
	if output == nil {
		return
	}
	if err := output.Close(); err != nil && !isConnectionGone(err) {
		h.log.Warn("Error closing client connection", zap.String("addr", addr), zap.Error(err))
	}
}

// shutdownClients closes all remaining client connections and empties the registry.
func (h *Hub) shutdownClients() {
	h.log.Info("Shutting down all client connections", zap.Int("clients", len(h.clients)))

	for addr, client := range h.clients {
		h.closeOutput(addr, client.Output)
		delete(h.clients, addr)
	}
}
