// Package server accepts TCP connections and starts one worker per client.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

const maxAcceptDelay = time.Second

// Server is the TCP front end of the relay.
type Server struct {
	cfg    *Config
	events EventPublisher
	base   *zap.Logger
	log    *zap.Logger
	wg     sync.WaitGroup
}

// NewServer creates a Server whose workers publish to events.
func NewServer(cfg *Config, events EventPublisher, logger *zap.Logger) *Server {
	return &Server{
		cfg:    cfg,
		events: events,
		base:   logger,
		log:    logger.With(zap.String("component", "listener")),
	}
}

// Listen binds the configured address.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", s.cfg.Address, err)
	}
	s.log.Info("Listening", zap.String("address", ln.Addr().String()))
	return ln, nil
}

// Serve accepts connections on ln until ctx is cancelled or ln is closed.
// Accept errors are logged and retried with a growing delay.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}

			if delay == 0 {
				delay = 5 * time.Millisecond
			} else {
				delay = min(delay*2, maxAcceptDelay)
			}
			s.log.Warn("Accept error", zap.Error(err), zap.Duration("retryIn", delay))

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		delay = 0

		s.wg.Add(1)
		go s.handle(ctx, conn)
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()

	client := NewClient(conn, s.events, s.cfg, s.base)
	if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Debug("Client worker ended", zap.String("addr", client.Addr()), zap.Error(err))
	}
}

// Wait blocks until every worker started by Serve has returned.
func (s *Server) Wait() {
	s.wg.Wait()
}
