// Package server exposes HTTP handlers: the WebSocket transport, health
// check, and membership stats.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const statsTimeout = 2 * time.Second

// MemberCounter reports how many clients are registered. *Hub implements it.
type MemberCounter interface {
	Count(ctx context.Context) (int, error)
}

// WebSocketHandler upgrades requests and runs a connection worker on the
// resulting socket. The worker lives as long as ctx and the connection do.
func WebSocketHandler(ctx context.Context, events EventPublisher, cfg *Config, logger *zap.Logger) http.HandlerFunc {
	log := logger.With(zap.String("component", "websocket"))
	policy := newOriginPolicy(cfg.AllowedOrigins, log)
	upgrader := websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.ReadBufferSize,
		CheckOrigin:     policy.checkOrigin,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("WebSocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
			return
		}

		client := NewClient(newWSConn(conn), events, cfg, logger)
		if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Debug("WebSocket client ended", zap.String("addr", client.Addr()), zap.Error(err))
		}
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "relaychat server is running!")
}

// StatsHandler reports the number of registered clients as JSON.
func StatsHandler(counter MemberCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), statsTimeout)
		defer cancel()

		n, err := counter.Count(ctx)
		if err != nil {
			http.Error(w, "registry unavailable", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]int{"clients": n})
	}
}
