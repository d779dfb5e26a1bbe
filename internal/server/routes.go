// Package server wires HTTP handlers into a ServeMux via routing helpers.
package server

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

// SetupRoutes configures and returns an HTTP ServeMux with the health check,
// stats, and WebSocket endpoints. Workers started from /ws stop with ctx.
func SetupRoutes(ctx context.Context, hub *Hub, cfg *Config, logger *zap.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/stats", StatsHandler(hub))
	mux.HandleFunc("/ws", WebSocketHandler(ctx, hub, cfg, logger))
	return mux
}
