package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Tyrowin/relaychat/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to a YAML configuration file")
	flag.Parse()

	envErr := godotenv.Load()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := server.NewLogger(cfg.LogLevel, cfg.Development)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if envErr != nil {
		logger.Debug("No .env file loaded", zap.Error(envErr))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := server.NewHub(cfg, logger)
	tcp := server.NewServer(cfg, hub, logger)

	ln, err := tcp.Listen()
	if err != nil {
		logger.Fatal("Failed to bind", zap.Error(err))
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := tcp.Serve(ctx, ln); err != nil {
			logger.Error("TCP server stopped", zap.Error(err))
		}
	}()

	var httpServer *http.Server
	if cfg.HTTPAddress != "" {
		httpServer = server.CreateServer(cfg.HTTPAddress, server.SetupRoutes(ctx, hub, cfg, logger))
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("HTTP server listening", zap.String("address", cfg.HTTPAddress))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Fatal("HTTP server failed", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	logger.Info("Shutting down")

	if httpServer != nil {
		_ = server.ShutdownServer(httpServer, shutdownTimeout, logger)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		tcp.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Shutdown completed")
	case <-time.After(shutdownTimeout):
		logger.Warn("Shutdown timeout reached, some connections may still be open")
	}
}

func loadConfig(path string) (*server.Config, error) {
	if path == "" {
		return server.NewConfigFromEnv(), nil
	}

	cfg, err := server.LoadConfigFile(path)
	if err != nil {
		return nil, err
	}
	server.ApplyEnv(cfg)
	return cfg, nil
}
