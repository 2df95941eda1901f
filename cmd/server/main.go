package main

import (
	"context"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"secure-chat/internal/chat"
	"secure-chat/internal/config"
	"secure-chat/internal/logstore"
	"secure-chat/internal/server"
	"secure-chat/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize encrypted log store; a malformed key refuses startup
	store, err := logstore.New(cfg.Logs.Key, cfg.Logs.DataDir)
	if err != nil {
		logger.Fatal("Failed to initialize log store: %v", err)
	}

	// Initialize mTLS transport
	tlsCfg, err := server.NewTLSConfig(cfg.TLS)
	if err != nil {
		logger.Fatal("Failed to load TLS material: %v", err)
	}

	registry := chat.NewRegistry()
	srv := server.New(cfg.Server.Addr, tlsCfg, registry, store)

	// Serve until interrupt signal triggers graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(ctx)
	})

	logger.Info("🚀 Server started on %s (mTLS required)", cfg.Server.Addr)

	if err := g.Wait(); err != nil {
		logger.Fatal("Server error: %v", err)
	}
	logger.Info("Server shut down")
}
