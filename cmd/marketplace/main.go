package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"drealestate/internal/app"
)

func main() {
	// 1. System Bootstrapping
	bootstrap := app.NewBootstrap(app.RoleMarketplace)
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Close()

	// 2. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Provider, market sync, listener and HTTP gateway
	if err := app.RunMarketplace(ctx, bootstrap.Config); err != nil {
		slog.Error("❌ Marketplace stopped", slog.Any("error", err))
		bootstrap.Close()
		os.Exit(1)
	}

	slog.Info("👋 Shutting down gracefully...")
}
