package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"drealestate/internal/app"
)

func main() {
	verify := flag.Bool("verify", false, "replay the WAL from genesis and from the latest snapshot, compare, then exit")
	flag.Parse()

	bootstrap := app.NewBootstrap(app.RoleDevChain)
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *verify {
		report, err := app.VerifyDevChain(ctx, bootstrap.Config, bootstrap.DataDir)
		if err != nil {
			slog.Error("❌ Verification failed", slog.Any("error", err))
			bootstrap.Close()
			os.Exit(1)
		}
		slog.Info("✅ WAL verified", slog.Uint64("blocks", report.Blocks), slog.String("digest", report.FromGenesis.Hex()))
		return
	}

	if err := app.RunDevChain(ctx, bootstrap.Config, bootstrap.DataDir); err != nil {
		slog.Error("❌ Dev chain stopped", slog.Any("error", err))
		bootstrap.Close()
		os.Exit(1)
	}

	slog.Info("👋 Shutting down gracefully...")
}
