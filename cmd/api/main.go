package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"chargeledger/internal/infrastructure"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := infrastructure.Bootstrap(ctx)
	if err != nil {
		slog.Error("failed to bootstrap ledger", "error", err)
		if cleanup != nil {
			cleanup()
		}
		os.Exit(1)
	}
	defer cleanup()

	if err := app.Run(ctx); err != nil {
		slog.Error("ledger stopped with error", "error", err)
		cleanup()
		os.Exit(1)
	}

	slog.Info("ledger stopped")
}
