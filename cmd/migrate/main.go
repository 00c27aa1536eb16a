package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"chargeledger/internal/config"
	"chargeledger/internal/repository"
)

func main() {
	flag.Parse()
	args := flag.Args()

	if len(args) < 1 {
		fmt.Println("Error: migration command is required")
		fmt.Println("Usage: go run ./cmd/migrate [command] [args]")
		fmt.Println("Commands: up, down, reset, status")
		os.Exit(1)
	}

	cfg, err := config.New()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}
	if cfg.StoreProvider != config.StorePostgres {
		slog.Error("migrations only apply to the postgres store", "store", cfg.StoreProvider)
		os.Exit(1)
	}

	command := args[0]

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := repository.RunMigrations(ctx, cfg.DSN(), command, slog.Default()); err != nil {
		slog.Error("migration failed", "command", command, "error", err)
		os.Exit(1)
	}

	slog.Info("migration finished successfully", "command", command)
}
