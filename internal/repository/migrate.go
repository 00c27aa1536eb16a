package repository

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const migrationTimeout = 60 * time.Second

//go:embed migrations/*.sql
var embedMigrations embed.FS

// RunMigrations applies one of up, down, reset or status to the balances
// schema using the embedded SQL files.
func RunMigrations(ctx context.Context, dsn, command string, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, migrationTimeout)
	defer cancel()

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("sql open: %w", err)
	}
	defer func() { _ = db.Close() }()

	migrations, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}

	var results []*goose.MigrationResult
	switch command {
	case "up":
		results, err = provider.Up(ctx)
	case "down":
		var res *goose.MigrationResult
		res, err = provider.Down(ctx)
		if res != nil {
			results = append(results, res)
		}
	case "reset":
		results, err = provider.DownTo(ctx, 0)
	case "status":
		return logStatus(ctx, provider, logger)
	default:
		return fmt.Errorf("unknown migration command %q, must be 'up', 'down', 'reset' or 'status'", command)
	}

	for _, res := range results {
		logger.Info("migration applied",
			"direction", res.Direction,
			"version", res.Source.Version,
			"path", res.Source.Path,
			"duration", res.Duration,
		)
	}
	if err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

func logStatus(ctx context.Context, provider *goose.Provider, logger *slog.Logger) error {
	statuses, err := provider.Status(ctx)
	if err != nil {
		return fmt.Errorf("goose status: %w", err)
	}
	for _, st := range statuses {
		logger.Info("migration status",
			"version", st.Source.Version,
			"path", st.Source.Path,
			"state", st.State,
			"applied_at", st.AppliedAt,
		)
	}
	return nil
}
