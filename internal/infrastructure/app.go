package infrastructure

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

// Server is a long-running component started and stopped by App.
type Server interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type App struct {
	servers []Server
	logger  *slog.Logger
}

func NewApp(servers []Server, logger *slog.Logger) *App {
	return &App{servers: servers, logger: logger}
}

// Run starts every server and blocks until ctx is cancelled or one of them
// fails, then stops them all.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, srv := range a.servers {
		g.Go(func() error {
			return srv.Start(gctx)
		})
	}

	<-gctx.Done()
	a.logger.Info("shutting down servers")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	for _, srv := range a.servers {
		if err := srv.Stop(stopCtx); err != nil {
			errs = append(errs, err)
		}
	}

	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
