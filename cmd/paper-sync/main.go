package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/alexjbarnes/paper-sync/internal/blob"
	"github.com/alexjbarnes/paper-sync/internal/config"
	"github.com/alexjbarnes/paper-sync/internal/logging"
	"github.com/alexjbarnes/paper-sync/internal/state"
	"github.com/alexjbarnes/paper-sync/internal/syncer"
	"github.com/alexjbarnes/paper-sync/internal/transport"
)

var Version = "dev"

func main() {
	if err := run(); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment)
	logger.Info("paper-sync starting",
		slog.String("version", Version),
		slog.String("host", cfg.Host),
		slog.Int("port", cfg.Port),
		slog.Duration("interval", cfg.SyncInterval),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := state.Open(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("opening library store: %w", err)
	}
	defer store.Close()

	blobs, err := blob.NewStore(cfg.BlobDir())
	if err != nil {
		return fmt.Errorf("opening blob store: %w", err)
	}

	client := transport.New(transport.Config{
		Host:      cfg.Host,
		Port:      cfg.Port,
		AuthToken: cfg.AuthToken,
		UseTLS:    cfg.UseTLS,
		Device:    cfg.DeviceName,
	}, logging.Component(logger, "transport"))

	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to sync server: %w", err)
	}
	defer client.Close()

	engine := syncer.NewEngine(store, blobs, client, logging.Component(logger, "syncer"))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return client.Run(gctx)
	})

	g.Go(func() error {
		return superviseSync(gctx, cfg, engine, logger)
	})

	err = g.Wait()
	if err == context.Canceled {
		logger.Info("paper-sync stopped")
		return nil
	}
	return err
}

// superviseSync runs the first sync cycle, backfills missing PDF
// payloads, then hands off to the periodic loop and logs status
// transitions until shutdown.
func superviseSync(ctx context.Context, cfg *config.Config, engine *syncer.Engine, logger *slog.Logger) error {
	statusCh := engine.Subscribe()
	defer engine.Unsubscribe(statusCh)

	if err := engine.Sync(ctx); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	} else if err := engine.DownloadMissingPDFs(ctx); err != nil {
		logger.Warn("pdf backfill incomplete", slog.String("error", err.Error()))
	}

	if cfg.SyncInterval > 0 {
		engine.StartAutoSync(cfg.SyncInterval)
		defer engine.StopAutoSync()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case st := <-statusCh:
			logger.Debug("sync status",
				slog.Bool("syncing", st.Syncing),
				slog.String("progress", st.Progress),
				slog.String("last_error", st.LastError),
			)
		}
	}
}
