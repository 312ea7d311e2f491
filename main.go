package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Akashbains10/pdf-assistant/internal/app"
	"github.com/Akashbains10/pdf-assistant/internal/config"
	"github.com/Akashbains10/pdf-assistant/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	l := logger.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(l)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, l); err != nil {
		slog.Error("application stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, l *slog.Logger) error {
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	a, err := app.New(cfg, deps.DB, deps.Index, deps.NSQProducer, l, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			l.Warn("failed to close app resources", "error", err)
		}
	}()

	if cfg.EnableWorker {
		consumer, err := app.StartConsumer(cfg, a.IngestConsumer, l)
		if err != nil {
			return err
		}
		defer func() {
			consumer.Stop()
			<-consumer.StopChan
			l.Info("ingestion consumer stopped")
		}()
	}

	if cfg.EnableAPI {
		return a.Run(ctx)
	}

	<-ctx.Done()
	if err := ctx.Err(); !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
