package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"lawdesk/internal/app"
	"lawdesk/internal/pkg/logger"
	"lawdesk/internal/platform/config"
	"lawdesk/internal/workers"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logger.Init(cfg.Logging, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start services")
	}
	defer a.Close()

	log.Info().Msg("starting background workers")

	trials := &workers.TrialExpiry{Registry: a.Registry, Orgs: a.Orgs, Users: a.Users, Mail: a.Mail}
	reconciler := &workers.Reconciler{Users: a.Users, Docs: a.Documents, Remove: cfg.Workers.ReconcileDelete}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return workers.Every(ctx, "trial_expiry", cfg.Workers.TrialExpiryInterval, func(ctx context.Context) error {
			_, err := trials.Run(ctx)
			return err
		})
	})
	g.Go(func() error {
		return workers.Every(ctx, "document_reconcile", cfg.Workers.ReconcileInterval, func(ctx context.Context) error {
			sum, err := reconciler.Run(ctx)
			if err == nil {
				log.Info().
					Int("users", sum.Users).
					Int("failed", sum.Failed).
					Int("orphan_blobs", sum.OrphanBlobs).
					Int("dangling_metadata", sum.DanglingMetadata).
					Msg("reconciliation sweep done")
			}
			return err
		})
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("worker stopped")
	}
	log.Info().Msg("workers stopped")
}
