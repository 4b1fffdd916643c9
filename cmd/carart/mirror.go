package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/spf13/cobra"

	"github.com/pinstripe-labs/carart/engine/mirror"
	"github.com/pinstripe-labs/carart/pkg/config"
	"github.com/pinstripe-labs/carart/pkg/metrics"
)

// openMirror connects the configured mirror backend. A nil backend means
// mirroring is off.
func openMirror(ctx context.Context, cfg config.Config, logger *slog.Logger) (mirror.Backend, func(), error) {
	noop := func() {}
	switch cfg.MirrorBackend {
	case config.MirrorMemory:
		return mirror.NewMemory(), noop, nil

	case config.MirrorPostgres:
		pg, err := mirror.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, noop, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, noop, err
		}
		logger.Info("postgres mirror ready")
		return pg, func() { pg.Close() }, nil

	case config.MirrorNeo4j:
		driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
		if err != nil {
			return nil, noop, fmt.Errorf("neo4j driver: %w", err)
		}
		if err := driver.VerifyConnectivity(ctx); err != nil {
			driver.Close(ctx)
			return nil, noop, fmt.Errorf("neo4j connect: %w", err)
		}
		logger.Info("neo4j mirror ready", "url", cfg.Neo4jURL)
		return mirror.NewNeo4j(driver, ""), func() { driver.Close(context.Background()) }, nil
	}
	return nil, noop, nil
}

func mirrorWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mirror-worker",
		Short: "Consume mirror sync jobs from NATS and write them to the mirror backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			if cfg.NATSURL == "" {
				return fmt.Errorf("mirror-worker: nats_url is required")
			}
			ctx := cmd.Context()
			backend, closeBackend, err := openMirror(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeBackend()
			if backend == nil {
				return fmt.Errorf("mirror-worker: mirror_backend is %q", cfg.MirrorBackend)
			}

			nc, err := nats.Connect(cfg.NATSURL, nats.Name("carart-mirror-worker"))
			if err != nil {
				return fmt.Errorf("nats connect: %w", err)
			}
			defer nc.Drain()

			if _, err := mirror.StartConsumer(mirror.ConsumerDeps{
				Sub:     nc,
				Pub:     nc,
				Backend: backend,
				Logger:  logger,
				Metrics: metrics.New(),
			}); err != nil {
				return err
			}
			logger.Info("mirror worker listening", "subject", mirror.SyncSubject)
			<-ctx.Done()
			logger.Info("shutdown signal received")
			return nil
		},
	}
}
