package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/pinstripe-labs/carart/engine/catalog"
	"github.com/pinstripe-labs/carart/engine/generate"
	"github.com/pinstripe-labs/carart/engine/mirror"
	"github.com/pinstripe-labs/carart/engine/session"
	"github.com/pinstripe-labs/carart/engine/studio"
	"github.com/pinstripe-labs/carart/pkg/config"
	"github.com/pinstripe-labs/carart/pkg/genai"
	"github.com/pinstripe-labs/carart/pkg/localstore"
	"github.com/pinstripe-labs/carart/pkg/logging"
	"github.com/pinstripe-labs/carart/pkg/metrics"
	"github.com/pinstripe-labs/carart/pkg/mid"
	"github.com/pinstripe-labs/carart/pkg/resilience"
)

const (
	// modelRate caps calls to the model API across all users.
	modelRate      = 2.0
	modelBurst     = 4
	hydrateTimeout = 5 * time.Second
	drainTimeout   = 2 * time.Minute
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the studio HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			if err := serve(cmd.Context(), cfg, logger); err != nil {
				logger.Error("server exited with error", "err", err)
				return err
			}
			return nil
		},
	}
}

func setup() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if err := catalog.ValidatePriorities(); err != nil {
		return fmt.Errorf("style priorities: %w", err)
	}
	reg := metrics.New()

	// --- Local session store ---
	kv, err := localstore.OpenSQLite(ctx, cfg.SQLitePath, cfg.LocalQuotaBytes)
	if err != nil {
		return err
	}
	defer kv.Close()

	// --- Remote mirror ---
	backend, closeBackend, err := openMirror(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	var (
		queue    session.Mirror
		hydrator session.Hydrator
	)
	if backend != nil {
		hydrator = mirror.Hydrator{Backend: backend, Timeout: hydrateTimeout}
	}
	switch {
	case cfg.NATSURL != "":
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("carart-serve"))
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Drain()
		queue = mirror.NewNATSQueue(nc, logger, reg)
		if backend != nil {
			if _, err := mirror.StartConsumer(mirror.ConsumerDeps{Sub: nc, Pub: nc, Backend: backend, Logger: logger, Metrics: reg}); err != nil {
				return err
			}
		}
	case backend != nil:
		lq := mirror.NewLocalQueue(backend, mirror.LocalQueueOptions{Logger: logger, Metrics: reg})
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := lq.Close(closeCtx); err != nil {
				logger.Warn("mirror queue not drained", "error", err)
			}
		}()
		queue = lq
	}
	tracker := session.NewTracker(session.NewStore(kv, queue, logger, reg), hydrator)

	// --- Model API ---
	breakerOpts := resilience.DefaultBreakerOpts
	breakerOpts.OnStateChange = func(from, to resilience.State) {
		logger.Warn("model breaker state changed", "from", from.String(), "to", to.String())
	}
	client, err := genai.New(genai.Config{
		APIKey:      cfg.OpenAIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		VisionModel: cfg.VisionModel,
		ImageModel:  cfg.ImageModel,
		Breaker:     resilience.NewBreaker(breakerOpts),
		Limiter:     resilience.NewLimiter(resilience.LimiterOpts{Rate: modelRate, Burst: modelBurst}),
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	models := studio.NewModels(client, client, logger)
	orch := generate.New(models, generate.Options{
		Concurrency: cfg.Concurrency,
		Stagger:     cfg.Stagger,
		Logger:      logger,
		Metrics:     reg,
	})
	svc := studio.New(tracker, models, orch, models, studio.Options{
		InitialBatch: cfg.InitialBatch,
		MoreBatch:    cfg.MoreBatch,
		Logger:       logger,
	})

	// --- HTTP server ---
	perUser := resilience.NewKeyedLimiter(resilience.LimiterOpts{
		Rate:  cfg.RateLimitPerMinute / 60,
		Burst: cfg.RateLimitBurst,
	}, 0)
	mux := http.NewServeMux()
	svc.Routes(mux, mid.RateLimit(perUser))
	mux.Handle("GET /metrics", reg.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Identity(),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("carart"),
	)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "addr", cfg.Addr, "mirror", cfg.MirrorBackend, "nats", cfg.NATSURL != "")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return err
	}

	// Running batches still write their results into the session.
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), drainTimeout)
	defer cancelDrain()
	if err := svc.Wait(drainCtx); err != nil {
		logger.Warn("generation batches still running at exit", "error", err)
	}
	return nil
}
