package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"pixelbot/internal/channel"
	"pixelbot/internal/config"
	"pixelbot/internal/domain"
	"pixelbot/internal/media"
	"pixelbot/internal/metrics"
	"pixelbot/internal/pipeline"
	"pixelbot/internal/provider"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server and image janitor",
		Long:  "Serves the Twilio webhook, hosts generated images and evicts them after the retention window. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger = newLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := media.NewFileStore(media.FileStoreConfig{Dir: cfg.Images.Dir, Logger: logger})
	if err != nil {
		return fmt.Errorf("image store: %w", err)
	}

	registry, err := openRegistry(cfg.Images)
	if err != nil {
		return fmt.Errorf("image registry: %w", err)
	}
	defer registry.Close()

	janitor := media.NewJanitor(media.JanitorConfig{
		Store:     store,
		Registry:  registry,
		Retention: cfg.Images.Retention,
		MaxFiles:  cfg.Images.MaxFiles,
		Interval:  cfg.Images.SweepInterval,
		Logger:    logger,
	})

	gemini, err := provider.NewGemini(ctx, provider.GeminiConfig{
		APIKey:  cfg.Gemini.APIKey,
		Model:   cfg.Gemini.Model,
		Timeout: cfg.Gemini.Timeout,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	sender, err := channel.NewTwilioSender(channel.TwilioSenderConfig{
		AccountSID: cfg.Twilio.AccountSID,
		AuthToken:  cfg.Twilio.AuthToken,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	pipe := pipeline.New(pipeline.Config{
		Generator:     gemini,
		Store:         store,
		Tracker:       janitor,
		Sender:        sender,
		PublicBaseURL: cfg.Server.PublicBaseURL,
		From:          cfg.Twilio.From,
		Logger:        logger,
	})

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	gateway := channel.NewGateway(channel.GatewayConfig{
		Addr:        cfg.Server.Addr(),
		WebhookPath: cfg.Server.WebhookPath,
		MetricsPath: metricsPath,
		Handler:     pipe,
		Store:       store,
		Logger:      logger,
	})

	logger.Info("pixelbot starting",
		"version", version,
		"addr", cfg.Server.Addr(),
		"public_url", cfg.Server.PublicBaseURL,
		"model", gemini.Model(),
		"image_dir", store.Dir(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return gateway.Start(gctx) })
	g.Go(func() error { return janitor.Run(gctx) })
	err = g.Wait()

	if cfg.Images.CleanupOnExit {
		if _, perr := janitor.Purge(context.Background()); perr != nil {
			logger.Warn("registry purge failed", "err", perr)
		}
		sweep(store)
	}
	if err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// openRegistry picks the SQLite registry when a database path is configured
// and the in-memory one otherwise.
func openRegistry(cfg config.ImagesConfig) (domain.ImageRegistry, error) {
	if cfg.RegistryDBPath == "" {
		return media.NewMemoryRegistry(), nil
	}
	return media.NewSQLiteRegistry(cfg.RegistryDBPath, logger)
}

func sweep(store domain.ImageStore) int {
	n, err := store.Sweep()
	if err != nil {
		logger.Warn("image sweep incomplete", "removed", n, "err", err)
	}
	metrics.ImagesSwept.Add(int64(n))
	logger.Info("generated images removed", "count", n)
	return n
}

func cleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete every generated image in the image directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadUnvalidated(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger = newLogger(cfg.Log)

			store, err := media.NewFileStore(media.FileStoreConfig{Dir: cfg.Images.Dir, Logger: logger})
			if err != nil {
				return err
			}
			sweep(store)

			// A persistent registry would otherwise point at files that are gone.
			if cfg.Images.RegistryDBPath != "" {
				reg, err := media.NewSQLiteRegistry(cfg.Images.RegistryDBPath, logger)
				if err != nil {
					return fmt.Errorf("image registry: %w", err)
				}
				defer reg.Close()
				janitor := media.NewJanitor(media.JanitorConfig{Store: store, Registry: reg, Logger: logger})
				if _, err := janitor.Purge(cmd.Context()); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
