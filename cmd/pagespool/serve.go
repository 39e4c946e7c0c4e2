package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/orrn/pagespool/internal/api"
	"github.com/orrn/pagespool/internal/api/handlers"
	"github.com/orrn/pagespool/internal/api/middleware"
	"github.com/orrn/pagespool/internal/logger"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP print service",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := logger.WithComponent("serve")

		p, err := buildPipeline(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p.start(ctx)
		defer p.shutdown()
		p.archiver.Start()

		router := api.NewRouter(api.Deps{
			Jobs:     handlers.NewJobHandler(p.submitter, p.spooler, p.store, logger.WithComponent("jobs")),
			Printers: handlers.NewPrinterHandler(p.spooler, p.printers, logger.WithComponent("printers")),
			Health:   handlers.NewHealthHandler(p.store.DB(), p.spooler.Devices),
			Archives: handlers.NewArchiveHandler(p.archiver, logger.WithComponent("archive")),
			Webhooks: handlers.NewWebhookHandler(p.webhooks, logger.WithComponent("webhooks")),
			Settings: handlers.NewSettingsHandler(cfg),
			Auth:     middleware.NewAuthMiddleware(cfg.Auth),
			Log:      logger.WithComponent("http"),
		})
		server := api.NewServer(cfg.Server, router, logger.WithComponent("http"))

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return server.Run(gctx)
		})

		log.Info().
			Int("port", cfg.Server.Port).
			Strs("devices", p.spooler.Devices()).
			Bool("auth", cfg.Auth.Enabled()).
			Int("webhooks", len(cfg.Webhooks.Targets)).
			Int("archive_days", cfg.Archive.Days).
			Msg("pagespool started")

		err = g.Wait()
		if err != nil && err != context.Canceled {
			return err
		}
		log.Info().Msg("pagespool stopped")
		return nil
	},
}
