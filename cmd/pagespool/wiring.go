package main

import (
	"context"
	"fmt"

	"github.com/orrn/pagespool/internal/archive"
	"github.com/orrn/pagespool/internal/config"
	"github.com/orrn/pagespool/internal/core"
	"github.com/orrn/pagespool/internal/db"
	"github.com/orrn/pagespool/internal/document"
	"github.com/orrn/pagespool/internal/logger"
	"github.com/orrn/pagespool/internal/spooler"
	"github.com/orrn/pagespool/internal/webhook"
)

// pipeline holds every long-lived component of the print path.
type pipeline struct {
	cfg        *config.Config
	spooler    *spooler.Spooler
	store      *db.Store
	dispatcher *core.Dispatcher
	jobs       *core.JobMonitor
	printers   *core.PrinterMonitor
	submitter  *core.Submitter
	webhooks   *webhook.WebhookSender
	archiver   *archive.Archiver
}

func buildPipeline(cfg *config.Config) (*pipeline, error) {
	// A cancelled job must outlive two monitor polls to be seen as deleted.
	sp, err := spooler.New(cfg.Devices, logger.WithComponent("spooler"),
		spooler.WithDeletedRetention(2*cfg.Printing.PollInterval))
	if err != nil {
		return nil, fmt.Errorf("failed to create spooler: %w", err)
	}

	store, err := db.Open(db.Config{Path: cfg.Database.Path})
	if err != nil {
		return nil, err
	}

	dispatcher := core.NewDispatcher(cfg.Printing.EventBuffer, logger.WithComponent("dispatcher"))
	dispatcher.Register(db.NewRecorder(store, logger.WithComponent("recorder")))

	archiver, err := archive.NewArchiver(store, archive.ArchiveConfig{
		ArchivePath: cfg.Archive.Path,
		ArchiveDays: cfg.Archive.Days,
		Interval:    cfg.Archive.Interval,
	}, logger.WithComponent("archiver"))
	if err != nil {
		store.Close()
		return nil, err
	}

	p := &pipeline{
		cfg:        cfg,
		spooler:    sp,
		store:      store,
		dispatcher: dispatcher,
		archiver:   archiver,
	}

	if len(cfg.Webhooks.Targets) > 0 {
		p.webhooks = webhook.NewWebhookSender(cfg.Webhooks.Targets, webhook.WebhookConfig{
			RetryCount:  cfg.Webhooks.MaxRetries,
			Timeout:     cfg.Webhooks.Timeout,
			WorkerCount: cfg.Webhooks.WorkerCount,
			QueueSize:   cfg.Webhooks.QueueSize,
		}, logger.WithComponent("webhook"))
		dispatcher.Register(p.webhooks)
	}

	p.jobs = core.NewJobMonitor(sp, dispatcher, core.MonitorConfig{
		InitialDelay: cfg.Printing.InitialDelay,
		PollInterval: cfg.Printing.PollInterval,
		MaxPolls:     cfg.Printing.MaxPolls,
	}, logger.WithComponent("job-monitor"))
	p.printers = core.NewPrinterMonitor(sp, dispatcher, logger.WithComponent("printer-monitor"))

	detector := core.NewMarginDetector(cfg.Printing.DetectScale, uint8(cfg.Printing.WhiteTolerance))
	p.submitter = core.NewSubmitter(
		sp,
		document.NewDefaultSource(cfg.Printing.ImageDPI, logger.WithComponent("document")),
		core.NewConfigurator(logger.WithComponent("configurator")),
		core.NewRenderer(detector, logger.WithComponent("renderer")),
		p.jobs,
		logger.WithComponent("submitter"),
	)
	return p, nil
}

// start launches the background workers. The dispatcher runs until ctx is
// done.
func (p *pipeline) start(ctx context.Context) {
	p.spooler.Start(0)
	if p.webhooks != nil {
		p.webhooks.Start()
	}
	go p.dispatcher.Run(ctx)
	p.printers.WatchAll()
}

// shutdown stops producers first so the dispatcher can drain what they
// already emitted.
func (p *pipeline) shutdown() {
	p.archiver.Stop()
	p.printers.Stop()
	p.spooler.Stop()
	p.dispatcher.Close()
	<-p.dispatcher.Done()
	if p.webhooks != nil {
		p.webhooks.Stop()
	}
	if err := p.store.Close(); err != nil {
		log := logger.WithComponent("pipeline")
		log.Warn().Err(err).Msg("failed to close database")
	}
}
