// Package api assembles the HTTP surface of the print service.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/orrn/pagespool/internal/api/handlers"
	"github.com/orrn/pagespool/internal/api/middleware"
	"github.com/orrn/pagespool/internal/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Deps collects the handlers served by NewRouter. Archives, Webhooks and
// Settings are optional.
type Deps struct {
	Jobs     *handlers.JobHandler
	Printers *handlers.PrinterHandler
	Health   *handlers.HealthHandler
	Archives *handlers.ArchiveHandler
	Webhooks *handlers.WebhookHandler
	Settings *handlers.SettingsHandler
	Auth     *middleware.AuthMiddleware
	Log      zerolog.Logger
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.Logger(d.Log))

	r.GET("/health", d.Health.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.POST("/auth/login", d.Auth.LoginHandler)
	api.POST("/auth/logout", d.Auth.LogoutHandler)

	protected := api.Group("")
	protected.Use(d.Auth.RequireAuth())

	protected.POST("/jobs", d.Jobs.CreateJob)
	protected.GET("/jobs", d.Jobs.ListJobs)
	protected.GET("/jobs/:correlation_id", d.Jobs.GetJob)
	protected.DELETE("/spool/:device/:job_id", d.Jobs.CancelSpoolJob)

	protected.GET("/printers", d.Printers.ListPrinters)
	protected.GET("/printers/:name", d.Printers.GetPrinter)
	protected.PUT("/printers/:name/online", d.Printers.SetDeviceState)

	if d.Archives != nil {
		protected.GET("/archives", d.Archives.ListArchives)
		protected.POST("/archives/run", d.Archives.TriggerArchive)
		protected.GET("/archives/jobs/:correlation_id", d.Archives.FindArchivedJob)
		protected.GET("/archives/files/:filename", d.Archives.GetArchiveInfo)
		protected.DELETE("/archives/files/:filename", d.Archives.DeleteArchive)
	}
	if d.Webhooks != nil {
		protected.GET("/webhooks", d.Webhooks.ListWebhooks)
		protected.POST("/webhooks/:name/test", d.Webhooks.TestWebhook)
	}
	if d.Settings != nil {
		protected.GET("/settings", d.Settings.GetSettings)
	}

	return r
}

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

func NewServer(cfg config.ServerConfig, handler http.Handler, log zerolog.Logger) *Server {
	return &Server{
		http: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		log: log,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.http.Addr).Msg("http server listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return <-errCh
}
