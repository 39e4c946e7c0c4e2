package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/orrn/pagespool/internal/config"
)

type SettingsHandler struct {
	config *config.Config
}

type ServerConfigResponse struct {
	Port         int    `json:"port"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	DatabasePath string `json:"database_path"`
	LogLevel     string `json:"log_level"`
	LogFormat    string `json:"log_format"`
}

type PrintingSettingsResponse struct {
	InitialDelay   string  `json:"initial_delay"`
	PollInterval   string  `json:"poll_interval"`
	MaxPolls       int     `json:"max_polls"`
	DetectScale    float64 `json:"detect_scale"`
	WhiteTolerance int     `json:"white_tolerance"`
	DefaultPaper   string  `json:"default_paper"`
	ImageDPI       float64 `json:"image_dpi"`
}

type ArchiveSettingsResponse struct {
	Path     string `json:"path"`
	Days     int    `json:"days"`
	Interval string `json:"interval"`
}

type SettingsResponse struct {
	Server      ServerConfigResponse     `json:"server"`
	Printing    PrintingSettingsResponse `json:"printing"`
	Archive     ArchiveSettingsResponse  `json:"archive"`
	Devices     int                      `json:"devices"`
	Webhooks    int                      `json:"webhooks"`
	AuthEnabled bool                     `json:"auth_enabled"`
}

func NewSettingsHandler(cfg *config.Config) *SettingsHandler {
	return &SettingsHandler{config: cfg}
}

// GetSettings reports the effective configuration. Secrets are never included.
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	cfg := h.config
	c.JSON(http.StatusOK, SettingsResponse{
		Server: ServerConfigResponse{
			Port:         cfg.Server.Port,
			ReadTimeout:  cfg.Server.ReadTimeout.String(),
			WriteTimeout: cfg.Server.WriteTimeout.String(),
			DatabasePath: cfg.Database.Path,
			LogLevel:     cfg.Logging.Level,
			LogFormat:    cfg.Logging.Format,
		},
		Printing: PrintingSettingsResponse{
			InitialDelay:   cfg.Printing.InitialDelay.String(),
			PollInterval:   cfg.Printing.PollInterval.String(),
			MaxPolls:       cfg.Printing.MaxPolls,
			DetectScale:    cfg.Printing.DetectScale,
			WhiteTolerance: cfg.Printing.WhiteTolerance,
			DefaultPaper:   cfg.Printing.DefaultPaper,
			ImageDPI:       cfg.Printing.ImageDPI,
		},
		Archive: ArchiveSettingsResponse{
			Path:     cfg.Archive.Path,
			Days:     cfg.Archive.Days,
			Interval: cfg.Archive.Interval.String(),
		},
		Devices:     len(cfg.Devices),
		Webhooks:    len(cfg.Webhooks.Targets),
		AuthEnabled: cfg.Auth.Enabled(),
	})
}
