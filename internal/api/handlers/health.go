package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	db      Pinger
	devices func() []string
	started time.Time
}

func NewHealthHandler(db Pinger, devices func() []string) *HealthHandler {
	return &HealthHandler{db: db, devices: devices, started: time.Now()}
}

func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	dbStatus := "ok"
	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
			dbStatus = err.Error()
		}
	}

	devices := 0
	if h.devices != nil {
		devices = len(h.devices())
	}

	c.JSON(code, gin.H{
		"status":   status,
		"database": dbStatus,
		"devices":  devices,
		"uptime":   time.Since(h.started).Round(time.Second).String(),
	})
}
