package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/orrn/pagespool/internal/webhook"
	"github.com/rs/zerolog"
)

type WebhookHandler struct {
	sender *webhook.WebhookSender
	log    zerolog.Logger
}

type WebhookResponse struct {
	Name      string   `json:"name"`
	URL       string   `json:"url"`
	Events    []string `json:"events"`
	HasSecret bool     `json:"has_secret"`
}

type TestWebhookResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// NewWebhookHandler accepts a nil sender when no targets are configured.
func NewWebhookHandler(sender *webhook.WebhookSender, log zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{sender: sender, log: log}
}

func (h *WebhookHandler) ListWebhooks(c *gin.Context) {
	resp := []WebhookResponse{}
	if h.sender != nil {
		for _, t := range h.sender.Targets() {
			events := t.Events
			if len(events) == 0 {
				events = []string{"*"}
			}
			resp = append(resp, WebhookResponse{
				Name:      t.Name,
				URL:       t.URL,
				Events:    events,
				HasSecret: t.Secret != "",
			})
		}
	}
	c.JSON(http.StatusOK, gin.H{"webhooks": resp})
}

func (h *WebhookHandler) TestWebhook(c *gin.Context) {
	name := c.Param("name")
	if h.sender == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not-found", Message: "no webhook targets configured"})
		return
	}

	err := h.sender.SendTest(c.Request.Context(), name)
	switch {
	case errors.Is(err, webhook.ErrUnknownTarget):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not-found", Message: err.Error()})
	case err != nil:
		h.log.Warn().Err(err).Str("target", name).Msg("webhook test failed")
		c.JSON(http.StatusOK, TestWebhookResponse{Success: false, Message: err.Error()})
	default:
		c.JSON(http.StatusOK, TestWebhookResponse{Success: true, Message: "test delivery accepted"})
	}
}
