package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/orrn/pagespool/internal/api/handlers"
	"github.com/orrn/pagespool/internal/api/middleware"
	"github.com/orrn/pagespool/internal/config"
	"github.com/orrn/pagespool/internal/spooler"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, auth config.AuthConfig) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	sp, err := spooler.New([]config.DeviceConfig{{Name: "Office"}}, zerolog.Nop())
	require.NoError(t, err)

	return NewRouter(Deps{
		Jobs:     handlers.NewJobHandler(nil, sp, nil, zerolog.Nop()),
		Printers: handlers.NewPrinterHandler(sp, nil, zerolog.Nop()),
		Health:   handlers.NewHealthHandler(nil, sp.Devices),
		Auth:     middleware.NewAuthMiddleware(auth),
		Log:      zerolog.Nop(),
	})
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestRouterProtectsAPI(t *testing.T) {
	r := newTestRouter(t, config.AuthConfig{JWTSecret: "secret", AdminUser: "admin", AdminPassword: "x"})

	assert.Equal(t, http.StatusUnauthorized, get(r, "/api/printers").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/api/jobs").Code)
	assert.Equal(t, http.StatusOK, get(r, "/health").Code)
	assert.Equal(t, http.StatusOK, get(r, "/metrics").Code)
}

func TestRouterOpenWithoutSecret(t *testing.T) {
	r := newTestRouter(t, config.AuthConfig{})

	w := get(r, "/api/printers")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Office")
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestServerShutsDownOnCancel(t *testing.T) {
	srv := NewServer(config.ServerConfig{Port: 0}, http.NotFoundHandler(), zerolog.Nop())
	srv.http.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRouterMountsOptionalHandlers(t *testing.T) {
	r := newTestRouter(t, config.AuthConfig{})
	assert.Equal(t, http.StatusNotFound, get(r, "/api/settings").Code)

	gin.SetMode(gin.TestMode)
	sp, err := spooler.New([]config.DeviceConfig{{Name: "Office"}}, zerolog.Nop())
	require.NoError(t, err)
	r = NewRouter(Deps{
		Jobs:     handlers.NewJobHandler(nil, sp, nil, zerolog.Nop()),
		Printers: handlers.NewPrinterHandler(sp, nil, zerolog.Nop()),
		Health:   handlers.NewHealthHandler(nil, sp.Devices),
		Webhooks: handlers.NewWebhookHandler(nil, zerolog.Nop()),
		Settings: handlers.NewSettingsHandler(config.Default()),
		Auth:     middleware.NewAuthMiddleware(config.AuthConfig{}),
		Log:      zerolog.Nop(),
	})
	assert.Equal(t, http.StatusOK, get(r, "/api/settings").Code)
	assert.Equal(t, http.StatusOK, get(r, "/api/webhooks").Code)
}
