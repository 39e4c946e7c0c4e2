package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/orrn/pagespool/internal/config"
	"github.com/orrn/pagespool/internal/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"))
}

type delivery struct {
	event     string
	signature string
	body      []byte
}

type hookServer struct {
	*httptest.Server
	mu         sync.Mutex
	deliveries []delivery
	hits       atomic.Int32
	status     func(hit int32) int
	got        chan struct{}
}

func newHookServer(t *testing.T, status func(hit int32) int) *hookServer {
	h := &hookServer{status: status, got: make(chan struct{}, 16)}
	h.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		n := h.hits.Add(1)
		code := http.StatusOK
		if h.status != nil {
			code = h.status(n)
		}
		if code < 400 {
			h.mu.Lock()
			h.deliveries = append(h.deliveries, delivery{
				event:     r.Header.Get(EventHeader),
				signature: r.Header.Get(SignatureHeader),
				body:      body,
			})
			h.mu.Unlock()
		}
		w.WriteHeader(code)
		h.got <- struct{}{}
	}))
	t.Cleanup(h.Close)
	return h
}

func (h *hookServer) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-h.got:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for webhook hit %d", i+1)
		}
	}
}

func newTestSender(targets []config.WebhookTarget) *WebhookSender {
	s := NewWebhookSender(targets, WebhookConfig{
		RetryCount:  3,
		RetryDelay:  time.Millisecond,
		Timeout:     time.Second,
		WorkerCount: 1,
		QueueSize:   8,
	}, zerolog.Nop())
	s.httpClient.Transport = &http.Transport{DisableKeepAlives: true}
	return s
}

func TestSenderSignsAndDeliversJobCompleted(t *testing.T) {
	srv := newHookServer(t, nil)
	s := newTestSender([]config.WebhookTarget{{URL: srv.URL, Secret: "s3cret"}})
	s.Start()
	defer s.Stop()

	s.HandleEvent(context.Background(), core.Event{
		Kind: core.EventJobCompleted, CorrelationID: 42, JobID: 7, Device: "Office", PagesPrinted: 3,
	})
	srv.wait(t, 1)

	srv.mu.Lock()
	d := srv.deliveries[0]
	srv.mu.Unlock()

	assert.Equal(t, "job_completed", d.event)
	assert.True(t, Verify(d.body, "s3cret", d.signature))
	assert.False(t, Verify(d.body, "other", d.signature))

	var payload struct {
		Event string           `json:"event"`
		Data  JobCompletedData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(d.body, &payload))
	assert.Equal(t, "job_completed", payload.Event)
	assert.Equal(t, int64(42), payload.Data.CorrelationID)
	assert.Equal(t, 3, payload.Data.PagesPrinted)
}

func TestSenderRetriesServerErrors(t *testing.T) {
	srv := newHookServer(t, func(hit int32) int {
		if hit < 3 {
			return http.StatusBadGateway
		}
		return http.StatusNoContent
	})
	s := newTestSender([]config.WebhookTarget{{URL: srv.URL}})
	s.Start()
	defer s.Stop()

	s.HandleEvent(context.Background(), core.Event{Kind: core.EventJobFailed, CorrelationID: 1, Reason: "paper out"})
	srv.wait(t, 3)

	srv.mu.Lock()
	defer srv.mu.Unlock()
	require.Len(t, srv.deliveries, 1)
	assert.Empty(t, srv.deliveries[0].signature)

	var payload struct {
		Data JobFailedData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(srv.deliveries[0].body, &payload))
	assert.Equal(t, "paper out", payload.Data.Reason)
}

func TestSenderDoesNotRetryClientErrors(t *testing.T) {
	srv := newHookServer(t, func(int32) int { return http.StatusUnauthorized })
	s := newTestSender([]config.WebhookTarget{{URL: srv.URL}})
	s.Start()

	s.HandleEvent(context.Background(), core.Event{Kind: core.EventPrinterStatusChanged, Device: "Office"})
	srv.wait(t, 1)
	s.Stop()

	assert.Equal(t, int32(1), srv.hits.Load())
}

func TestSenderFiltersByEvent(t *testing.T) {
	srv := newHookServer(t, nil)
	s := newTestSender([]config.WebhookTarget{
		{URL: srv.URL, Events: []string{"printer_status_changed"}},
	})
	s.Start()
	defer s.Stop()

	s.HandleEvent(context.Background(), core.Event{Kind: core.EventJobCompleted, CorrelationID: 1})
	s.HandleEvent(context.Background(), core.Event{Kind: core.EventPrinterStatusChanged, Device: "Office", Online: true})
	srv.wait(t, 1)

	srv.mu.Lock()
	defer srv.mu.Unlock()
	require.Len(t, srv.deliveries, 1)
	assert.Equal(t, "printer_status_changed", srv.deliveries[0].event)

	var payload struct {
		Data PrinterStatusData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(srv.deliveries[0].body, &payload))
	assert.True(t, payload.Data.Online)
}

func TestSenderDropsWhenQueueFull(t *testing.T) {
	s := NewWebhookSender([]config.WebhookTarget{{URL: "http://127.0.0.1:1"}}, WebhookConfig{QueueSize: 1}, zerolog.Nop())
	s.HandleEvent(context.Background(), core.Event{Kind: core.EventJobCompleted})
	s.HandleEvent(context.Background(), core.Event{Kind: core.EventJobCompleted})
	assert.Len(t, s.queue, 1)
	s.Stop()
}

func TestSignIsStable(t *testing.T) {
	assert.Equal(t, Sign([]byte("body"), "k"), Sign([]byte("body"), "k"))
	assert.NotEqual(t, Sign([]byte("body"), "k"), Sign([]byte("body2"), "k"))
	assert.False(t, Verify([]byte("body"), "k", "zz"))
}

func TestSendTestTargetsByName(t *testing.T) {
	srv := newHookServer(t, nil)
	s := newTestSender([]config.WebhookTarget{{Name: "ops", URL: srv.URL, Secret: "k"}})

	require.NoError(t, s.SendTest(context.Background(), "ops"))
	srv.wait(t, 1)

	srv.mu.Lock()
	d := srv.deliveries[0]
	srv.mu.Unlock()
	assert.Equal(t, "test", d.event)
	assert.True(t, Verify(d.body, "k", d.signature))

	assert.ErrorIs(t, s.SendTest(context.Background(), "missing"), ErrUnknownTarget)
}
