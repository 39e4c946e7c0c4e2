package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/orrn/pagespool/internal/config"
	"github.com/orrn/pagespool/internal/core"
	"github.com/orrn/pagespool/internal/metrics"
	"github.com/rs/zerolog"
)

const (
	SignatureHeader = "X-Webhook-Signature"
	EventHeader     = "X-Webhook-Event"
)

var (
	errShutdown      = errors.New("shutdown requested")
	ErrUnknownTarget = errors.New("unknown webhook target")
)

type WebhookPayload struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

type JobCompletedData struct {
	CorrelationID int64  `json:"correlation_id"`
	Device        string `json:"device"`
	JobID         uint32 `json:"job_id"`
	PagesPrinted  int    `json:"pages_printed"`
}

type JobFailedData struct {
	CorrelationID int64  `json:"correlation_id"`
	Device        string `json:"device"`
	JobID         uint32 `json:"job_id"`
	Reason        string `json:"reason"`
	Outcome       string `json:"outcome"`
	PagesPrinted  int    `json:"pages_printed"`
}

type PrinterStatusData struct {
	Device string `json:"device"`
	Online bool   `json:"online"`
}

type WebhookConfig struct {
	RetryCount  int
	RetryDelay  time.Duration
	Timeout     time.Duration
	WorkerCount int
	QueueSize   int
}

type webhookTask struct {
	target  config.WebhookTarget
	event   core.EventKind
	payload *WebhookPayload
	attempt int
}

// WebhookSender delivers dispatcher events to the configured targets from a
// bounded queue. Deliveries that fail with a server or transport error are
// retried with exponential backoff; client errors are not retried.
type WebhookSender struct {
	targets     []config.WebhookTarget
	httpClient  *http.Client
	retryCount  int
	retryDelay  time.Duration
	workerCount int
	queue       chan *webhookTask
	stopCh      chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	log         zerolog.Logger
}

func NewWebhookSender(targets []config.WebhookTarget, cfg WebhookConfig, log zerolog.Logger) *WebhookSender {
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 3
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}

	return &WebhookSender{
		targets: targets,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		retryCount:  cfg.RetryCount,
		retryDelay:  cfg.RetryDelay,
		workerCount: cfg.WorkerCount,
		queue:       make(chan *webhookTask, cfg.QueueSize),
		stopCh:      make(chan struct{}),
		log:         log,
	}
}

func (s *WebhookSender) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

func (s *WebhookSender) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *WebhookSender) HandleEvent(_ context.Context, ev core.Event) {
	var data interface{}
	switch ev.Kind {
	case core.EventJobCompleted:
		data = &JobCompletedData{
			CorrelationID: ev.CorrelationID,
			Device:        ev.Device,
			JobID:         ev.JobID,
			PagesPrinted:  ev.PagesPrinted,
		}
	case core.EventJobFailed:
		data = &JobFailedData{
			CorrelationID: ev.CorrelationID,
			Device:        ev.Device,
			JobID:         ev.JobID,
			Reason:        ev.Reason,
			Outcome:       string(ev.Outcome),
			PagesPrinted:  ev.PagesPrinted,
		}
	case core.EventPrinterStatusChanged:
		data = &PrinterStatusData{
			Device: ev.Device,
			Online: ev.Online,
		}
	default:
		return
	}
	s.enqueue(ev.Kind, ev.At, data)
}

func subscribed(t config.WebhookTarget, event core.EventKind) bool {
	if len(t.Events) == 0 {
		return true
	}
	for _, e := range t.Events {
		if e == string(event) {
			return true
		}
	}
	return false
}

func (s *WebhookSender) enqueue(event core.EventKind, at time.Time, data interface{}) {
	if at.IsZero() {
		at = time.Now()
	}
	for _, target := range s.targets {
		if !subscribed(target, event) {
			continue
		}
		task := &webhookTask{
			target: target,
			event:  event,
			payload: &WebhookPayload{
				Event:     string(event),
				Timestamp: at.UTC(),
				Data:      data,
			},
		}

		select {
		case s.queue <- task:
		default:
			metrics.WebhookDeliveriesTotal.WithLabelValues(string(event), "dropped").Inc()
			s.log.Warn().Str("url", target.URL).Str("event", string(event)).Msg("webhook queue full, dropping delivery")
		}
	}
}

func (s *WebhookSender) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case task := <-s.queue:
			if err := s.sendWithRetry(task); err != nil {
				metrics.WebhookDeliveriesTotal.WithLabelValues(string(task.event), "failed").Inc()
				s.log.Error().Err(err).
					Int("worker", id).
					Str("url", task.target.URL).
					Str("event", string(task.event)).
					Int("attempts", task.attempt).
					Msg("webhook delivery failed")
				continue
			}
			metrics.WebhookDeliveriesTotal.WithLabelValues(string(task.event), "delivered").Inc()
		}
	}
}

func (s *WebhookSender) sendWithRetry(task *webhookTask) error {
	var lastErr error
	for task.attempt < s.retryCount {
		task.attempt++

		err := s.sendRequest(task.target, task.payload)
		if err == nil {
			return nil
		}

		lastErr = err

		if isClientError(err) {
			return err
		}

		if task.attempt < s.retryCount {
			backoff := s.retryDelay * time.Duration(1<<(task.attempt-1))
			s.log.Warn().Err(err).
				Int("attempt", task.attempt).
				Int("max_attempts", s.retryCount).
				Str("url", task.target.URL).
				Dur("backoff", backoff).
				Msg("webhook delivery failed, retrying")

			select {
			case <-s.stopCh:
				return errShutdown
			case <-time.After(backoff):
			}
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http error: %d", e.code)
}

func (s *WebhookSender) sendRequest(target config.WebhookTarget, payload *WebhookPayload) error {
	return s.sendRequestContext(context.Background(), target, payload)
}

func (s *WebhookSender) sendRequestContext(ctx context.Context, target config.WebhookTarget, payload *WebhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, payload.Event)
	if target.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(body, target.Secret))
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &statusError{code: resp.StatusCode}
	}

	return nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(body []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Verify checks a signature produced by Sign in constant time.
func Verify(body []byte, secret, signature string) bool {
	want, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return hmac.Equal(h.Sum(nil), want)
}

func isClientError(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 400 && se.code < 500
	}
	return false
}

// Targets returns the configured delivery targets.
func (s *WebhookSender) Targets() []config.WebhookTarget {
	return s.targets
}

// SendTest posts a single "test" event to the named target without retrying.
func (s *WebhookSender) SendTest(ctx context.Context, name string) error {
	for _, target := range s.targets {
		if target.Name != name {
			continue
		}
		payload := &WebhookPayload{
			Event:     "test",
			Timestamp: time.Now().UTC(),
			Data:      map[string]string{"target": name},
		}
		return s.sendRequestContext(ctx, target, payload)
	}
	return ErrUnknownTarget
}
