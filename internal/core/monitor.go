package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orrn/pagespool/internal/metrics"
	"github.com/rs/zerolog"
)

type MonitorConfig struct {
	InitialDelay time.Duration
	PollInterval time.Duration
	MaxPolls     int
}

func (c MonitorConfig) withDefaults() MonitorConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.MaxPolls <= 0 {
		c.MaxPolls = 150
	}
	if c.InitialDelay < 0 {
		c.InitialDelay = 0
	}
	return c
}

// JobMonitor polls the spooler for submitted jobs and reports one terminal
// outcome per job to its sink.
type JobMonitor struct {
	spooler Spooler
	sink    EventSink
	cfg     MonitorConfig
	log     zerolog.Logger

	active sync.Map // jobKey -> *atomic.Bool (reported)
	wg     sync.WaitGroup
}

func NewJobMonitor(spooler Spooler, sink EventSink, cfg MonitorConfig, log zerolog.Logger) *JobMonitor {
	return &JobMonitor{
		spooler: spooler,
		sink:    sink,
		cfg:     cfg.withDefaults(),
		log:     log,
	}
}

type jobKey struct {
	device string
	id     uint32
}

// Watch starts a detached worker for job. It returns false when the job is
// already being watched.
func (m *JobMonitor) Watch(job SpoolJob) bool {
	key := jobKey{device: job.Device, id: job.JobID}
	if _, loaded := m.active.LoadOrStore(key, new(atomic.Bool)); loaded {
		return false
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.active.Delete(key)
		m.run(context.Background(), job, key)
	}()
	return true
}

// Run polls synchronously and returns the outcome. It still reports through
// the sink. ok is false when ctx ended before a classification was reached.
func (m *JobMonitor) Run(ctx context.Context, job SpoolJob) (JobOutcome, bool) {
	key := jobKey{device: job.Device, id: job.JobID}
	if _, loaded := m.active.LoadOrStore(key, new(atomic.Bool)); loaded {
		return JobOutcome{}, false
	}
	defer m.active.Delete(key)
	return m.run(ctx, job, key)
}

// Wait blocks until every detached worker has returned.
func (m *JobMonitor) Wait() {
	m.wg.Wait()
}

func (m *JobMonitor) run(ctx context.Context, job SpoolJob, key jobKey) (JobOutcome, bool) {
	log := m.log.With().
		Str("device", job.Device).
		Uint32("job_id", job.JobID).
		Int64("correlation_id", job.CorrelationID).
		Logger()

	metrics.ActiveMonitors.Inc()
	defer metrics.ActiveMonitors.Dec()

	tracker := NewJobTracker(job.TotalPages)
	var handle PrinterHandle
	defer func() {
		if handle != nil {
			_ = handle.Close()
		}
	}()

	if !sleepCtx(ctx, m.cfg.InitialDelay) {
		log.Warn().Msg("monitor abandoned before first poll")
		return JobOutcome{}, false
	}

	for tracker.Polls < m.cfg.MaxPolls {
		if handle == nil {
			h, err := m.spooler.OpenPrinter(job.Device)
			if err != nil {
				tracker.Miss()
				log.Warn().Err(err).Int("poll", tracker.Polls).Msg("failed to open printer for job poll")
				if tracker.Polls >= m.cfg.MaxPolls {
					break
				}
				if !sleepCtx(ctx, m.cfg.PollInterval) {
					return JobOutcome{}, false
				}
				continue
			}
			handle = h
		}

		obs, err := poll(handle, job.JobID)
		if err != nil {
			tracker.Miss()
			log.Warn().Err(err).Int("poll", tracker.Polls).Msg("job poll failed")
			_ = handle.Close()
			handle = nil
		} else {
			if tracker.Observe(obs) {
				log.Debug().Int("poll", tracker.Polls).Msg("job left the queue")
				break
			}
			log.Debug().
				Int("poll", tracker.Polls).
				Str("status", fmt.Sprintf("0x%04x", uint32(obs.Status))).
				Int("pages_printed", obs.PagesPrinted).
				Msg("job still queued")
		}

		if tracker.Polls >= m.cfg.MaxPolls {
			break
		}
		if !sleepCtx(ctx, m.cfg.PollInterval) {
			log.Warn().Msg("monitor abandoned")
			return JobOutcome{}, false
		}
	}

	outcome := tracker.Classify()
	m.report(job, key, outcome, log)
	return outcome, true
}

func poll(h PrinterHandle, id uint32) (JobObservation, error) {
	info, err := h.GetJob(id)
	now := time.Now()
	if errors.Is(err, ErrJobNotFound) {
		return JobObservation{Present: false, At: now}, nil
	}
	if err != nil {
		return JobObservation{}, err
	}
	return JobObservation{
		Present:      true,
		Status:       info.Status,
		PagesPrinted: info.PagesPrinted,
		At:           now,
	}, nil
}

func (m *JobMonitor) report(job SpoolJob, key jobKey, out JobOutcome, log zerolog.Logger) {
	v, ok := m.active.Load(key)
	if !ok {
		return
	}
	if !v.(*atomic.Bool).CompareAndSwap(false, true) {
		return
	}

	ev := Event{
		CorrelationID: job.CorrelationID,
		JobID:         job.JobID,
		DocumentName:  job.DocumentName,
		Device:        job.Device,
		PagesPrinted:  out.PagesPrinted,
		TotalPages:    job.TotalPages,
		Reason:        out.Message,
		Outcome:       out.Kind,
	}
	metrics.RecordOutcome(string(out.Kind))
	if out.Succeeded() {
		ev.Kind = EventJobCompleted
		log.Info().Int("pages_printed", out.PagesPrinted).Msg("print job completed")
	} else {
		ev.Kind = EventJobFailed
		log.Warn().Str("outcome", string(out.Kind)).Str("reason", out.Message).Msg("print job failed")
	}
	m.sink.Emit(ev)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
