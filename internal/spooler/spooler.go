// Package spooler is an in-process print spooler. It keeps a job queue per
// device, advances jobs at a configured page rate and reports the same status
// bits a system spooler does, so the print pipeline can run end to end
// without real hardware.
package spooler

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orrn/pagespool/internal/config"
	"github.com/orrn/pagespool/internal/core"
	"github.com/rs/zerolog"
)

var (
	ErrNoDocument     = errors.New("no document in progress")
	ErrDocumentActive = errors.New("document already in progress")
	ErrNoPage         = errors.New("no page in progress")
	ErrPageActive     = errors.New("page already in progress")
	ErrContextClosed  = errors.New("device context closed")
	ErrInvalidMode    = errors.New("invalid device mode")
)

const (
	defaultDPI      = 300
	defaultPageTime = 500 * time.Millisecond
	defaultTick     = 100 * time.Millisecond

	// printedRetention keeps finished jobs visible for two default ticks.
	printedRetention = 2 * defaultTick

	// devModeSize mirrors the public part of a device mode record.
	devModeSize = 220
)

type Spooler struct {
	devices map[string]*device
	names   []string
	nextJob atomic.Uint32
	log     zerolog.Logger

	keepDeleted time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Option adjusts a Spooler built by New.
type Option func(*Spooler)

// WithDeletedRetention keeps deleted jobs queryable for d before they leave
// the queue. Job monitors only see a cancellation if d covers at least one of
// their poll intervals.
func WithDeletedRetention(d time.Duration) Option {
	return func(s *Spooler) {
		if d > 0 {
			s.keepDeleted = d
		}
	}
}

func New(devices []config.DeviceConfig, log zerolog.Logger, opts ...Option) (*Spooler, error) {
	s := &Spooler{
		devices:     make(map[string]*device, len(devices)),
		log:         log,
		keepDeleted: printedRetention,
		stopCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, dc := range devices {
		if _, exists := s.devices[dc.Name]; exists {
			return nil, fmt.Errorf("device %q defined twice", dc.Name)
		}
		d, err := newDevice(dc)
		if err != nil {
			return nil, fmt.Errorf("device %q: %w", dc.Name, err)
		}
		d.keepDeleted = s.keepDeleted
		s.devices[dc.Name] = d
		s.names = append(s.names, dc.Name)
	}
	sort.Strings(s.names)
	return s, nil
}

func (s *Spooler) Devices() []string {
	return append([]string(nil), s.names...)
}

func (s *Spooler) OpenPrinter(name string) (core.PrinterHandle, error) {
	d, err := s.device(name)
	if err != nil {
		return nil, err
	}
	return d.open(s), nil
}

func (s *Spooler) device(name string) (*device, error) {
	d, ok := s.devices[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrDeviceNotFound, name)
	}
	return d, nil
}

// Start runs the print engine, advancing every device by tick.
func (s *Spooler) Start(tick time.Duration) {
	if tick <= 0 {
		tick = defaultTick
	}
	s.wg.Add(1)
	go s.engineLoop(tick)
}

func (s *Spooler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Spooler) engineLoop(tick time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Advance(tick)
		}
	}
}

// Advance moves every device's print engine forward by elapsed.
func (s *Spooler) Advance(elapsed time.Duration) {
	for _, name := range s.names {
		s.devices[name].advance(elapsed, s.log)
	}
}

func (s *Spooler) SetOnline(name string, online bool) error {
	d, err := s.device(name)
	if err != nil {
		return err
	}
	d.mu.Lock()
	changed := d.online != online
	d.online = online
	d.mu.Unlock()
	if changed {
		s.log.Info().Str("device", name).Bool("online", online).Msg("device online state changed")
		d.notify()
	}
	return nil
}

func (s *Spooler) SetPaperOut(name string, out bool) error {
	d, err := s.device(name)
	if err != nil {
		return err
	}
	d.mu.Lock()
	changed := d.paperOut != out
	d.paperOut = out
	d.mu.Unlock()
	if changed {
		d.notify()
	}
	return nil
}

func (s *Spooler) SetPaused(name string, paused bool) error {
	d, err := s.device(name)
	if err != nil {
		return err
	}
	d.mu.Lock()
	changed := d.paused != paused
	d.paused = paused
	d.mu.Unlock()
	if changed {
		d.notify()
	}
	return nil
}

// Jobs lists the device queue in submission order.
func (s *Spooler) Jobs(name string) ([]core.JobInfo, error) {
	d, err := s.device(name)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]core.JobInfo, 0, len(d.queue))
	for _, id := range d.queue {
		out = append(out, d.jobs[id].info())
	}
	return out, nil
}

// Status summarizes a device for listings.
type Status struct {
	Name         string                 `json:"name"`
	Online       bool                   `json:"online"`
	StatusBits   core.PrinterStatusBits `json:"status_bits"`
	QueuedJobs   int                    `json:"queued_jobs"`
	Capabilities core.Capabilities      `json:"capabilities"`
}

func (s *Spooler) Status(name string) (Status, error) {
	d, err := s.device(name)
	if err != nil {
		return Status{}, err
	}
	info := d.printerInfo()
	d.mu.Lock()
	queued := len(d.queue)
	d.mu.Unlock()
	return Status{
		Name:         name,
		Online:       core.IsOnline(info),
		StatusBits:   info.Status,
		QueuedJobs:   queued,
		Capabilities: d.caps,
	}, nil
}
