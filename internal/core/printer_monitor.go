package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/orrn/pagespool/internal/metrics"
	"github.com/rs/zerolog"
)

const offlineBits = PrinterStatusOffline | PrinterStatusError | PrinterStatusNotAvailable | PrinterStatusPaused

func IsOnline(info PrinterInfo) bool {
	return !info.Status.Has(offlineBits) && !info.WorkOffline
}

// PrinterMonitor relays online/offline transitions of watched devices. Each
// watch owns its own printer handle; closing the handle ends the watch.
//
// Only transitions are emitted. A change notification that leaves the online
// state as it was (other status bits flipping, or a repeated offline report)
// is logged at debug level and dropped, so sinks never see two events in a
// row with the same Online value for a device.
type PrinterMonitor struct {
	spooler Spooler
	sink    EventSink
	log     zerolog.Logger

	mu      sync.RWMutex
	states  map[string]PrinterState
	handles map[string]PrinterHandle
	wg      sync.WaitGroup
}

func NewPrinterMonitor(spooler Spooler, sink EventSink, log zerolog.Logger) *PrinterMonitor {
	return &PrinterMonitor{
		spooler: spooler,
		sink:    sink,
		log:     log,
		states:  make(map[string]PrinterState),
		handles: make(map[string]PrinterHandle),
	}
}

func (m *PrinterMonitor) Watch(device string) error {
	m.mu.Lock()
	if _, ok := m.handles[device]; ok {
		m.mu.Unlock()
		return nil
	}
	h, err := m.spooler.OpenPrinter(device)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.handles[device] = h
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(context.Background(), device, h)
		_ = h.Close()
		m.mu.Lock()
		if m.handles[device] == h {
			delete(m.handles, device)
		}
		m.mu.Unlock()
	}()
	return nil
}

func (m *PrinterMonitor) WatchAll() {
	for _, name := range m.spooler.Devices() {
		if err := m.Watch(name); err != nil {
			m.log.Warn().Err(err).Str("device", name).Msg("failed to watch printer")
		}
	}
}

func (m *PrinterMonitor) State(device string) (PrinterState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[device]
	return s, ok
}

func (m *PrinterMonitor) States() []PrinterState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]PrinterState, 0, len(m.states))
	for _, s := range m.states {
		out = append(out, s)
	}
	return out
}

// Stop closes every watch handle and waits for the workers.
func (m *PrinterMonitor) Stop() {
	m.mu.Lock()
	for name, h := range m.handles {
		_ = h.Close()
		delete(m.handles, name)
	}
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *PrinterMonitor) run(ctx context.Context, device string, h PrinterHandle) {
	log := m.log.With().Str("device", device).Logger()

	info, err := h.Info()
	if err != nil {
		log.Warn().Err(err).Msg("failed to read printer status")
		return
	}
	last := IsOnline(info)
	m.publish(device, last)

	for {
		if err := h.WaitForChange(ctx); err != nil {
			if errors.Is(err, ErrHandleClosed) {
				log.Debug().Msg("printer watch closed")
			} else {
				log.Warn().Err(err).Msg("printer change wait failed")
			}
			return
		}

		info, err := h.Info()
		if err != nil {
			log.Warn().Err(err).Msg("failed to read printer status after change")
			continue
		}
		online := IsOnline(info)
		if online == last {
			log.Debug().Bool("online", online).Msg("printer changed without online transition")
			continue
		}
		last = online
		m.publish(device, online)
	}
}

func (m *PrinterMonitor) publish(device string, online bool) {
	now := time.Now()
	m.mu.Lock()
	m.states[device] = PrinterState{Device: device, Online: online, ChangedAt: now}
	m.mu.Unlock()

	metrics.SetPrinterOnline(device, online)
	m.log.Info().Str("device", device).Bool("online", online).Msg("printer status")
	m.sink.Emit(Event{
		Kind:   EventPrinterStatusChanged,
		Device: device,
		Online: online,
		At:     now,
	})
}
