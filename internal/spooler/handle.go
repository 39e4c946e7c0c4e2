package spooler

import (
	"context"
	"sync"

	"github.com/orrn/pagespool/internal/core"
)

// handle is one open printer handle. Each handle keeps its own device mode.
type handle struct {
	spooler *Spooler
	dev     *device

	mu     sync.Mutex
	mode   *core.Settings
	closed bool

	changes   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func (h *handle) Name() string { return h.dev.name }

func (h *handle) Capabilities() core.Capabilities {
	caps := h.dev.caps
	caps.PaperSizes = append([]core.PaperSize(nil), caps.PaperSizes...)
	return caps
}

func (h *handle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *handle) ModeSize() (int, error) {
	if h.isClosed() {
		return 0, core.ErrHandleClosed
	}
	return devModeSize, nil
}

func (h *handle) DefaultMode() (core.Settings, error) {
	if h.isClosed() {
		return core.Settings{}, core.ErrHandleClosed
	}
	return h.dev.defaultSettings(), nil
}

func (h *handle) ApplyMode(s core.Settings) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return core.ErrHandleClosed
	}
	if err := h.dev.validate(s); err != nil {
		return err
	}
	h.mode = &s
	return nil
}

func (h *handle) Mode() (core.Settings, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return core.Settings{}, core.ErrHandleClosed
	}
	if h.mode == nil {
		return h.dev.defaultSettings(), nil
	}
	return *h.mode, nil
}

func (h *handle) CreateContext(p *core.DeviceProfile) (core.DeviceContext, error) {
	if h.isClosed() {
		return nil, core.ErrHandleClosed
	}
	if p == nil {
		return nil, ErrInvalidMode
	}
	if err := h.dev.validate(p.Settings); err != nil {
		return nil, err
	}
	g, err := h.dev.geometry(p.Settings)
	if err != nil {
		return nil, err
	}
	return &deviceContext{
		spooler:  h.spooler,
		dev:      h.dev,
		settings: p.Settings,
		geometry: g,
	}, nil
}

func (h *handle) GetJob(id uint32) (core.JobInfo, error) {
	if h.isClosed() {
		return core.JobInfo{}, core.ErrHandleClosed
	}
	var info core.JobInfo
	err := h.dev.withJob(id, func(j *job) { info = j.info() })
	return info, err
}

// CancelJob marks the job for deletion. It stays queryable, flagged deleted,
// for the spooler's retention window.
func (h *handle) CancelJob(id uint32) error {
	if h.isClosed() {
		return core.ErrHandleClosed
	}
	err := h.dev.withJob(id, func(j *job) {
		j.status |= core.JobStatusDeleting
	})
	if err == nil {
		h.dev.notify()
	}
	return err
}

func (h *handle) Info() (core.PrinterInfo, error) {
	if h.isClosed() {
		return core.PrinterInfo{}, core.ErrHandleClosed
	}
	return h.dev.printerInfo(), nil
}

func (h *handle) WaitForChange(ctx context.Context) error {
	select {
	case <-h.done:
		return core.ErrHandleClosed
	default:
	}
	select {
	case <-h.changes:
		return nil
	case <-h.done:
		return core.ErrHandleClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *handle) Close() error {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		h.mu.Unlock()
		h.dev.detach(h)
		close(h.done)
	})
	return nil
}
