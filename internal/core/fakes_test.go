package core

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"

	"golang.org/x/image/math/f64"
)

var errInjected = errors.New("injected failure")

// inkRect is a filled black rectangle in page points.
type inkRect struct {
	x0, y0, x1, y1 float64
}

type fakeDoc struct {
	pages     []Page
	ink       map[int][]inkRect
	renderErr error
	renders   int
	closed    bool
}

func newFakeDoc(pages ...Page) *fakeDoc {
	return &fakeDoc{pages: pages, ink: make(map[int][]inkRect)}
}

func (d *fakeDoc) PageCount() int { return len(d.pages) }

func (d *fakeDoc) Page(i int) (Page, error) {
	if i < 0 || i >= len(d.pages) {
		return Page{}, fmt.Errorf("page %d out of range", i)
	}
	return d.pages[i], nil
}

func (d *fakeDoc) Render(i int, dst draw.Image, m f64.Aff3) error {
	d.renders++
	if d.renderErr != nil {
		return d.renderErr
	}
	for _, r := range d.ink[i] {
		x0, y0 := Apply(m, r.x0, r.y0)
		x1, y1 := Apply(m, r.x1, r.y1)
		rect := image.Rect(int(math.Floor(x0)), int(math.Floor(y0)), int(math.Ceil(x1)), int(math.Ceil(y1)))
		draw.Draw(dst, rect, image.NewUniform(color.Black), image.Point{}, draw.Src)
	}
	return nil
}

func (d *fakeDoc) Close() error {
	d.closed = true
	return nil
}

type fakeSource struct {
	doc    *fakeDoc
	err    error
	opened []string
}

func (s *fakeSource) Open(path string) (Document, error) {
	s.opened = append(s.opened, path)
	if s.err != nil {
		return nil, s.err
	}
	return s.doc, nil
}

type fakeSpooler struct {
	mu       sync.Mutex
	printers map[string]*fakePrinter
	openErr  error
	opens    int
}

func newFakeSpooler(printers ...*fakePrinter) *fakeSpooler {
	s := &fakeSpooler{printers: make(map[string]*fakePrinter)}
	for _, p := range printers {
		s.printers[p.name] = p
	}
	return s
}

func (s *fakeSpooler) OpenPrinter(name string) (PrinterHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens++
	if s.openErr != nil {
		return nil, s.openErr
	}
	p, ok := s.printers[name]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	p.mu.Lock()
	p.handles++
	p.mu.Unlock()
	return &fakeHandle{p: p, done: make(chan struct{})}, nil
}

func (s *fakeSpooler) Devices() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.printers))
	for name := range s.printers {
		out = append(out, name)
	}
	return out
}

// fakePrinter is the shared device state behind every handle.
type fakePrinter struct {
	name     string
	caps     Capabilities
	geometry Geometry
	defaults Settings

	modeSize     int
	modeSizeErr  error
	defaultErr   error
	applyErr     error
	modeErr      error
	createErr    error
	startDocErr  error
	startPageErr error
	endPageErr   error
	endDocErr    error

	mu       sync.Mutex
	applied  []Settings
	readBack *Settings // replaces what Mode reports after an apply
	contexts []*fakeContext
	closes   int
	handles  int
	nextJob  uint32

	// script is consumed one entry per GetJob call; the last entry repeats.
	script  []jobPoll
	polls   int
	info    PrinterInfo
	infoErr error
	changes chan struct{}
}

type jobPoll struct {
	gone   bool
	err    error
	status JobStatusBits
	pages  int
}

func newFakePrinter(name string) *fakePrinter {
	return &fakePrinter{
		name:     name,
		caps:     Capabilities{DPI: 72, Color: true, Duplex: true, MaxCopies: 10},
		geometry: Geometry{PhysicalWidth: 600, PhysicalHeight: 800, PrintableWidth: 600, PrintableHeight: 800, DPI: 72},
		defaults: Settings{Copies: 1, Duplex: DuplexSimplex, Orientation: OrientationPortrait, Paper: PaperA4, Quality: QualityNormal},
		modeSize: 220,
		nextJob:  41,
		info:     PrinterInfo{Name: name},
		changes:  make(chan struct{}, 8),
	}
}

func (p *fakePrinter) lastContext() *fakeContext {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.contexts) == 0 {
		return nil
	}
	return p.contexts[len(p.contexts)-1]
}

func (p *fakePrinter) setInfo(info PrinterInfo) {
	p.mu.Lock()
	p.info = info
	p.mu.Unlock()
	p.changes <- struct{}{}
}

func (p *fakePrinter) openHandles() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handles - p.closes
}

type fakeHandle struct {
	p         *fakePrinter
	done      chan struct{}
	closeOnce sync.Once
}

func (h *fakeHandle) Name() string { return h.p.name }

func (h *fakeHandle) Capabilities() Capabilities { return h.p.caps }

func (h *fakeHandle) ModeSize() (int, error) {
	return h.p.modeSize, h.p.modeSizeErr
}

func (h *fakeHandle) DefaultMode() (Settings, error) {
	return h.p.defaults, h.p.defaultErr
}

func (h *fakeHandle) ApplyMode(s Settings) error {
	if h.p.applyErr != nil {
		return h.p.applyErr
	}
	h.p.mu.Lock()
	h.p.applied = append(h.p.applied, s)
	h.p.mu.Unlock()
	return nil
}

func (h *fakeHandle) Mode() (Settings, error) {
	if h.p.modeErr != nil {
		return Settings{}, h.p.modeErr
	}
	h.p.mu.Lock()
	defer h.p.mu.Unlock()
	switch {
	case len(h.p.applied) == 0:
		return h.p.defaults, nil
	case h.p.readBack != nil:
		return *h.p.readBack, nil
	}
	return h.p.applied[len(h.p.applied)-1], nil
}

func (h *fakeHandle) CreateContext(prof *DeviceProfile) (DeviceContext, error) {
	if h.p.createErr != nil {
		return nil, h.p.createErr
	}
	c := &fakeContext{p: h.p, profile: prof}
	h.p.mu.Lock()
	h.p.contexts = append(h.p.contexts, c)
	h.p.mu.Unlock()
	return c, nil
}

func (h *fakeHandle) GetJob(id uint32) (JobInfo, error) {
	h.p.mu.Lock()
	defer h.p.mu.Unlock()
	if len(h.p.script) == 0 {
		return JobInfo{}, ErrJobNotFound
	}
	i := h.p.polls
	if i >= len(h.p.script) {
		i = len(h.p.script) - 1
	}
	h.p.polls++
	step := h.p.script[i]
	switch {
	case step.err != nil:
		return JobInfo{}, step.err
	case step.gone:
		return JobInfo{}, ErrJobNotFound
	}
	return JobInfo{JobID: id, Status: step.status, PagesPrinted: step.pages}, nil
}

func (h *fakeHandle) CancelJob(id uint32) error { return nil }

func (h *fakeHandle) Info() (PrinterInfo, error) {
	h.p.mu.Lock()
	defer h.p.mu.Unlock()
	return h.p.info, h.p.infoErr
}

func (h *fakeHandle) WaitForChange(ctx context.Context) error {
	select {
	case <-h.done:
		return ErrHandleClosed
	default:
	}
	select {
	case <-h.p.changes:
		return nil
	case <-h.done:
		return ErrHandleClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *fakeHandle) Close() error {
	h.closeOnce.Do(func() {
		close(h.done)
		h.p.mu.Lock()
		h.p.closes++
		h.p.mu.Unlock()
	})
	return nil
}

type fakeContext struct {
	p       *fakePrinter
	profile *DeviceProfile

	calls   []string
	pages   []*image.RGBA
	surface *image.RGBA
	closed  bool
}

func (c *fakeContext) Geometry() Geometry { return c.p.geometry }

func (c *fakeContext) StartDoc(name string) (uint32, error) {
	c.calls = append(c.calls, "StartDoc")
	if c.p.startDocErr != nil {
		return 0, c.p.startDocErr
	}
	c.p.mu.Lock()
	defer c.p.mu.Unlock()
	c.p.nextJob++
	return c.p.nextJob, nil
}

func (c *fakeContext) StartPage() error {
	c.calls = append(c.calls, "StartPage")
	if c.p.startPageErr != nil {
		return c.p.startPageErr
	}
	g := c.p.geometry
	c.surface = image.NewRGBA(image.Rect(0, 0, int(g.PrintableWidth), int(g.PrintableHeight)))
	draw.Draw(c.surface, c.surface.Bounds(), image.White, image.Point{}, draw.Src)
	return nil
}

func (c *fakeContext) Surface() draw.Image {
	if c.surface == nil {
		return nil
	}
	return c.surface
}

func (c *fakeContext) EndPage() error {
	c.calls = append(c.calls, "EndPage")
	if c.p.endPageErr != nil {
		return c.p.endPageErr
	}
	c.pages = append(c.pages, c.surface)
	c.surface = nil
	return nil
}

func (c *fakeContext) EndDoc() error {
	c.calls = append(c.calls, "EndDoc")
	return c.p.endDocErr
}

func (c *fakeContext) AbortDoc() error {
	c.calls = append(c.calls, "AbortDoc")
	return nil
}

func (c *fakeContext) Close() error {
	c.calls = append(c.calls, "Close")
	c.closed = true
	return nil
}

// recordingSink collects emitted events.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

func newRecordingSink() *recordingSink {
	return &recordingSink{ch: make(chan Event, 64)}
}

func (s *recordingSink) Emit(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	s.ch <- ev
}

func (s *recordingSink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

type fakeWatcher struct {
	jobs []SpoolJob
}

func (w *fakeWatcher) Watch(job SpoolJob) bool {
	w.jobs = append(w.jobs, job)
	return true
}
