package spooler

import (
	"fmt"
	"sync"
	"time"

	"github.com/orrn/pagespool/internal/config"
	"github.com/orrn/pagespool/internal/core"
	"github.com/rs/zerolog"
)

type device struct {
	name      string
	caps      core.Capabilities
	paper     core.PaperSize
	margins   marginsMM
	pageTime  time.Duration
	outputDir string
	// Printed jobs leave the queue after keepPrinted, deleted ones after
	// keepDeleted.
	keepPrinted time.Duration
	keepDeleted time.Duration

	mu       sync.Mutex
	online   bool
	paperOut bool
	paused   bool
	jobs     map[uint32]*job
	queue    []uint32
	watchers map[*handle]struct{}
}

type marginsMM struct {
	left, top, right, bottom float64
}

type job struct {
	id       uint32
	document string
	status   core.JobStatusBits
	pages    int
	copies   int
	printed  int
	elapsed  time.Duration
	// retained is the time spent printed or deleting before removal.
	retained time.Duration
}

func (j *job) finished() bool {
	return j.status.Has(core.JobStatusPrinted | core.JobStatusDeleting)
}

func (j *job) info() core.JobInfo {
	return core.JobInfo{
		JobID:        j.id,
		Status:       j.status,
		PagesPrinted: j.printed,
		TotalPages:   j.pages * j.copies,
		Document:     j.document,
	}
}

func newDevice(cfg config.DeviceConfig) (*device, error) {
	dpi := cfg.DPI
	if dpi == 0 {
		dpi = defaultDPI
	}

	papers := make([]core.PaperSize, 0, len(cfg.PaperSizes))
	for _, name := range cfg.PaperSizes {
		p, ok := core.LookupPaper(name)
		if !ok {
			return nil, fmt.Errorf("unknown paper size %q", name)
		}
		papers = append(papers, p)
	}

	caps := core.Capabilities{
		PaperSizes: papers,
		DPI:        dpi,
		Color:      cfg.Color,
		Duplex:     cfg.Duplex,
		MaxCopies:  cfg.MaxCopies,
	}

	paper := core.DefaultPaper
	switch {
	case cfg.DefaultPaper != "":
		p, ok := core.LookupPaper(cfg.DefaultPaper)
		if !ok {
			return nil, fmt.Errorf("unknown default paper %q", cfg.DefaultPaper)
		}
		paper = p
	case len(papers) > 0:
		paper = papers[0]
	}
	if !caps.SupportsPaper(paper) {
		return nil, fmt.Errorf("default paper %s is not in the device paper list", paper.Name)
	}

	pageTime := cfg.PageTime
	if pageTime <= 0 {
		pageTime = defaultPageTime
	}

	return &device{
		name:  cfg.Name,
		caps:  caps,
		paper: paper,
		margins: marginsMM{
			left:   cfg.MarginLeft,
			top:    cfg.MarginTop,
			right:  cfg.MarginRight,
			bottom: cfg.MarginBottom,
		},
		pageTime:    pageTime,
		outputDir:   cfg.OutputDir,
		keepPrinted: printedRetention,
		keepDeleted: printedRetention,
		online:      cfg.IsOnline(),
		jobs:        make(map[uint32]*job),
		watchers:    make(map[*handle]struct{}),
	}, nil
}

func (d *device) open(s *Spooler) *handle {
	h := &handle{
		spooler: s,
		dev:     d,
		changes: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	d.mu.Lock()
	d.watchers[h] = struct{}{}
	d.mu.Unlock()
	return h
}

func (d *device) detach(h *handle) {
	d.mu.Lock()
	delete(d.watchers, h)
	d.mu.Unlock()
}

// notify wakes every handle blocked in WaitForChange. Notifications coalesce.
func (d *device) notify() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifyLocked()
}

func (d *device) notifyLocked() {
	for h := range d.watchers {
		select {
		case h.changes <- struct{}{}:
		default:
		}
	}
}

func (d *device) defaultSettings() core.Settings {
	return core.Settings{
		Copies:      1,
		Duplex:      core.DuplexSimplex,
		Color:       d.caps.Color,
		Orientation: core.OrientationPortrait,
		Paper:       d.paper,
		Quality:     core.QualityNormal,
	}
}

func (d *device) validate(s core.Settings) error {
	if s.Copies < 1 {
		return fmt.Errorf("%w: copies %d", ErrInvalidMode, s.Copies)
	}
	if d.caps.MaxCopies > 0 && s.Copies > d.caps.MaxCopies {
		return fmt.Errorf("%w: copies %d exceed %d", ErrInvalidMode, s.Copies, d.caps.MaxCopies)
	}
	if s.Color && !d.caps.Color {
		return fmt.Errorf("%w: color not supported", ErrInvalidMode)
	}
	if s.Duplex != core.DuplexSimplex && s.Duplex != "" && !d.caps.Duplex {
		return fmt.Errorf("%w: duplex not supported", ErrInvalidMode)
	}
	if !d.caps.SupportsPaper(s.Paper) {
		return fmt.Errorf("%w: paper %s not supported", ErrInvalidMode, s.Paper.Name)
	}
	return nil
}

func mmToPixels(mm float64, dpi int) float64 {
	return mm / 25.4 * float64(dpi)
}

// geometry lays out the sheet for settings in device pixels. Landscape turns
// the sheet, and the margins with it.
func (d *device) geometry(s core.Settings) (core.Geometry, error) {
	dpi := d.caps.DPI
	w := mmToPixels(s.Paper.WidthMM, dpi)
	h := mmToPixels(s.Paper.HeightMM, dpi)
	m := d.margins
	if s.Orientation == core.OrientationLandscape {
		w, h = h, w
		m = marginsMM{left: m.top, top: m.right, right: m.bottom, bottom: m.left}
	}

	g := core.Geometry{
		PhysicalWidth:  float64(int(w)),
		PhysicalHeight: float64(int(h)),
		OffsetX:        float64(int(mmToPixels(m.left, dpi))),
		OffsetY:        float64(int(mmToPixels(m.top, dpi))),
		DPI:            dpi,
	}
	g.PrintableWidth = g.PhysicalWidth - g.OffsetX - float64(int(mmToPixels(m.right, dpi)))
	g.PrintableHeight = g.PhysicalHeight - g.OffsetY - float64(int(mmToPixels(m.bottom, dpi)))
	if g.PrintableWidth <= 0 || g.PrintableHeight <= 0 {
		return core.Geometry{}, fmt.Errorf("margins leave no printable area on %s", s.Paper.Name)
	}
	return g, nil
}

func (d *device) printerInfo() core.PrinterInfo {
	d.mu.Lock()
	defer d.mu.Unlock()

	var bits core.PrinterStatusBits
	if !d.online {
		bits |= core.PrinterStatusOffline
	}
	if d.paperOut {
		bits |= core.PrinterStatusPaperOut | core.PrinterStatusError
	}
	if d.paused {
		bits |= core.PrinterStatusPaused
	}
	if j := d.activeJobLocked(); j != nil && j.status.Has(core.JobStatusPrinting) {
		bits |= core.PrinterStatusPrinting | core.PrinterStatusBusy
	}
	return core.PrinterInfo{Name: d.name, Status: bits}
}

func (d *device) addJob(id uint32, document string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs[id] = &job{id: id, document: document, status: core.JobStatusSpooling, copies: 1}
	d.queue = append(d.queue, id)
	d.notifyLocked()
}

func (d *device) removeJobLocked(id uint32) {
	delete(d.jobs, id)
	for i, q := range d.queue {
		if q == id {
			d.queue = append(d.queue[:i], d.queue[i+1:]...)
			break
		}
	}
	d.notifyLocked()
}

func (d *device) withJob(id uint32, fn func(j *job)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	j, ok := d.jobs[id]
	if !ok {
		return core.ErrJobNotFound
	}
	fn(j)
	return nil
}

// activeJobLocked is the oldest job that has finished spooling and is
// neither printed nor deleting.
func (d *device) activeJobLocked() *job {
	for _, id := range d.queue {
		j := d.jobs[id]
		if !j.status.Has(core.JobStatusSpooling) && !j.finished() {
			return j
		}
	}
	return nil
}

// advance runs the print engine for elapsed. Printed and deleting jobs stay
// queryable for their retention window, then leave the queue.
func (d *device) advance(elapsed time.Duration, log zerolog.Logger) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, id := range append([]uint32(nil), d.queue...) {
		j := d.jobs[id]
		if !j.finished() {
			continue
		}
		if j.status.Has(core.JobStatusDeleting) && !j.status.Has(core.JobStatusDeleted) {
			j.status &^= core.JobStatusPrinting
			j.status |= core.JobStatusDeleted
			log.Debug().Str("device", d.name).Uint32("job_id", id).Int("pages", j.printed).Msg("job deleted")
		}
		keep := d.keepPrinted
		if j.status.Has(core.JobStatusDeleted) {
			keep = d.keepDeleted
		}
		j.retained += elapsed
		if j.retained >= keep {
			log.Debug().Str("device", d.name).Uint32("job_id", id).Int("pages", j.printed).Msg("job left the queue")
			d.removeJobLocked(id)
		}
	}

	j := d.activeJobLocked()
	if j == nil {
		return
	}

	j.status &^= core.JobStatusOffline | core.JobStatusError | core.JobStatusPaperOut | core.JobStatusPaused
	switch {
	case !d.online:
		j.status |= core.JobStatusOffline
		return
	case d.paperOut:
		j.status |= core.JobStatusError | core.JobStatusPaperOut
		return
	case d.paused:
		j.status |= core.JobStatusPaused
		return
	}

	j.status |= core.JobStatusPrinting
	total := j.pages * j.copies
	j.elapsed += elapsed
	for j.elapsed >= d.pageTime && j.printed < total {
		j.printed++
		j.elapsed -= d.pageTime
	}
	if j.printed >= total {
		j.status &^= core.JobStatusPrinting
		j.status |= core.JobStatusPrinted | core.JobStatusComplete
	}
}
