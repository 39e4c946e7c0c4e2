package core

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/orrn/pagespool/internal/metrics"
	"github.com/rs/zerolog"
)

// Watcher receives accepted jobs for completion monitoring.
type Watcher interface {
	Watch(job SpoolJob) bool
}

type Submitter struct {
	spooler      Spooler
	docs         DocumentSource
	configurator *Configurator
	renderer     *Renderer
	watcher      Watcher
	log          zerolog.Logger
}

func NewSubmitter(spooler Spooler, docs DocumentSource, configurator *Configurator, renderer *Renderer, watcher Watcher, log zerolog.Logger) *Submitter {
	return &Submitter{
		spooler:      spooler,
		docs:         docs,
		configurator: configurator,
		renderer:     renderer,
		watcher:      watcher,
		log:          log,
	}
}

// ResolvePageRange returns the 1-based inclusive pages to print. Invalid
// ranges fall back to the whole document; end is clipped to pageCount.
func ResolvePageRange(start, end, pageCount int) (int, int) {
	if start <= 0 || end <= 0 || start > end || start > pageCount {
		return 1, pageCount
	}
	if end > pageCount {
		end = pageCount
	}
	return start, end
}

// DocumentURI validates a local path and returns its file:// form.
func DocumentURI(path string) (string, error) {
	if !utf8.ValidString(path) || strings.ContainsRune(path, 0) {
		return "", fmt.Errorf("path %q is not a valid file name", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String(), nil
}

// Submit drives open -> configure -> begin document -> pages -> end document.
// It returns as soon as the spooler holds the whole document; physical
// completion is reported later through the job monitor. Every failure is
// synchronous and releases what was acquired, in reverse order.
//
// Page loop failures map onto the page codes: a cancelled ctx reports
// begin-page-failed for the page it stopped before, and a page that cannot
// be rendered reports end-page-failed because it was begun but never
// completed.
func (s *Submitter) Submit(ctx context.Context, req PrintRequest) (ack *Ack, err error) {
	defer func() {
		if err != nil {
			metrics.RecordSubmission(string(CodeOf(err)))
			return
		}
		metrics.RecordSubmission(ack.Status)
	}()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	log := s.log.With().
		Str("device", req.DeviceName).
		Str("file", req.FilePath).
		Int64("correlation_id", req.CorrelationID).
		Logger()

	printer, err := s.spooler.OpenPrinter(req.DeviceName)
	if err != nil {
		return nil, newPrintError(CodeDeviceNotFound, fmt.Sprintf("cannot open printer %q", req.DeviceName), err)
	}
	defer printer.Close()

	base, err := s.configurator.PrepareMode(printer)
	if err != nil {
		return nil, err
	}

	uri, err := DocumentURI(req.FilePath)
	if err != nil {
		return nil, newPrintError(CodeDocumentURIError, "cannot build document uri", err)
	}

	doc, err := s.docs.Open(req.FilePath)
	if err != nil {
		return nil, newPrintError(CodeDocumentLoadError, fmt.Sprintf("cannot load %s", uri), err)
	}
	defer doc.Close()

	pageCount := doc.PageCount()
	if pageCount == 0 {
		return nil, newPrintError(CodeDocumentLoadError, fmt.Sprintf("%s has no pages", uri), nil)
	}

	profile := s.configurator.Configure(printer, base, req, doc)

	dc, err := printer.CreateContext(profile)
	if err != nil {
		return nil, newPrintError(CodeDeviceNotFound, "cannot create device context", err)
	}
	defer dc.Close()

	docName := "pagespool-" + uuid.NewString()
	jobID, err := dc.StartDoc(docName)
	if err != nil {
		return nil, newPrintError(CodeBeginDocumentFailed, "spooler rejected the document", err)
	}
	log = log.With().Uint32("job_id", jobID).Logger()

	first, last := ResolvePageRange(req.PageStart, req.PageEnd, pageCount)
	for page := first; page <= last; page++ {
		if err := ctx.Err(); err != nil {
			_ = dc.AbortDoc()
			return nil, newPrintError(CodeBeginPageFailed, fmt.Sprintf("submission cancelled before page %d", page), err)
		}
		if err := dc.StartPage(); err != nil {
			_ = dc.AbortDoc()
			return nil, newPrintError(CodeBeginPageFailed, fmt.Sprintf("cannot begin page %d", page), err)
		}
		if _, err := s.renderer.RenderPage(doc, page-1, dc); err != nil {
			_ = dc.EndPage()
			_ = dc.AbortDoc()
			return nil, newPrintError(CodeEndPageFailed, fmt.Sprintf("cannot render page %d", page), err)
		}
		if err := dc.EndPage(); err != nil {
			_ = dc.AbortDoc()
			return nil, newPrintError(CodeEndPageFailed, fmt.Sprintf("cannot end page %d", page), err)
		}
	}

	if err := dc.EndDoc(); err != nil {
		// The spooler already owns the job; any fallout reaches the caller
		// through the job monitor.
		log.Error().Err(err).Msg("end document failed")
	}

	total := last - first + 1
	log.Info().
		Int("pages", total).
		Int("copies", profile.Settings.Copies).
		Str("orientation", string(profile.Settings.Orientation)).
		Str("duplex", string(profile.Settings.Duplex)).
		Str("paper", profile.Settings.Paper.Name).
		Msg("document accepted by spooler")

	ack = &Ack{
		Status:       AckAccepted,
		JobID:        jobID,
		Device:       req.DeviceName,
		DocumentName: docName,
		TotalPages:   total,
		Profile:      profile,
	}

	if req.CorrelationID > 0 && s.watcher != nil {
		ack.Monitored = s.watcher.Watch(SpoolJob{
			JobID:         jobID,
			CorrelationID: req.CorrelationID,
			Device:        req.DeviceName,
			DocumentName:  docName,
			TotalPages:    total,
			CreatedAt:     time.Now(),
		})
	}

	return ack, nil
}
