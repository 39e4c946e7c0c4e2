package spooler

import (
	"fmt"
	"image"
	"image/draw"
	"os"
	"path/filepath"
	"sync"

	"github.com/orrn/pagespool/internal/core"
	"golang.org/x/image/tiff"
)

type deviceContext struct {
	spooler  *Spooler
	dev      *device
	settings core.Settings
	geometry core.Geometry

	mu      sync.Mutex
	closed  bool
	inDoc   bool
	jobID   uint32
	docName string
	pages   int
	surface *image.RGBA
}

func (c *deviceContext) Geometry() core.Geometry { return c.geometry }

func (c *deviceContext) StartDoc(name string) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrContextClosed
	}
	if c.inDoc {
		return 0, ErrDocumentActive
	}

	id := c.spooler.nextJob.Add(1)
	c.dev.addJob(id, name)
	_ = c.dev.withJob(id, func(j *job) { j.copies = c.settings.Copies })

	c.inDoc = true
	c.jobID = id
	c.docName = name
	c.pages = 0
	c.spooler.log.Debug().Str("device", c.dev.name).Uint32("job_id", id).Str("document", name).Msg("document started")
	return id, nil
}

func (c *deviceContext) StartPage() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrContextClosed
	}
	if !c.inDoc {
		return ErrNoDocument
	}
	if c.surface != nil {
		return ErrPageActive
	}
	r := image.Rect(0, 0, int(c.geometry.PrintableWidth), int(c.geometry.PrintableHeight))
	c.surface = image.NewRGBA(r)
	draw.Draw(c.surface, r, image.White, image.Point{}, draw.Src)
	return nil
}

func (c *deviceContext) Surface() draw.Image {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.surface == nil {
		return nil
	}
	return c.surface
}

func (c *deviceContext) EndPage() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.surface == nil {
		return ErrNoPage
	}
	page := c.surface
	c.surface = nil
	c.pages++

	if err := c.dev.withJob(c.jobID, func(j *job) { j.pages = c.pages }); err != nil {
		return fmt.Errorf("job %d vanished while spooling: %w", c.jobID, err)
	}
	if c.dev.outputDir != "" {
		if err := c.writePage(page, c.pages); err != nil {
			return err
		}
	}
	return nil
}

func (c *deviceContext) writePage(img image.Image, n int) error {
	if err := os.MkdirAll(c.dev.outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(c.dev.outputDir, fmt.Sprintf("%s-%d-p%03d.tiff", c.docName, c.jobID, n))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create page output: %w", err)
	}
	defer f.Close()

	if err := tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true}); err != nil {
		return fmt.Errorf("failed to encode page output: %w", err)
	}
	return f.Close()
}

func (c *deviceContext) EndDoc() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.inDoc {
		return ErrNoDocument
	}
	if c.surface != nil {
		return ErrPageActive
	}
	c.inDoc = false
	err := c.dev.withJob(c.jobID, func(j *job) {
		j.status &^= core.JobStatusSpooling
	})
	if err != nil {
		return fmt.Errorf("job %d vanished while spooling: %w", c.jobID, err)
	}
	c.dev.notify()
	return nil
}

// AbortDoc drops the document and its job from the queue.
func (c *deviceContext) AbortDoc() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.abortLocked()
}

func (c *deviceContext) abortLocked() error {
	if !c.inDoc {
		return ErrNoDocument
	}
	c.inDoc = false
	c.surface = nil
	c.dev.mu.Lock()
	c.dev.removeJobLocked(c.jobID)
	c.dev.mu.Unlock()
	c.spooler.log.Debug().Str("device", c.dev.name).Uint32("job_id", c.jobID).Msg("document aborted")
	return nil
}

// Close aborts an unfinished document.
func (c *deviceContext) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.inDoc {
		_ = c.abortLocked()
	}
	return nil
}
