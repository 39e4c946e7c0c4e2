package document

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"os"
	"strconv"
	"sync"

	"github.com/orrn/pagespool/internal/core"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog"
	"golang.org/x/image/math/f64"
)

var errClosed = errors.New("document closed")

// PDFSource opens PDF files with pdfcpu. Page boxes come from the page
// dimensions; page content is the largest raster image placed on the page,
// stretched over the page box. Vector content is not rasterized.
type PDFSource struct {
	Log zerolog.Logger
}

func pdfConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

func (s PDFSource) Open(path string) (core.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return OpenPDF(raw, s.Log)
}

// OpenPDF parses an in-memory PDF.
func OpenPDF(raw []byte, log zerolog.Logger) (*PDFDocument, error) {
	dims, err := api.PageDims(bytes.NewReader(raw), pdfConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to read pdf pages: %w", err)
	}

	pages := make([]core.Page, len(dims))
	for i, d := range dims {
		pages[i] = core.Page{Width: d.Width, Height: d.Height}
	}

	return &PDFDocument{
		raw:    raw,
		pages:  pages,
		images: make(map[int]image.Image),
		log:    log,
	}, nil
}

type PDFDocument struct {
	raw   []byte
	pages []core.Page
	log   zerolog.Logger

	mu     sync.Mutex
	images map[int]image.Image // page index -> largest image, nil when none
	closed bool
}

func (d *PDFDocument) PageCount() int { return len(d.pages) }

func (d *PDFDocument) Page(index int) (core.Page, error) {
	if index < 0 || index >= len(d.pages) {
		return core.Page{}, pageRangeError(index, len(d.pages))
	}
	return d.pages[index], nil
}

func (d *PDFDocument) Render(index int, dst draw.Image, m f64.Aff3) error {
	page, err := d.Page(index)
	if err != nil {
		return err
	}
	img, err := d.pageImage(index)
	if err != nil {
		return err
	}
	if img == nil {
		return nil
	}
	drawScaled(dst, img, page, m)
	return nil
}

func (d *PDFDocument) pageImage(index int) (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, errClosed
	}
	if img, ok := d.images[index]; ok {
		return img, nil
	}

	pageNr := strconv.Itoa(index + 1)
	extracted, err := api.ExtractImagesRaw(bytes.NewReader(d.raw), []string{pageNr}, pdfConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to extract images from page %s: %w", pageNr, err)
	}

	var best image.Image
	bestArea := 0
	for _, byObj := range extracted {
		for objNr, pi := range byObj {
			img, _, err := image.Decode(pi)
			if err != nil {
				d.log.Debug().Err(err).Int("page", index+1).Int("obj", objNr).Str("type", pi.FileType).
					Msg("skipping undecodable page image")
				continue
			}
			if a := img.Bounds().Dx() * img.Bounds().Dy(); a > bestArea {
				best, bestArea = img, a
			}
		}
	}
	d.images[index] = best
	return best, nil
}

func (d *PDFDocument) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.images = nil
	d.raw = nil
	return nil
}
