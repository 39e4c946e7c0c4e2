// Package document provides the document sources the print pipeline reads
// pages from.
package document

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/orrn/pagespool/internal/core"
	"github.com/rs/zerolog"
)

// PointsPerInch is the page space unit.
const PointsPerInch = 72.0

// Mux routes Open by file extension.
type Mux struct {
	sources map[string]core.DocumentSource
}

func NewMux() *Mux {
	return &Mux{sources: make(map[string]core.DocumentSource)}
}

// Handle registers src for each extension, given with or without the dot.
func (m *Mux) Handle(src core.DocumentSource, exts ...string) {
	for _, ext := range exts {
		m.sources[normalizeExt(ext)] = src
	}
}

func (m *Mux) Open(path string) (core.Document, error) {
	ext := normalizeExt(filepath.Ext(path))
	src, ok := m.sources[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrDocumentFormat, ext)
	}
	return src.Open(path)
}

func (m *Mux) Extensions() []string {
	out := make([]string, 0, len(m.sources))
	for ext := range m.sources {
		out = append(out, ext)
	}
	return out
}

func normalizeExt(ext string) string {
	return "." + strings.TrimPrefix(strings.ToLower(ext), ".")
}

// NewDefaultSource handles PDF and the raster formats the image decoders
// are registered for.
func NewDefaultSource(imageDPI float64, log zerolog.Logger) *Mux {
	m := NewMux()
	m.Handle(PDFSource{Log: log}, "pdf")
	m.Handle(ImageSource{DPI: imageDPI}, "png", "jpg", "jpeg", "gif", "tif", "tiff", "bmp", "webp")
	return m
}
