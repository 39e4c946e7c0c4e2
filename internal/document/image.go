package document

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/orrn/pagespool/internal/core"
	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ImageSource loads single raster images as one-page documents.
type ImageSource struct {
	// DPI is the resolution assumed for image pixels when sizing the page.
	DPI float64
}

func (s ImageSource) Open(path string) (core.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return newImageDocument(img, format, s.DPI), nil
}

// ImageDocument is a one-page document backed by a decoded raster.
type ImageDocument struct {
	img    image.Image
	format string
	page   core.Page
}

func newImageDocument(img image.Image, format string, dpi float64) *ImageDocument {
	if dpi <= 0 {
		dpi = PointsPerInch
	}
	b := img.Bounds()
	return &ImageDocument{
		img:    img,
		format: format,
		page: core.Page{
			Width:  float64(b.Dx()) * PointsPerInch / dpi,
			Height: float64(b.Dy()) * PointsPerInch / dpi,
		},
	}
}

func (d *ImageDocument) Format() string { return d.format }

func (d *ImageDocument) PageCount() int { return 1 }

func (d *ImageDocument) Page(index int) (core.Page, error) {
	if index != 0 {
		return core.Page{}, pageRangeError(index, 1)
	}
	return d.page, nil
}

func (d *ImageDocument) Render(index int, dst draw.Image, m f64.Aff3) error {
	if index != 0 {
		return pageRangeError(index, 1)
	}
	drawScaled(dst, d.img, d.page, m)
	return nil
}

func (d *ImageDocument) Close() error { return nil }

// drawScaled stretches src over the page box and maps it through m.
func drawScaled(dst draw.Image, src image.Image, page core.Page, m f64.Aff3) {
	b := src.Bounds()
	if b.Empty() || page.Width <= 0 || page.Height <= 0 {
		return
	}
	kx := page.Width / float64(b.Dx())
	ky := page.Height / float64(b.Dy())

	// src pixel -> page points -> dst pixels
	s2d := f64.Aff3{
		m[0] * kx, m[1] * ky, m[2] - (m[0]*kx*float64(b.Min.X) + m[1]*ky*float64(b.Min.Y)),
		m[3] * kx, m[4] * ky, m[5] - (m[3]*kx*float64(b.Min.X) + m[4]*ky*float64(b.Min.Y)),
	}
	xdraw.BiLinear.Transform(dst, s2d, src, b, xdraw.Over, nil)
}

func pageRangeError(index, count int) error {
	return fmt.Errorf("page index %d out of range [0,%d)", index, count)
}
