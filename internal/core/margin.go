package core

import (
	"fmt"
	"image"
	"image/draw"
	"math"
)

type Band int

const (
	BandNone Band = iota
	BandLeft
	BandTop
	BandRight
	BandBottom
)

func (b Band) String() string {
	switch b {
	case BandLeft:
		return "left"
	case BandTop:
		return "top"
	case BandRight:
		return "right"
	case BandBottom:
		return "bottom"
	}
	return "none"
}

// MarginBands are band widths in page points.
type MarginBands struct {
	Left   float64
	Top    float64
	Right  float64
	Bottom float64
}

// BandsFor converts the device's hardware margins into page space using the
// fit-to-physical scale, i.e. the page regions that would land on
// non-printable paper.
func BandsFor(page Page, g Geometry) MarginBands {
	scale := fitScale(page, g)
	if scale <= 0 {
		return MarginBands{}
	}
	m := g.Margins()
	return MarginBands{
		Left:   math.Max(m.Left, 0) / scale,
		Top:    math.Max(m.Top, 0) / scale,
		Right:  math.Max(m.Right, 0) / scale,
		Bottom: math.Max(m.Bottom, 0) / scale,
	}
}

const maxDetectPixels = 64 << 20

type MarginDetector struct {
	scale     float64
	tolerance uint8
}

// NewMarginDetector rasterizes at scale pixels per point. A pixel counts as
// white when every channel is within tolerance of 0xff.
func NewMarginDetector(scale float64, tolerance uint8) *MarginDetector {
	if scale <= 0 {
		scale = 1
	}
	return &MarginDetector{scale: scale, tolerance: tolerance}
}

// Detect reports whether any visible content falls inside bands.
func (d *MarginDetector) Detect(doc Document, index int, bands MarginBands) (bool, error) {
	band, err := d.DetectBand(doc, index, bands)
	return band != BandNone, err
}

// DetectBand renders the page once and scans left, top, right, then bottom,
// stopping at the first non-white pixel. It returns the band that intruded,
// or BandNone.
func (d *MarginDetector) DetectBand(doc Document, index int, bands MarginBands) (Band, error) {
	page, err := doc.Page(index)
	if err != nil {
		return BandNone, err
	}

	w := int(math.Ceil(page.Width * d.scale))
	h := int(math.Ceil(page.Height * d.scale))
	if w <= 0 || h <= 0 {
		return BandNone, nil
	}
	if w*h > maxDetectPixels {
		return BandNone, fmt.Errorf("page %d too large to rasterize (%dx%d)", index, w, h)
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	if err := doc.Render(index, img, Affine(d.scale, 0, 0)); err != nil {
		return BandNone, fmt.Errorf("failed to rasterize page %d: %w", index, err)
	}

	bl := d.pixels(bands.Left, w)
	bt := d.pixels(bands.Top, h)
	br := d.pixels(bands.Right, w)
	bb := d.pixels(bands.Bottom, h)

	switch {
	case d.dirty(img, image.Rect(0, 0, bl, h)):
		return BandLeft, nil
	case d.dirty(img, image.Rect(0, 0, w, bt)):
		return BandTop, nil
	case d.dirty(img, image.Rect(w-br, 0, w, h)):
		return BandRight, nil
	case d.dirty(img, image.Rect(0, h-bb, w, h)):
		return BandBottom, nil
	}
	return BandNone, nil
}

func (d *MarginDetector) pixels(pts float64, limit int) int {
	n := int(math.Ceil(pts * d.scale))
	if n < 0 {
		return 0
	}
	if n > limit {
		return limit
	}
	return n
}

func (d *MarginDetector) dirty(img *image.RGBA, r image.Rectangle) bool {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return false
	}
	floor := 0xff - d.tolerance
	for y := r.Min.Y; y < r.Max.Y; y++ {
		off := img.PixOffset(r.Min.X, y)
		for x := r.Min.X; x < r.Max.X; x++ {
			p := img.Pix[off : off+3 : off+3]
			if p[0] < floor || p[1] < floor || p[2] < floor {
				return true
			}
			off += 4
		}
	}
	return false
}
