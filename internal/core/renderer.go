package core

import (
	"errors"
	"fmt"
	"math"

	"github.com/orrn/pagespool/internal/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/image/math/f64"
)

type Strategy string

const (
	StrategyFitPhysical Strategy = "fit_physical"
	StrategyMarginSafe  Strategy = "margin_safe"
)

// Placement maps page points onto the device surface: surface = Scale*page + (TX, TY).
// The same Scale applies to both axes.
type Placement struct {
	Strategy Strategy
	Scale    float64
	TX       float64
	TY       float64
}

func (p Placement) Transform() f64.Aff3 {
	return Affine(p.Scale, p.TX, p.TY)
}

// PhysicalBounds returns the rendered page box in physical sheet coordinates.
func (p Placement) PhysicalBounds(page Page, g Geometry) (x0, y0, x1, y1 float64) {
	x0 = p.TX + g.OffsetX
	y0 = p.TY + g.OffsetY
	return x0, y0, x0 + page.Width*p.Scale, y0 + page.Height*p.Scale
}

func pageExtent(v float64) float64 {
	if v > 0 {
		return v
	}
	return 1
}

func fitScale(page Page, g Geometry) float64 {
	return math.Min(g.PhysicalWidth/pageExtent(page.Width), g.PhysicalHeight/pageExtent(page.Height))
}

// PlanPage selects the margin-safe strategy iff content intrudes into a
// hardware margin and at least one margin is nonzero.
func PlanPage(page Page, g Geometry, intrudes bool) Placement {
	m := g.Margins()
	if intrudes && m.AnyNonZero() {
		if p, ok := marginSafe(page, g, m); ok {
			return p
		}
	}
	return Placement{
		Strategy: StrategyFitPhysical,
		Scale:    fitScale(page, g),
		TX:       -g.OffsetX,
		TY:       -g.OffsetY,
	}
}

// marginSafe centers the page inside the largest rectangle symmetric about
// the sheet center that avoids every hardware margin.
func marginSafe(page Page, g Geometry, m Margins) (Placement, bool) {
	cx := g.PhysicalWidth / 2
	cy := g.PhysicalHeight / 2

	halfW := math.Min(cx-m.Left, (g.PhysicalWidth-m.Right)-cx)
	halfH := math.Min(cy-m.Top, (g.PhysicalHeight-m.Bottom)-cy)
	if halfW <= 0 || halfH <= 0 {
		return Placement{}, false
	}

	w := pageExtent(page.Width)
	h := pageExtent(page.Height)
	scale := math.Min(2*halfW/w, 2*halfH/h)

	return Placement{
		Strategy: StrategyMarginSafe,
		Scale:    scale,
		TX:       cx - w*scale/2 - g.OffsetX,
		TY:       cy - h*scale/2 - g.OffsetY,
	}, true
}

var errNoSurface = errors.New("device context has no page surface")

type Renderer struct {
	detector *MarginDetector
	log      zerolog.Logger
}

func NewRenderer(detector *MarginDetector, log zerolog.Logger) *Renderer {
	return &Renderer{detector: detector, log: log}
}

// RenderPage paints one page onto the context's current page surface.
func (r *Renderer) RenderPage(doc Document, index int, dc DeviceContext) (Placement, error) {
	page, err := doc.Page(index)
	if err != nil {
		return Placement{}, fmt.Errorf("failed to read page %d: %w", index, err)
	}

	g := dc.Geometry()
	intrudes := false
	if r.detector != nil && g.Margins().AnyNonZero() {
		band, err := r.detector.DetectBand(doc, index, BandsFor(page, g))
		if err != nil {
			r.log.Warn().Err(err).Int("page", index+1).Msg("margin detection failed, assuming no intrusion")
		} else if band != BandNone {
			intrudes = true
			r.log.Debug().Int("page", index+1).Str("band", band.String()).Msg("content intrudes into hardware margin")
		}
	}

	pl := PlanPage(page, g, intrudes)

	surface := dc.Surface()
	if surface == nil {
		return pl, errNoSurface
	}
	if err := doc.Render(index, surface, pl.Transform()); err != nil {
		return pl, fmt.Errorf("failed to render page %d: %w", index, err)
	}

	metrics.RecordPage(string(pl.Strategy))
	r.log.Debug().
		Int("page", index+1).
		Str("strategy", string(pl.Strategy)).
		Float64("scale", pl.Scale).
		Msg("page rendered")

	return pl, nil
}
