package core

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 8.5x11in at 100 dpi with 0.25in left/right and 0.2in top/bottom margins.
var letterGeometry = Geometry{
	PhysicalWidth:   850,
	PhysicalHeight:  1100,
	OffsetX:         25,
	OffsetY:         20,
	PrintableWidth:  800,
	PrintableHeight: 1060,
	DPI:             100,
}

var letterPage = Page{Width: 612, Height: 792}

func assertWithinSheet(t *testing.T, pl Placement, page Page, g Geometry) {
	t.Helper()
	x0, y0, x1, y1 := pl.PhysicalBounds(page, g)
	const eps = 1e-6
	assert.GreaterOrEqual(t, x0, -eps)
	assert.GreaterOrEqual(t, y0, -eps)
	assert.LessOrEqual(t, x1, g.PhysicalWidth+eps)
	assert.LessOrEqual(t, y1, g.PhysicalHeight+eps)
}

func TestPlanPageFitPhysical(t *testing.T) {
	pl := PlanPage(letterPage, letterGeometry, false)
	assert.Equal(t, StrategyFitPhysical, pl.Strategy)
	assert.InDelta(t, 850.0/612.0, pl.Scale, 1e-9)
	assert.Equal(t, -25.0, pl.TX)
	assert.Equal(t, -20.0, pl.TY)
	assertWithinSheet(t, pl, letterPage, letterGeometry)
}

func TestPlanPageMarginSafeWhenContentIntrudes(t *testing.T) {
	pl := PlanPage(letterPage, letterGeometry, true)
	assert.Equal(t, StrategyMarginSafe, pl.Strategy)

	// symmetric half-extents: 425-25=400, 550-20=530
	want := min(800.0/612.0, 1060.0/792.0)
	assert.InDelta(t, want, pl.Scale, 1e-9)
	assertWithinSheet(t, pl, letterPage, letterGeometry)

	// centered on the sheet and clear of every margin
	x0, y0, x1, y1 := pl.PhysicalBounds(letterPage, letterGeometry)
	assert.InDelta(t, 425.0, (x0+x1)/2, 1e-9)
	assert.InDelta(t, 550.0, (y0+y1)/2, 1e-9)
	assert.GreaterOrEqual(t, x0, 25.0-1e-9)
	assert.GreaterOrEqual(t, y0, 20.0-1e-9)
	assert.LessOrEqual(t, x1, 825.0+1e-9)
	assert.LessOrEqual(t, y1, 1080.0+1e-9)
}

func TestPlanPageAsymmetricMargins(t *testing.T) {
	g := Geometry{PhysicalWidth: 1000, PhysicalHeight: 1000, OffsetX: 100, OffsetY: 0, PrintableWidth: 850, PrintableHeight: 1000}
	page := Page{Width: 500, Height: 500}
	pl := PlanPage(page, g, true)
	require.Equal(t, StrategyMarginSafe, pl.Strategy)
	// halfW = min(500-100, 950-500) = 400
	assert.InDelta(t, 1.6, pl.Scale, 1e-9)
	x0, _, x1, _ := pl.PhysicalBounds(page, g)
	assert.InDelta(t, 100.0, x0, 1e-9)
	assert.InDelta(t, 900.0, x1, 1e-9)
}

func TestPlanPageIgnoresIntrusionWithoutMargins(t *testing.T) {
	g := Geometry{PhysicalWidth: 600, PhysicalHeight: 800, PrintableWidth: 600, PrintableHeight: 800}
	pl := PlanPage(Page{Width: 300, Height: 400}, g, true)
	assert.Equal(t, StrategyFitPhysical, pl.Strategy)
	assert.Equal(t, 2.0, pl.Scale)
}

func TestPlanPageDegenerateExtents(t *testing.T) {
	pl := PlanPage(Page{}, letterGeometry, false)
	assert.Equal(t, 850.0, pl.Scale)
	pl = PlanPage(Page{Width: 0, Height: 792}, letterGeometry, true)
	assert.Greater(t, pl.Scale, 0.0)
}

func TestPlanPageUsesOneScaleForBothAxes(t *testing.T) {
	wide := Page{Width: 1000, Height: 100}
	pl := PlanPage(wide, letterGeometry, false)
	assert.InDelta(t, 0.85, pl.Scale, 1e-9)
	x0, y0, x1, y1 := pl.PhysicalBounds(wide, letterGeometry)
	assert.InDelta(t, (x1-x0)/(y1-y0), 10.0, 1e-9)
}

func TestMarginDetector(t *testing.T) {
	page := Page{Width: 100, Height: 100}
	bands := MarginBands{Left: 5, Top: 5, Right: 5, Bottom: 5}
	d := NewMarginDetector(1, 0)

	clean := newFakeDoc(page)
	clean.ink[0] = []inkRect{{20, 20, 80, 80}}
	band, err := d.DetectBand(clean, 0, bands)
	require.NoError(t, err)
	assert.Equal(t, BandNone, band)

	tests := []struct {
		rect inkRect
		want Band
	}{
		{inkRect{1, 40, 3, 60}, BandLeft},
		{inkRect{40, 1, 60, 3}, BandTop},
		{inkRect{97, 40, 99, 60}, BandRight},
		{inkRect{40, 97, 60, 99}, BandBottom},
		// left wins over bottom
		{inkRect{0, 97, 100, 100}, BandLeft},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			doc := newFakeDoc(page)
			doc.ink[0] = []inkRect{tt.rect}
			band, err := d.DetectBand(doc, 0, bands)
			require.NoError(t, err)
			assert.Equal(t, tt.want, band)

			intrudes, err := d.Detect(doc, 0, bands)
			require.NoError(t, err)
			assert.True(t, intrudes)
		})
	}
}

func TestMarginDetectorRenderError(t *testing.T) {
	doc := newFakeDoc(Page{Width: 10, Height: 10})
	doc.renderErr = errInjected
	_, err := NewMarginDetector(1, 0).Detect(doc, 0, MarginBands{Left: 1})
	assert.ErrorIs(t, err, errInjected)
}

func TestBandsForScalesMarginsIntoPageSpace(t *testing.T) {
	b := BandsFor(letterPage, letterGeometry)
	scale := 850.0 / 612.0
	assert.InDelta(t, 25/scale, b.Left, 1e-9)
	assert.InDelta(t, 20/scale, b.Top, 1e-9)
	assert.InDelta(t, 25/scale, b.Right, 1e-9)
	assert.InDelta(t, 20/scale, b.Bottom, 1e-9)
}

func TestRenderPageSelectsStrategyFromContent(t *testing.T) {
	p := newFakePrinter("P")
	p.geometry = letterGeometry
	h, err := newFakeSpooler(p).OpenPrinter("P")
	require.NoError(t, err)
	defer h.Close()
	dcIface, err := h.CreateContext(&DeviceProfile{})
	require.NoError(t, err)
	dc := dcIface.(*fakeContext)

	r := NewRenderer(NewMarginDetector(1, 0), zerolog.Nop())

	doc := newFakeDoc(letterPage, letterPage)
	doc.ink[0] = []inkRect{{100, 100, 500, 600}}
	doc.ink[1] = []inkRect{{0, 0, 612, 10}}

	require.NoError(t, dc.StartPage())
	pl, err := r.RenderPage(doc, 0, dc)
	require.NoError(t, err)
	assert.Equal(t, StrategyFitPhysical, pl.Strategy)
	require.NoError(t, dc.EndPage())

	require.NoError(t, dc.StartPage())
	pl, err = r.RenderPage(doc, 1, dc)
	require.NoError(t, err)
	assert.Equal(t, StrategyMarginSafe, pl.Strategy)

	// the top strip now sits inside the printable area
	surface := dc.surface
	x, y := Apply(pl.Transform(), 306, 5)
	assert.Equal(t, uint8(0), surface.RGBAAt(int(x), int(y)).R)
	require.NoError(t, dc.EndPage())
}

func TestRenderPageWithoutSurface(t *testing.T) {
	p := newFakePrinter("P")
	h, err := newFakeSpooler(p).OpenPrinter("P")
	require.NoError(t, err)
	defer h.Close()
	dc, err := h.CreateContext(&DeviceProfile{})
	require.NoError(t, err)

	_, err = NewRenderer(nil, zerolog.Nop()).RenderPage(newFakeDoc(letterPage), 0, dc)
	assert.ErrorIs(t, err, errNoSurface)
}
