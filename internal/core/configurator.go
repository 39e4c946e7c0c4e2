package core

import (
	"fmt"

	"github.com/rs/zerolog"
)

type Configurator struct {
	log zerolog.Logger
}

func NewConfigurator(log zerolog.Logger) *Configurator {
	return &Configurator{log: log}
}

// PrepareMode queries, allocates and fetches the device's default mode. All
// three failures are fatal and happen before any document is opened.
func (c *Configurator) PrepareMode(h PrinterHandle) (*DeviceProfile, error) {
	size, err := h.ModeSize()
	if err != nil {
		return nil, newPrintError(CodeDeviceModeQueryFailed, "failed to query device mode size", err)
	}
	if size <= 0 {
		return nil, newPrintError(CodeDeviceModeAllocFailed,
			fmt.Sprintf("cannot allocate device mode of size %d", size), nil)
	}

	def, err := h.DefaultMode()
	if err != nil {
		return nil, newPrintError(CodeDeviceModeFetchFailed, "failed to fetch default device mode", err)
	}

	return &DeviceProfile{
		Device:       h.Name(),
		Capabilities: h.Capabilities(),
		Settings:     def,
	}, nil
}

// ResolveOrientation turns "auto" into portrait or landscape from page 0.
func ResolveOrientation(o Orientation, doc Document) Orientation {
	if o != OrientationAuto {
		return o
	}
	if doc == nil || doc.PageCount() == 0 {
		return OrientationPortrait
	}
	p, err := doc.Page(0)
	if err != nil {
		return OrientationPortrait
	}
	if p.Landscape() {
		return OrientationLandscape
	}
	return OrientationPortrait
}

// DuplexFor couples the flip axis to the orientation. Portrait flips on the
// long edge, landscape on the short edge; anything else prints backsides
// upside down.
func DuplexFor(o Orientation) DuplexMode {
	if o == OrientationLandscape {
		return DuplexShortEdge
	}
	return DuplexLongEdge
}

// Build derives a complete profile from the default one and the request.
// Every capability clamp is recorded in Adjustments.
func (c *Configurator) Build(base *DeviceProfile, req PrintRequest, doc Document) *DeviceProfile {
	p := base.Clone()
	caps := p.Capabilities
	s := &p.Settings

	s.Orientation = ResolveOrientation(req.Orientation, doc)
	s.Quality = QualityHigh

	s.Copies = req.Copies
	if caps.MaxCopies > 0 && s.Copies > caps.MaxCopies {
		p.Adjustments = append(p.Adjustments,
			fmt.Sprintf("copies clamped from %d to %d", s.Copies, caps.MaxCopies))
		s.Copies = caps.MaxCopies
	}

	s.Color = req.Color
	if req.Color && !caps.Color {
		p.Adjustments = append(p.Adjustments, "color not supported, printing monochrome")
		s.Color = false
	}

	s.Duplex = DuplexSimplex
	if req.Duplex {
		if caps.Duplex {
			s.Duplex = DuplexFor(s.Orientation)
		} else {
			p.Adjustments = append(p.Adjustments, "duplex not supported, printing simplex")
		}
	}

	paper, known := LookupPaper(req.PaperSize)
	if !known && req.PaperSize != "" {
		p.Adjustments = append(p.Adjustments,
			fmt.Sprintf("unknown paper size %q, using %s", req.PaperSize, paper.Name))
	}
	if !caps.SupportsPaper(paper) {
		p.Adjustments = append(p.Adjustments,
			fmt.Sprintf("paper %s not supported by device, using %s", paper.Name, base.Settings.Paper.Name))
		paper = base.Settings.Paper
	}
	s.Paper = paper

	for _, adj := range p.Adjustments {
		c.log.Warn().Str("device", p.Device).Msg(adj)
	}

	return p
}

// Apply pushes the built profile to the device. Failure is not fatal: the
// returned profile is the one that must back the device context, which is the
// default profile when the apply did not take. After a successful apply the
// mode is read back and the device's version wins.
func (c *Configurator) Apply(h PrinterHandle, base, built *DeviceProfile) *DeviceProfile {
	if err := h.ApplyMode(built.Settings); err != nil {
		c.log.Warn().Err(err).Str("device", built.Device).
			Msg("failed to apply device mode, continuing with device defaults")
		return base
	}

	got, err := h.Mode()
	if err != nil {
		c.log.Debug().Err(err).Str("device", built.Device).Msg("failed to read back device mode")
		return built
	}
	if got == built.Settings {
		return built
	}
	p := built.Clone()
	p.Settings = got
	p.Adjustments = append(p.Adjustments, "device changed the applied mode")
	c.log.Warn().Str("device", p.Device).Msg("device changed the applied mode")
	return p
}

// Configure builds the profile for req and applies it to the device. base
// must come from PrepareMode on the same handle.
func (c *Configurator) Configure(h PrinterHandle, base *DeviceProfile, req PrintRequest, doc Document) *DeviceProfile {
	return c.Apply(h, base, c.Build(base, req, doc))
}
