package core

import (
	"fmt"
	"strings"
	"time"
)

type Orientation string

const (
	OrientationPortrait  Orientation = "portrait"
	OrientationLandscape Orientation = "landscape"
	OrientationAuto      Orientation = "auto"
)

func ParseOrientation(s string) (Orientation, error) {
	switch Orientation(strings.ToLower(strings.TrimSpace(s))) {
	case OrientationPortrait:
		return OrientationPortrait, nil
	case OrientationLandscape:
		return OrientationLandscape, nil
	case OrientationAuto, "":
		return OrientationAuto, nil
	}
	return "", fmt.Errorf("unknown orientation %q", s)
}

type DuplexMode string

const (
	DuplexSimplex   DuplexMode = "simplex"
	DuplexLongEdge  DuplexMode = "long_edge"
	DuplexShortEdge DuplexMode = "short_edge"
)

type Quality string

const (
	QualityDraft  Quality = "draft"
	QualityNormal Quality = "normal"
	QualityHigh   Quality = "high"
)

// PrintRequest is consumed once by the Submitter and never persisted by core.
type PrintRequest struct {
	FilePath      string
	DeviceName    string
	Color         bool
	Duplex        bool
	Copies        int
	Orientation   Orientation
	PaperSize     string
	PageStart     int
	PageEnd       int
	CorrelationID int64
}

func (r *PrintRequest) Validate() error {
	if strings.TrimSpace(r.FilePath) == "" {
		return newPrintError(CodeInvalidArguments, "file path is required", nil)
	}
	if strings.TrimSpace(r.DeviceName) == "" {
		return newPrintError(CodeInvalidArguments, "device name is required", nil)
	}
	if r.Copies < 1 {
		return newPrintError(CodeInvalidArguments, fmt.Sprintf("copies must be at least 1, got %d", r.Copies), nil)
	}
	if r.Orientation == "" {
		r.Orientation = OrientationAuto
	}
	if _, err := ParseOrientation(string(r.Orientation)); err != nil {
		return newPrintError(CodeInvalidArguments, err.Error(), nil)
	}
	return nil
}

// Page dimensions are in points (1/72 inch).
type Page struct {
	Width  float64
	Height float64
}

func (p Page) Landscape() bool {
	return p.Width > p.Height
}

type Capabilities struct {
	PaperSizes []PaperSize
	DPI        int
	Color      bool
	Duplex     bool
	MaxCopies  int
}

func (c Capabilities) SupportsPaper(p PaperSize) bool {
	if len(c.PaperSizes) == 0 {
		return true
	}
	for _, s := range c.PaperSizes {
		if s.Code == p.Code {
			return true
		}
	}
	return false
}

type Settings struct {
	Copies      int
	Duplex      DuplexMode
	Color       bool
	Orientation Orientation
	Paper       PaperSize
	Quality     Quality
}

// DeviceProfile is a complete device-mode snapshot. A device context is only
// ever created from a fully built profile.
type DeviceProfile struct {
	Device       string
	Capabilities Capabilities
	Settings     Settings
	Adjustments  []string
}

func (p *DeviceProfile) Clone() *DeviceProfile {
	c := *p
	c.Capabilities.PaperSizes = append([]PaperSize(nil), p.Capabilities.PaperSizes...)
	c.Adjustments = append([]string(nil), p.Adjustments...)
	return &c
}

// Geometry describes a device context in device pixels. The drawing surface
// origin is the origin of the printable area, which sits OffsetX/OffsetY
// pixels inside the physical sheet.
type Geometry struct {
	PhysicalWidth   float64
	PhysicalHeight  float64
	OffsetX         float64
	OffsetY         float64
	PrintableWidth  float64
	PrintableHeight float64
	DPI             int
}

type Margins struct {
	Left   float64
	Top    float64
	Right  float64
	Bottom float64
}

func (m Margins) AnyNonZero() bool {
	return m.Left != 0 || m.Top != 0 || m.Right != 0 || m.Bottom != 0
}

func (g Geometry) Margins() Margins {
	return Margins{
		Left:   g.OffsetX,
		Top:    g.OffsetY,
		Right:  g.PhysicalWidth - g.PrintableWidth - g.OffsetX,
		Bottom: g.PhysicalHeight - g.PrintableHeight - g.OffsetY,
	}
}

type SpoolJob struct {
	JobID         uint32
	CorrelationID int64
	Device        string
	DocumentName  string
	TotalPages    int
	CreatedAt     time.Time
}

type JobObservation struct {
	Present      bool
	Status       JobStatusBits
	PagesPrinted int
	At           time.Time
}

type OutcomeKind string

const (
	OutcomeSuccess  OutcomeKind = "success"
	OutcomeFailed   OutcomeKind = "failed"
	OutcomeTimedOut OutcomeKind = "timed_out"
)

type JobOutcome struct {
	Kind         OutcomeKind
	Message      string
	PagesPrinted int
}

func (o JobOutcome) Succeeded() bool {
	return o.Kind == OutcomeSuccess
}

type PrinterState struct {
	Device    string
	Online    bool
	ChangedAt time.Time
}

type Ack struct {
	Status       string
	JobID        uint32
	Device       string
	DocumentName string
	TotalPages   int
	Monitored    bool
	Profile      *DeviceProfile
}

const AckAccepted = "accepted"
