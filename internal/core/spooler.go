package core

import (
	"context"
	"image/draw"
)

type JobStatusBits uint32

const (
	JobStatusPaused           JobStatusBits = 0x0001
	JobStatusError            JobStatusBits = 0x0002
	JobStatusDeleting         JobStatusBits = 0x0004
	JobStatusSpooling         JobStatusBits = 0x0008
	JobStatusPrinting         JobStatusBits = 0x0010
	JobStatusOffline          JobStatusBits = 0x0020
	JobStatusPaperOut         JobStatusBits = 0x0040
	JobStatusPrinted          JobStatusBits = 0x0080
	JobStatusDeleted          JobStatusBits = 0x0100
	JobStatusBlocked          JobStatusBits = 0x0200
	JobStatusUserIntervention JobStatusBits = 0x0400
	JobStatusRestart          JobStatusBits = 0x0800
	JobStatusComplete         JobStatusBits = 0x1000
)

func (b JobStatusBits) Has(mask JobStatusBits) bool {
	return b&mask != 0
}

type PrinterStatusBits uint32

const (
	PrinterStatusPaused       PrinterStatusBits = 0x00000001
	PrinterStatusError        PrinterStatusBits = 0x00000002
	PrinterStatusPaperJam     PrinterStatusBits = 0x00000008
	PrinterStatusPaperOut     PrinterStatusBits = 0x00000010
	PrinterStatusOffline      PrinterStatusBits = 0x00000080
	PrinterStatusBusy         PrinterStatusBits = 0x00000200
	PrinterStatusPrinting     PrinterStatusBits = 0x00000400
	PrinterStatusNotAvailable PrinterStatusBits = 0x00001000
)

func (b PrinterStatusBits) Has(mask PrinterStatusBits) bool {
	return b&mask != 0
}

type JobInfo struct {
	JobID        uint32
	Status       JobStatusBits
	PagesPrinted int
	TotalPages   int
	Document     string
}

type PrinterInfo struct {
	Name        string
	Status      PrinterStatusBits
	WorkOffline bool
}

// Spooler is the print spooler interface consumed by core. Every Open returns
// an independent handle; concurrent opens of one device are allowed.
type Spooler interface {
	OpenPrinter(name string) (PrinterHandle, error)
	Devices() []string
}

type PrinterHandle interface {
	Name() string
	Capabilities() Capabilities

	// ModeSize reports the size of the device mode structure.
	ModeSize() (int, error)
	DefaultMode() (Settings, error)
	ApplyMode(s Settings) error
	// Mode returns the mode last applied through this handle, or the
	// device defaults when none was.
	Mode() (Settings, error)

	CreateContext(p *DeviceProfile) (DeviceContext, error)

	// GetJob returns ErrJobNotFound once the job has left the queue.
	GetJob(id uint32) (JobInfo, error)
	CancelJob(id uint32) error

	Info() (PrinterInfo, error)
	// WaitForChange blocks until the printer reports a change. It returns
	// ErrHandleClosed after Close.
	WaitForChange(ctx context.Context) error

	Close() error
}

// DeviceContext is a paintable surface bound to one device and one profile.
type DeviceContext interface {
	Geometry() Geometry
	StartDoc(name string) (uint32, error)
	StartPage() error
	// Surface is valid between StartPage and EndPage. Its origin is the
	// printable area origin.
	Surface() draw.Image
	EndPage() error
	EndDoc() error
	AbortDoc() error
	Close() error
}
