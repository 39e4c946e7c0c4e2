package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/orrn/pagespool/internal/core"
	"github.com/orrn/pagespool/internal/spooler"
	"github.com/rs/zerolog"
)

// PrinterStates exposes the last state the printer monitor published.
type PrinterStates interface {
	State(device string) (core.PrinterState, bool)
}

type PrinterResponse struct {
	Name       string     `json:"name"`
	Online     bool       `json:"online"`
	Status     []string   `json:"status"`
	QueuedJobs int        `json:"queued_jobs"`
	DPI        int        `json:"dpi"`
	Color      bool       `json:"color"`
	Duplex     bool       `json:"duplex"`
	MaxCopies  int        `json:"max_copies"`
	PaperSizes []string   `json:"paper_sizes"`
	ChangedAt  *time.Time `json:"changed_at,omitempty"`
}

type PrinterDetailResponse struct {
	PrinterResponse
	Jobs []SpoolJobResponse `json:"jobs"`
}

type SpoolJobResponse struct {
	JobID        uint32   `json:"job_id"`
	Document     string   `json:"document"`
	Status       []string `json:"status"`
	PagesPrinted int      `json:"pages_printed"`
	TotalPages   int      `json:"total_pages"`
}

type SetDeviceStateRequest struct {
	Online   *bool `json:"online" binding:"required"`
	PaperOut *bool `json:"paper_out"`
	Paused   *bool `json:"paused"`
}

type PrinterHandler struct {
	spooler *spooler.Spooler
	states  PrinterStates
	log     zerolog.Logger
}

func NewPrinterHandler(sp *spooler.Spooler, states PrinterStates, log zerolog.Logger) *PrinterHandler {
	return &PrinterHandler{
		spooler: sp,
		states:  states,
		log:     log,
	}
}

func (h *PrinterHandler) printerToResponse(st spooler.Status) PrinterResponse {
	resp := PrinterResponse{
		Name:       st.Name,
		Online:     st.Online,
		Status:     printerStatusNames(st.StatusBits),
		QueuedJobs: st.QueuedJobs,
		DPI:        st.Capabilities.DPI,
		Color:      st.Capabilities.Color,
		Duplex:     st.Capabilities.Duplex,
		MaxCopies:  st.Capabilities.MaxCopies,
		PaperSizes: make([]string, 0, len(st.Capabilities.PaperSizes)),
	}
	for _, p := range st.Capabilities.PaperSizes {
		resp.PaperSizes = append(resp.PaperSizes, p.Name)
	}
	if h.states != nil {
		if ps, ok := h.states.State(st.Name); ok {
			changed := ps.ChangedAt
			resp.ChangedAt = &changed
		}
	}
	return resp
}

func (h *PrinterHandler) ListPrinters(c *gin.Context) {
	names := h.spooler.Devices()
	printers := make([]PrinterResponse, 0, len(names))
	for _, name := range names {
		st, err := h.spooler.Status(name)
		if err != nil {
			h.log.Warn().Err(err).Str("device", name).Msg("failed to read printer status")
			continue
		}
		printers = append(printers, h.printerToResponse(st))
	}
	c.JSON(http.StatusOK, gin.H{"printers": printers})
}

func (h *PrinterHandler) GetPrinter(c *gin.Context) {
	name := c.Param("name")
	st, err := h.spooler.Status(name)
	if err != nil {
		h.writeSpoolerError(c, err)
		return
	}

	jobs, err := h.spooler.Jobs(name)
	if err != nil {
		h.writeSpoolerError(c, err)
		return
	}

	resp := PrinterDetailResponse{
		PrinterResponse: h.printerToResponse(st),
		Jobs:            make([]SpoolJobResponse, 0, len(jobs)),
	}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, SpoolJobResponse{
			JobID:        j.JobID,
			Document:     j.Document,
			Status:       jobStatusNames(j.Status),
			PagesPrinted: j.PagesPrinted,
			TotalPages:   j.TotalPages,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// SetDeviceState drives the virtual device's operator panel.
func (h *PrinterHandler) SetDeviceState(c *gin.Context) {
	name := c.Param("name")

	var req SetDeviceStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	if err := h.spooler.SetOnline(name, *req.Online); err != nil {
		h.writeSpoolerError(c, err)
		return
	}
	if req.PaperOut != nil {
		if err := h.spooler.SetPaperOut(name, *req.PaperOut); err != nil {
			h.writeSpoolerError(c, err)
			return
		}
	}
	if req.Paused != nil {
		if err := h.spooler.SetPaused(name, *req.Paused); err != nil {
			h.writeSpoolerError(c, err)
			return
		}
	}

	st, err := h.spooler.Status(name)
	if err != nil {
		h.writeSpoolerError(c, err)
		return
	}
	h.log.Info().Str("device", name).Bool("online", *req.Online).Msg("device state changed")
	c.JSON(http.StatusOK, h.printerToResponse(st))
}

func (h *PrinterHandler) writeSpoolerError(c *gin.Context, err error) {
	if errors.Is(err, core.ErrDeviceNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   string(core.CodeDeviceNotFound),
			Message: "Printer not found",
		})
		return
	}
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "spooler_error",
		Message: err.Error(),
	})
}

var printerStatusLabels = []struct {
	bit  core.PrinterStatusBits
	name string
}{
	{core.PrinterStatusPaused, "paused"},
	{core.PrinterStatusError, "error"},
	{core.PrinterStatusPaperJam, "paper_jam"},
	{core.PrinterStatusPaperOut, "paper_out"},
	{core.PrinterStatusOffline, "offline"},
	{core.PrinterStatusBusy, "busy"},
	{core.PrinterStatusPrinting, "printing"},
	{core.PrinterStatusNotAvailable, "not_available"},
}

func printerStatusNames(bits core.PrinterStatusBits) []string {
	names := []string{}
	for _, l := range printerStatusLabels {
		if bits.Has(l.bit) {
			names = append(names, l.name)
		}
	}
	if len(names) == 0 {
		names = append(names, "ready")
	}
	return names
}

var jobStatusLabels = []struct {
	bit  core.JobStatusBits
	name string
}{
	{core.JobStatusPaused, "paused"},
	{core.JobStatusError, "error"},
	{core.JobStatusDeleting, "deleting"},
	{core.JobStatusSpooling, "spooling"},
	{core.JobStatusPrinting, "printing"},
	{core.JobStatusOffline, "offline"},
	{core.JobStatusPaperOut, "paper_out"},
	{core.JobStatusPrinted, "printed"},
	{core.JobStatusDeleted, "deleted"},
	{core.JobStatusBlocked, "blocked"},
	{core.JobStatusUserIntervention, "user_intervention"},
	{core.JobStatusRestart, "restart"},
	{core.JobStatusComplete, "complete"},
}

func jobStatusNames(bits core.JobStatusBits) []string {
	names := []string{}
	for _, l := range jobStatusLabels {
		if bits.Has(l.bit) {
			names = append(names, l.name)
		}
	}
	if len(names) == 0 {
		names = append(names, "queued")
	}
	return names
}
