package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/orrn/pagespool/internal/core"
	"github.com/orrn/pagespool/internal/db"
	"github.com/rs/zerolog"
)

type JobSubmitter interface {
	Submit(ctx context.Context, req core.PrintRequest) (*core.Ack, error)
}

type CreateJobRequest struct {
	FilePath      string `json:"file_path" binding:"required"`
	DeviceName    string `json:"device_name" binding:"required"`
	Color         bool   `json:"color"`
	DoubleSided   bool   `json:"double_sided"`
	Copies        *int   `json:"copies"`
	Orientation   string `json:"orientation"`
	PaperSize     string `json:"paper_size"`
	PageStart     int    `json:"page_start"`
	PageEnd       int    `json:"page_end"`
	CorrelationID int64  `json:"correlation_id"`
}

func (r *CreateJobRequest) toPrintRequest() core.PrintRequest {
	copies := 1
	if r.Copies != nil {
		copies = *r.Copies
	}
	return core.PrintRequest{
		FilePath:      r.FilePath,
		DeviceName:    r.DeviceName,
		Color:         r.Color,
		Duplex:        r.DoubleSided,
		Copies:        copies,
		Orientation:   core.Orientation(r.Orientation),
		PaperSize:     r.PaperSize,
		PageStart:     r.PageStart,
		PageEnd:       r.PageEnd,
		CorrelationID: r.CorrelationID,
	}
}

type AcceptedResponse struct {
	Status       string `json:"status"`
	ID           int64  `json:"id,omitempty"`
	JobID        uint32 `json:"job_id"`
	Device       string `json:"device"`
	DocumentName string `json:"document_name"`
	TotalPages   int    `json:"total_pages"`
	Monitored    bool   `json:"monitored"`
}

type ListJobsQuery struct {
	Device        string `form:"device"`
	Status        string `form:"status"`
	CorrelationID int64  `form:"correlation_id"`
	FromDate      string `form:"from_date"`
	ToDate        string `form:"to_date"`
	Limit         int    `form:"limit" binding:"max=100"`
	Offset        int    `form:"offset"`
	SortDir       string `form:"sort_dir"`
}

type ListJobsResponse struct {
	Jobs   []*db.PrintJob `json:"jobs"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

type JobHandler struct {
	submitter JobSubmitter
	spooler   core.Spooler
	store     *db.Store
	log       zerolog.Logger
}

func NewJobHandler(submitter JobSubmitter, spooler core.Spooler, store *db.Store, log zerolog.Logger) *JobHandler {
	return &JobHandler{
		submitter: submitter,
		spooler:   spooler,
		store:     store,
		log:       log,
	}
}

func (h *JobHandler) CreateJob(c *gin.Context) {
	var body CreateJobRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   string(core.CodeInvalidArguments),
			Message: err.Error(),
		})
		return
	}

	req := body.toPrintRequest()
	ctx := c.Request.Context()

	ack, err := h.submitter.Submit(ctx, req)
	if err != nil {
		if _, dbErr := h.store.RecordRejected(ctx, db.RejectedJob(req, err)); dbErr != nil {
			h.log.Error().Err(dbErr).Int64("correlation_id", req.CorrelationID).Msg("failed to record rejected job")
		}
		writePrintError(c, err)
		return
	}

	id, err := h.store.RecordAccepted(ctx, db.AcceptedJob(req, ack))
	if err != nil {
		// The spooler already owns the job; the outcome row will still be
		// written when the monitor reports.
		h.log.Error().Err(err).Uint32("job_id", ack.JobID).Msg("failed to record accepted job")
	}

	c.JSON(http.StatusAccepted, AcceptedResponse{
		Status:       ack.Status,
		ID:           id,
		JobID:        ack.JobID,
		Device:       ack.Device,
		DocumentName: ack.DocumentName,
		TotalPages:   ack.TotalPages,
		Monitored:    ack.Monitored,
	})
}

func (h *JobHandler) ListJobs(c *gin.Context) {
	var query ListJobsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	if query.Limit <= 0 {
		query.Limit = 50
	}

	filter := db.JobFilter{
		Device:        query.Device,
		Status:        query.Status,
		CorrelationID: query.CorrelationID,
		OrderDir:      query.SortDir,
		Limit:         query.Limit,
		Offset:        query.Offset,
	}

	for _, d := range []struct {
		raw string
		dst **time.Time
	}{{query.FromDate, &filter.FromDate}, {query.ToDate, &filter.ToDate}} {
		if d.raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, d.raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "validation_error",
				Message: "dates must be RFC3339",
			})
			return
		}
		*d.dst = &t
	}

	jobs, err := h.store.ListJobs(c.Request.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list jobs")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to retrieve jobs",
		})
		return
	}
	if jobs == nil {
		jobs = []*db.PrintJob{}
	}

	c.JSON(http.StatusOK, ListJobsResponse{Jobs: jobs, Limit: query.Limit, Offset: query.Offset})
}

func (h *JobHandler) GetJob(c *gin.Context) {
	correlationID, err := strconv.ParseInt(c.Param("correlation_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_id",
			Message: "Invalid correlation ID",
		})
		return
	}

	job, err := h.store.GetJobByCorrelation(c.Request.Context(), correlationID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "Job not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to retrieve job",
		})
		return
	}

	c.JSON(http.StatusOK, job)
}

// CancelSpoolJob asks the spooler to delete a queued job. The job monitor
// observes the deletion and reports the failure.
func (h *JobHandler) CancelSpoolJob(c *gin.Context) {
	device := c.Param("device")
	jobID, err := strconv.ParseUint(c.Param("job_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_id",
			Message: "Invalid job ID",
		})
		return
	}

	handle, err := h.spooler.OpenPrinter(device)
	if err != nil {
		if errors.Is(err, core.ErrDeviceNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   string(core.CodeDeviceNotFound),
				Message: err.Error(),
			})
			return
		}
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "spooler_error",
			Message: err.Error(),
		})
		return
	}
	defer handle.Close()

	if err := handle.CancelJob(uint32(jobID)); err != nil {
		if errors.Is(err, core.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "Job not found in spooler",
			})
			return
		}
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "spooler_error",
			Message: err.Error(),
		})
		return
	}

	h.log.Info().Str("device", device).Uint64("job_id", jobID).Msg("spool job cancelled")
	c.JSON(http.StatusAccepted, gin.H{"status": "cancelling", "device": device, "job_id": jobID})
}
