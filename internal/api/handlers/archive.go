package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/orrn/pagespool/internal/archive"
	"github.com/rs/zerolog"
)

type ArchiveHandler struct {
	archiver *archive.Archiver
	log      zerolog.Logger
}

func NewArchiveHandler(archiver *archive.Archiver, log zerolog.Logger) *ArchiveHandler {
	return &ArchiveHandler{archiver: archiver, log: log}
}

type ArchiveListResponse struct {
	Archives    []*archive.ArchiveFile `json:"archives"`
	Count       int                    `json:"count"`
	ArchiveDays int                    `json:"archive_days"`
}

func (h *ArchiveHandler) ListArchives(c *gin.Context) {
	archives, err := h.archiver.ListArchives()
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list archives")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal", Message: "failed to list archives"})
		return
	}

	c.JSON(http.StatusOK, ArchiveListResponse{
		Archives:    archives,
		Count:       len(archives),
		ArchiveDays: h.archiver.ArchiveDays(),
	})
}

func (h *ArchiveHandler) GetArchiveInfo(c *gin.Context) {
	info, err := h.archiver.GetArchiveInfo(c.Param("filename"))
	if err != nil {
		h.writeArchiveError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *ArchiveHandler) DeleteArchive(c *gin.Context) {
	if err := h.archiver.DeleteArchive(c.Param("filename")); err != nil {
		h.writeArchiveError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "archive deleted"})
}

type TriggerArchiveResponse struct {
	Message  string `json:"message"`
	Archived int    `json:"archived"`
	Error    string `json:"error,omitempty"`
}

func (h *ArchiveHandler) TriggerArchive(c *gin.Context) {
	n, err := h.archiver.RunArchive(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Int("archived", n).Msg("manual archive run failed")
		c.JSON(http.StatusInternalServerError, TriggerArchiveResponse{
			Message:  "archive completed with errors",
			Archived: n,
			Error:    err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, TriggerArchiveResponse{
		Message:  "archive completed",
		Archived: n,
	})
}

type ArchivedJobResponse struct {
	Archive string `json:"archive"`
	Job     any    `json:"job"`
}

func (h *ArchiveHandler) FindArchivedJob(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("correlation_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid-arguments", Message: "correlation_id must be an integer"})
		return
	}

	job, file, err := h.archiver.FindJob(c.Request.Context(), id)
	if err != nil {
		h.writeArchiveError(c, err)
		return
	}
	c.JSON(http.StatusOK, ArchivedJobResponse{Archive: file, Job: job})
}

func (h *ArchiveHandler) writeArchiveError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, archive.ErrInvalidName):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid-arguments", Message: err.Error()})
	case errors.Is(err, archive.ErrArchiveNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not-found", Message: err.Error()})
	default:
		h.log.Error().Err(err).Msg("archive request failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal", Message: "archive request failed"})
	}
}
