package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/orrn/pagespool/internal/core"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusForCode maps submission error codes onto HTTP statuses.
func statusForCode(code core.ErrorCode) int {
	switch code {
	case core.CodeInvalidArguments:
		return http.StatusBadRequest
	case core.CodeDeviceNotFound:
		return http.StatusNotFound
	case core.CodeDocumentURIError, core.CodeDocumentLoadError:
		return http.StatusUnprocessableEntity
	case "":
		return http.StatusInternalServerError
	}
	return http.StatusBadGateway
}

func writePrintError(c *gin.Context, err error) {
	var pe *core.PrintError
	if !errors.As(err, &pe) {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}
	c.JSON(statusForCode(pe.Code), ErrorResponse{
		Error:   string(pe.Code),
		Message: pe.Error(),
	})
}
