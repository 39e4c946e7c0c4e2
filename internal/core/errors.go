package core

import (
	"errors"
	"fmt"
)

var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrJobNotFound    = errors.New("job not found")
	ErrHandleClosed   = errors.New("printer handle closed")
	ErrDocumentFormat = errors.New("unsupported document format")
)

type ErrorCode string

const (
	CodeDeviceNotFound        ErrorCode = "device-not-found"
	CodeDeviceModeQueryFailed ErrorCode = "device-mode-query-failed"
	CodeDeviceModeAllocFailed ErrorCode = "device-mode-alloc-failed"
	CodeDeviceModeFetchFailed ErrorCode = "device-mode-fetch-failed"
	CodeDocumentURIError      ErrorCode = "document-uri-error"
	CodeDocumentLoadError     ErrorCode = "document-load-error"
	CodeBeginDocumentFailed   ErrorCode = "begin-document-failed"
	CodeBeginPageFailed       ErrorCode = "begin-page-failed"
	CodeEndPageFailed         ErrorCode = "end-page-failed"
	CodeInvalidArguments      ErrorCode = "invalid-arguments"
)

// PrintError is the synchronous failure of a submission. No partial
// acknowledgment accompanies it.
type PrintError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func newPrintError(code ErrorCode, msg string, err error) *PrintError {
	return &PrintError{Code: code, Message: msg, Err: err}
}

func (e *PrintError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PrintError) Unwrap() error {
	return e.Err
}

// CodeOf extracts the error code, or "" when err is not a *PrintError.
func CodeOf(err error) ErrorCode {
	var pe *PrintError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}
