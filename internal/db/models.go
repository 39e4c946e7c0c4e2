package db

import (
	"time"
)

const (
	JobStatusAccepted = "accepted"
	JobStatusRejected = "rejected"
	JobStatusSuccess  = "success"
	JobStatusFailed   = "failed"
	JobStatusTimedOut = "timed_out"
)

type PrintJob struct {
	ID            int64      `json:"id"`
	CorrelationID int64      `json:"correlation_id"`
	Device        string     `json:"device"`
	SpoolJobID    *int64     `json:"spool_job_id,omitempty"`
	FilePath      string     `json:"file_path"`
	DocumentName  string     `json:"document_name,omitempty"`
	TotalPages    int        `json:"total_pages"`
	PagesPrinted  int        `json:"pages_printed"`
	Copies        int        `json:"copies"`
	Orientation   string     `json:"orientation,omitempty"`
	Duplex        string     `json:"duplex,omitempty"`
	Color         bool       `json:"color"`
	Paper         string     `json:"paper,omitempty"`
	Status        string     `json:"status"`
	ErrorCode     string     `json:"error_code,omitempty"`
	Message       string     `json:"message,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// Terminal reports whether the job has an outcome or was never accepted.
func (j *PrintJob) Terminal() bool {
	return j.Status != JobStatusAccepted
}

type PrinterState struct {
	Device    string    `json:"device"`
	Online    bool      `json:"online"`
	ChangedAt time.Time `json:"changed_at"`
}

type JobFilter struct {
	Device        string
	Status        string
	CorrelationID int64
	FromDate      *time.Time
	ToDate        *time.Time
	OrderDir      string
	Limit         int
	Offset        int
}
