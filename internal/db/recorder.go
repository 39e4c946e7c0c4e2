package db

import (
	"context"
	"time"

	"github.com/orrn/pagespool/internal/core"
	"github.com/rs/zerolog"
)

// Recorder persists dispatcher events.
type Recorder struct {
	store *Store
	log   zerolog.Logger
}

func NewRecorder(store *Store, log zerolog.Logger) *Recorder {
	return &Recorder{store: store, log: log}
}

func (r *Recorder) HandleEvent(ctx context.Context, ev core.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	var err error
	switch ev.Kind {
	case core.EventJobCompleted, core.EventJobFailed:
		err = r.store.RecordOutcome(ctx, Outcome{
			CorrelationID: ev.CorrelationID,
			Device:        ev.Device,
			SpoolJobID:    int64(ev.JobID),
			DocumentName:  ev.DocumentName,
			TotalPages:    ev.TotalPages,
			PagesPrinted:  ev.PagesPrinted,
			Status:        outcomeStatus(ev),
			Message:       ev.Reason,
		})
	case core.EventPrinterStatusChanged:
		err = r.store.UpsertPrinterState(ctx, PrinterState{
			Device:    ev.Device,
			Online:    ev.Online,
			ChangedAt: ev.At,
		})
	}
	if err != nil {
		r.log.Error().Err(err).Str("event", string(ev.Kind)).Str("device", ev.Device).Msg("failed to record event")
	}
}

func outcomeStatus(ev core.Event) string {
	switch ev.Outcome {
	case core.OutcomeSuccess:
		return JobStatusSuccess
	case core.OutcomeTimedOut:
		return JobStatusTimedOut
	case core.OutcomeFailed:
		return JobStatusFailed
	}
	if ev.Kind == core.EventJobCompleted {
		return JobStatusSuccess
	}
	return JobStatusFailed
}

// AcceptedJob builds the row for a job the spooler accepted.
func AcceptedJob(req core.PrintRequest, ack *core.Ack) *PrintJob {
	spoolID := int64(ack.JobID)
	j := &PrintJob{
		CorrelationID: req.CorrelationID,
		Device:        ack.Device,
		SpoolJobID:    &spoolID,
		FilePath:      req.FilePath,
		DocumentName:  ack.DocumentName,
		TotalPages:    ack.TotalPages,
		Copies:        req.Copies,
		Orientation:   string(req.Orientation),
		Color:         req.Color,
		Paper:         req.PaperSize,
	}
	if p := ack.Profile; p != nil {
		j.Copies = p.Settings.Copies
		j.Orientation = string(p.Settings.Orientation)
		j.Duplex = string(p.Settings.Duplex)
		j.Color = p.Settings.Color
		j.Paper = p.Settings.Paper.Name
	}
	return j
}

// RejectedJob builds the row for a submission that failed synchronously.
func RejectedJob(req core.PrintRequest, err error) *PrintJob {
	return &PrintJob{
		CorrelationID: req.CorrelationID,
		Device:        req.DeviceName,
		FilePath:      req.FilePath,
		Copies:        req.Copies,
		ErrorCode:     string(core.CodeOf(err)),
		Message:       err.Error(),
	}
}
