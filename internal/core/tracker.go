package core

import "fmt"

const (
	deletionSignals = JobStatusDeleting | JobStatusDeleted
	errorSignals    = JobStatusError | JobStatusPaperOut | JobStatusUserIntervention | JobStatusBlocked
)

// JobTracker accumulates spooler evidence for one job across polls. Evidence
// is only ever added: once a flag is set it stays set, and the page counter
// only grows.
//
// Classification priority, evaluated once when polling stops:
//  1. deletion seen at any poll                       -> Failed
//  2. error seen and no page ever printed             -> Failed
//  3. disappeared, no page printed, pages were sent   -> Failed
//  4. disappeared                                     -> Success
//  5. poll ceiling reached while still queued         -> TimedOut
//
// Later evidence never overrides an earlier rule, so an error followed by a
// clean completion still fails when a deletion was seen in between.
type JobTracker struct {
	TotalPages      int
	MaxPagesPrinted int
	DeletionSeen    bool
	ErrorSeen       bool
	OfflineSeen     bool
	Disappeared     bool
	Polls           int
	FailedPolls     int
	LastStatus      JobStatusBits
}

func NewJobTracker(totalPages int) *JobTracker {
	return &JobTracker{TotalPages: totalPages}
}

// Observe folds one poll into the tracker and reports whether it was terminal.
func (t *JobTracker) Observe(o JobObservation) bool {
	t.Polls++
	if !o.Present {
		t.Disappeared = true
		return true
	}

	t.LastStatus = o.Status
	if o.PagesPrinted > t.MaxPagesPrinted {
		t.MaxPagesPrinted = o.PagesPrinted
	}
	if o.Status.Has(deletionSignals) {
		t.DeletionSeen = true
	}
	if o.Status.Has(errorSignals) {
		t.ErrorSeen = true
	}
	if o.Status.Has(JobStatusOffline) {
		t.OfflineSeen = true
	}
	return false
}

// Miss records a poll whose query failed for reasons other than absence.
func (t *JobTracker) Miss() {
	t.Polls++
	t.FailedPolls++
}

func (t *JobTracker) Classify() JobOutcome {
	out := JobOutcome{PagesPrinted: t.MaxPagesPrinted}

	switch {
	case t.DeletionSeen:
		out.Kind = OutcomeFailed
		out.Message = "job was deleted from the print queue"
	case t.ErrorSeen && t.MaxPagesPrinted == 0:
		out.Kind = OutcomeFailed
		out.Message = fmt.Sprintf("device reported an error before any page printed (status 0x%04x)", uint32(t.LastStatus))
	case t.Disappeared && t.MaxPagesPrinted == 0 && t.TotalPages > 0:
		out.Kind = OutcomeFailed
		out.Message = fmt.Sprintf("job left the queue without printing (0 of %d pages)", t.TotalPages)
	case t.Disappeared:
		out.Kind = OutcomeSuccess
		out.Message = "job completed"
	default:
		out.Kind = OutcomeTimedOut
		out.Message = fmt.Sprintf("timed out after %d polls, job still queued (%d of %d pages printed)",
			t.Polls, t.MaxPagesPrinted, t.TotalPages)
	}

	if out.Kind != OutcomeSuccess && t.OfflineSeen {
		out.Message += "; device was offline"
	}
	return out
}
