package db

const jobColumns = `id, correlation_id, device, spool_job_id, file_path, document_name,
	total_pages, pages_printed, copies, orientation, duplex, color, paper,
	status, error_code, message, created_at, completed_at`

const (
	InsertAcceptedJob = `
		INSERT INTO print_jobs (correlation_id, device, spool_job_id, file_path, document_name,
			total_pages, copies, orientation, duplex, color, paper, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'accepted')
		ON CONFLICT (document_name) WHERE document_name != '' DO UPDATE SET
			correlation_id = excluded.correlation_id,
			spool_job_id = excluded.spool_job_id,
			file_path = excluded.file_path,
			total_pages = excluded.total_pages,
			copies = excluded.copies,
			orientation = excluded.orientation,
			duplex = excluded.duplex,
			color = excluded.color,
			paper = excluded.paper
		RETURNING id
	`

	InsertRejectedJob = `
		INSERT INTO print_jobs (correlation_id, device, file_path, copies, status, error_code, message, completed_at)
		VALUES (?, ?, ?, ?, 'rejected', ?, ?, CURRENT_TIMESTAMP)
	`

	// The outcome can arrive before the submission row when the monitor is
	// faster than the caller; the upsert covers both orders. Rows are keyed
	// by document name because spooler job ids are only unique per process.
	UpsertJobOutcome = `
		INSERT INTO print_jobs (correlation_id, device, spool_job_id, document_name, total_pages, pages_printed, status, message, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (document_name) WHERE document_name != '' DO UPDATE SET
			pages_printed = excluded.pages_printed,
			status = excluded.status,
			message = excluded.message,
			completed_at = excluded.completed_at
	`

	GetJobByID = `SELECT ` + jobColumns + ` FROM print_jobs WHERE id = ?`

	GetLatestJobByCorrelation = `
		SELECT ` + jobColumns + ` FROM print_jobs
		WHERE correlation_id = ? ORDER BY id DESC LIMIT 1
	`

	CountJobsByStatus = `SELECT COUNT(*) FROM print_jobs WHERE status = ?`
)

const (
	UpsertPrinterState = `
		INSERT INTO printer_states (device, online, changed_at) VALUES (?, ?, ?)
		ON CONFLICT (device) DO UPDATE SET online = excluded.online, changed_at = excluded.changed_at
	`

	ListPrinterStates = `SELECT device, online, changed_at FROM printer_states ORDER BY device ASC`

	GetPrinterState = `SELECT device, online, changed_at FROM printer_states WHERE device = ?`
)

const (
	// completed_at is written by CURRENT_TIMESTAMP, so the cutoff is bound
	// in the same "YYYY-MM-DD HH:MM:SS" UTC form.
	ListJobsCompletedBefore = `
		SELECT ` + jobColumns + ` FROM print_jobs
		WHERE status != 'accepted' AND completed_at IS NOT NULL AND completed_at < ?
		ORDER BY completed_at ASC, id ASC LIMIT ?
	`

	DeleteJobByID = `DELETE FROM print_jobs WHERE id = ?`
)
