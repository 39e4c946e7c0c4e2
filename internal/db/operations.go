package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RecordAccepted stores a job the spooler took. It returns the row id.
func (s *Store) RecordAccepted(ctx context.Context, j *PrintJob) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, InsertAcceptedJob,
		j.CorrelationID, j.Device, j.SpoolJobID, j.FilePath, j.DocumentName,
		j.TotalPages, j.Copies, j.Orientation, j.Duplex, j.Color, j.Paper).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to record accepted job: %w", err)
	}
	return id, nil
}

// RecordRejected stores a submission that failed synchronously.
func (s *Store) RecordRejected(ctx context.Context, j *PrintJob) (int64, error) {
	result, err := s.db.ExecContext(ctx, InsertRejectedJob,
		j.CorrelationID, j.Device, j.FilePath, j.Copies, j.ErrorCode, j.Message)
	if err != nil {
		return 0, fmt.Errorf("failed to record rejected job: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get job id: %w", err)
	}
	return id, nil
}

type Outcome struct {
	CorrelationID int64
	Device        string
	SpoolJobID    int64
	DocumentName  string
	TotalPages    int
	PagesPrinted  int
	Status        string
	Message       string
}

func (s *Store) RecordOutcome(ctx context.Context, o Outcome) error {
	_, err := s.db.ExecContext(ctx, UpsertJobOutcome,
		o.CorrelationID, o.Device, o.SpoolJobID, o.DocumentName, o.TotalPages, o.PagesPrinted, o.Status, o.Message)
	if err != nil {
		return fmt.Errorf("failed to record job outcome: %w", err)
	}
	return nil
}

func (s *Store) GetJobByID(ctx context.Context, id int64) (*PrintJob, error) {
	return scanJob(s.db.QueryRowContext(ctx, GetJobByID, id))
}

// GetJobByCorrelation returns the most recent job carrying correlationID.
func (s *Store) GetJobByCorrelation(ctx context.Context, correlationID int64) (*PrintJob, error) {
	return scanJob(s.db.QueryRowContext(ctx, GetLatestJobByCorrelation, correlationID))
}

func (s *Store) ListJobs(ctx context.Context, filter JobFilter) ([]*PrintJob, error) {
	var conditions []string
	var args []interface{}

	if filter.Device != "" {
		conditions = append(conditions, "device = ?")
		args = append(args, filter.Device)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.CorrelationID > 0 {
		conditions = append(conditions, "correlation_id = ?")
		args = append(args, filter.CorrelationID)
	}
	if filter.FromDate != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.FromDate.UTC())
	}
	if filter.ToDate != nil {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, filter.ToDate.UTC())
	}

	orderDir := "DESC"
	if strings.EqualFold(filter.OrderDir, "asc") {
		orderDir = "ASC"
	}

	query := "SELECT " + jobColumns + " FROM print_jobs"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY id %s", orderDir)

	limit := 100
	if filter.Limit > 0 {
		limit = filter.Limit
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*PrintJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *Store) CountJobsByStatus(ctx context.Context, status string) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, CountJobsByStatus, status).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count jobs by status: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*PrintJob, error) {
	j := &PrintJob{}
	var spoolID sql.NullInt64
	var completed sql.NullTime
	err := row.Scan(
		&j.ID, &j.CorrelationID, &j.Device, &spoolID, &j.FilePath, &j.DocumentName,
		&j.TotalPages, &j.PagesPrinted, &j.Copies, &j.Orientation, &j.Duplex, &j.Color, &j.Paper,
		&j.Status, &j.ErrorCode, &j.Message, &j.CreatedAt, &completed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	if spoolID.Valid {
		j.SpoolJobID = &spoolID.Int64
	}
	if completed.Valid {
		j.CompletedAt = &completed.Time
	}
	return j, nil
}

func (s *Store) UpsertPrinterState(ctx context.Context, st PrinterState) error {
	_, err := s.db.ExecContext(ctx, UpsertPrinterState, st.Device, st.Online, st.ChangedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to store printer state: %w", err)
	}
	return nil
}

func (s *Store) GetPrinterState(ctx context.Context, device string) (*PrinterState, error) {
	st := &PrinterState{}
	err := s.db.QueryRowContext(ctx, GetPrinterState, device).Scan(&st.Device, &st.Online, &st.ChangedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get printer state: %w", err)
	}
	return st, nil
}

func (s *Store) ListPrinterStates(ctx context.Context) ([]*PrinterState, error) {
	rows, err := s.db.QueryContext(ctx, ListPrinterStates)
	if err != nil {
		return nil, fmt.Errorf("failed to list printer states: %w", err)
	}
	defer rows.Close()

	var states []*PrinterState
	for rows.Next() {
		st := &PrinterState{}
		if err := rows.Scan(&st.Device, &st.Online, &st.ChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan printer state: %w", err)
		}
		states = append(states, st)
	}
	return states, rows.Err()
}

const sqliteTimeLayout = "2006-01-02 15:04:05"

// JobsCompletedBefore returns terminal jobs whose outcome is older than cutoff.
func (s *Store) JobsCompletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*PrintJob, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, ListJobsCompletedBefore, cutoff.UTC().Format(sqliteTimeLayout), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list completed jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*PrintJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *Store) DeleteJobs(ctx context.Context, ids []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, DeleteJobByID, id); err != nil {
			return fmt.Errorf("failed to delete job %d: %w", id, err)
		}
	}
	return tx.Commit()
}
