// Package archive moves finished job history out of the main database into
// monthly SQLite files.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/orrn/pagespool/internal/db"
	"github.com/orrn/pagespool/internal/metrics"
	"github.com/rs/zerolog"
)

var (
	ErrArchiveNotFound = errors.New("archive not found")
	ErrInvalidName     = errors.New("invalid archive name")
)

const (
	filePrefix = "archive_"
	fileSuffix = ".db"
	batchSize  = 1000
)

type Archiver struct {
	store       *db.Store
	archivePath string
	archiveDays int
	interval    time.Duration
	log         zerolog.Logger
	now         func() time.Time

	mu       sync.Mutex
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type ArchiveFile struct {
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	JobCount  int       `json:"job_count"`
	Month     string    `json:"month"`
}

type ArchiveConfig struct {
	ArchivePath string
	ArchiveDays int
	Interval    time.Duration
}

func NewArchiver(store *db.Store, config ArchiveConfig, log zerolog.Logger) (*Archiver, error) {
	if config.ArchivePath == "" {
		config.ArchivePath = "./data/archives"
	}
	if config.Interval <= 0 {
		config.Interval = 24 * time.Hour
	}

	if err := os.MkdirAll(config.ArchivePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	return &Archiver{
		store:       store,
		archivePath: config.ArchivePath,
		archiveDays: config.ArchiveDays,
		interval:    config.Interval,
		log:         log,
		now:         time.Now,
		stopCh:      make(chan struct{}),
	}, nil
}

func (a *Archiver) Start() {
	a.wg.Add(1)
	go a.runPeriodic()
}

func (a *Archiver) Stop() {
	a.stopOnce.Do(func() { close(a.stopCh) })
	a.wg.Wait()
}

func (a *Archiver) runPeriodic() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
			n, err := a.RunArchive(context.Background())
			if err != nil {
				a.log.Error().Err(err).Msg("archive run failed")
				continue
			}
			if n > 0 {
				a.log.Info().Int("jobs", n).Msg("archived finished jobs")
			}
		}
	}
}

// RunArchive moves every terminal job older than the retention window into
// the archive file for the current month. It returns the number of jobs moved.
func (a *Archiver) RunArchive(ctx context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.archiveDays <= 0 {
		return 0, nil
	}

	now := a.now()
	cutoff := now.AddDate(0, 0, -a.archiveDays)
	path := filepath.Join(a.archivePath, fileName(now))

	total := 0
	for {
		jobs, err := a.store.JobsCompletedBefore(ctx, cutoff, batchSize)
		if err != nil {
			return total, fmt.Errorf("failed to get jobs for archival: %w", err)
		}
		if len(jobs) == 0 {
			return total, nil
		}

		if err := a.writeArchive(ctx, path, jobs, now); err != nil {
			return total, err
		}

		ids := make([]int64, len(jobs))
		for i, j := range jobs {
			ids[i] = j.ID
		}
		if err := a.store.DeleteJobs(ctx, ids); err != nil {
			return total, fmt.Errorf("failed to delete archived jobs: %w", err)
		}
		total += len(jobs)
		metrics.ArchivedJobsTotal.Add(float64(len(jobs)))

		if len(jobs) < batchSize {
			return total, nil
		}
	}
}

func fileName(t time.Time) string {
	return filePrefix + t.Format("2006_01") + fileSuffix
}

func (a *Archiver) writeArchive(ctx context.Context, path string, jobs []*db.PrintJob, at time.Time) error {
	archiveDB, err := openArchiveDB(path)
	if err != nil {
		return fmt.Errorf("failed to create archive database: %w", err)
	}
	defer archiveDB.Close()

	tx, err := archiveDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin archive transaction: %w", err)
	}
	defer tx.Rollback()

	for _, job := range jobs {
		if err := insertJob(ctx, tx, job); err != nil {
			return fmt.Errorf("failed to insert job %d into archive: %w", job.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO archive_metadata (id, archived_at, source_database)
		VALUES (1, ?, 'main')
	`, at.UTC()); err != nil {
		return fmt.Errorf("failed to update archive metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit archive transaction: %w", err)
	}
	return nil
}

func openArchiveDB(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	_, err = conn.Exec(`
		CREATE TABLE IF NOT EXISTS print_jobs (
			id INTEGER PRIMARY KEY,
			correlation_id INTEGER NOT NULL,
			device TEXT NOT NULL,
			spool_job_id INTEGER,
			file_path TEXT,
			document_name TEXT,
			total_pages INTEGER,
			pages_printed INTEGER,
			copies INTEGER,
			orientation TEXT,
			duplex TEXT,
			color INTEGER,
			paper TEXT,
			status TEXT NOT NULL,
			error_code TEXT,
			message TEXT,
			created_at DATETIME,
			completed_at DATETIME
		);

		CREATE TABLE IF NOT EXISTS archive_metadata (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			archived_at DATETIME,
			source_database TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_archive_jobs_correlation ON print_jobs(correlation_id);
		CREATE INDEX IF NOT EXISTS idx_archive_jobs_completed_at ON print_jobs(completed_at);
	`)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return conn, nil
}

func insertJob(ctx context.Context, tx *sql.Tx, j *db.PrintJob) error {
	_, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO print_jobs (id, correlation_id, device, spool_job_id, file_path, document_name,
			total_pages, pages_printed, copies, orientation, duplex, color, paper,
			status, error_code, message, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.CorrelationID, j.Device, j.SpoolJobID, j.FilePath, j.DocumentName,
		j.TotalPages, j.PagesPrinted, j.Copies, j.Orientation, j.Duplex, j.Color, j.Paper,
		j.Status, j.ErrorCode, j.Message, j.CreatedAt, j.CompletedAt)
	return err
}

func (a *Archiver) ListArchives() ([]*ArchiveFile, error) {
	files, err := os.ReadDir(a.archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive directory: %w", err)
	}

	archives := []*ArchiveFile{}
	for _, file := range files {
		if file.IsDir() || !validName(file.Name()) {
			continue
		}
		info, err := a.GetArchiveInfo(file.Name())
		if err != nil {
			a.log.Warn().Err(err).Str("file", file.Name()).Msg("skipping unreadable archive")
			continue
		}
		archives = append(archives, info)
	}

	return archives, nil
}

func validName(name string) bool {
	return strings.HasPrefix(name, filePrefix) &&
		strings.HasSuffix(name, fileSuffix) &&
		filepath.Base(name) == name
}

func (a *Archiver) GetArchiveInfo(filename string) (*ArchiveFile, error) {
	if !validName(filename) {
		return nil, ErrInvalidName
	}
	path := filepath.Join(a.archivePath, filename)

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrArchiveNotFound
		}
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}

	count, err := jobCount(path)
	if err != nil {
		return nil, err
	}

	return &ArchiveFile{
		Filename:  filename,
		Size:      info.Size(),
		CreatedAt: info.ModTime(),
		JobCount:  count,
		Month:     strings.TrimSuffix(strings.TrimPrefix(filename, filePrefix), fileSuffix),
	}, nil
}

func jobCount(path string) (int, error) {
	conn, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	var count int
	if err := conn.QueryRow("SELECT COUNT(*) FROM print_jobs").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count archived jobs: %w", err)
	}
	return count, nil
}

// FindJob looks a correlation id up across every archive, newest file first.
func (a *Archiver) FindJob(ctx context.Context, correlationID int64) (*db.PrintJob, string, error) {
	archives, err := a.ListArchives()
	if err != nil {
		return nil, "", err
	}

	for i := len(archives) - 1; i >= 0; i-- {
		name := archives[i].Filename
		job, err := findInArchive(ctx, filepath.Join(a.archivePath, name), correlationID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, "", err
		}
		return job, name, nil
	}
	return nil, "", ErrArchiveNotFound
}

func findInArchive(ctx context.Context, path string, correlationID int64) (*db.PrintJob, error) {
	conn, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	j := &db.PrintJob{}
	var spoolID sql.NullInt64
	var completed sql.NullTime
	err = conn.QueryRowContext(ctx, `
		SELECT id, correlation_id, device, spool_job_id, file_path, document_name,
			total_pages, pages_printed, copies, orientation, duplex, color, paper,
			status, error_code, message, created_at, completed_at
		FROM print_jobs WHERE correlation_id = ? ORDER BY id DESC LIMIT 1
	`, correlationID).Scan(
		&j.ID, &j.CorrelationID, &j.Device, &spoolID, &j.FilePath, &j.DocumentName,
		&j.TotalPages, &j.PagesPrinted, &j.Copies, &j.Orientation, &j.Duplex, &j.Color, &j.Paper,
		&j.Status, &j.ErrorCode, &j.Message, &j.CreatedAt, &completed)
	if err != nil {
		return nil, err
	}
	if spoolID.Valid {
		j.SpoolJobID = &spoolID.Int64
	}
	if completed.Valid {
		j.CompletedAt = &completed.Time
	}
	return j, nil
}

func (a *Archiver) DeleteArchive(filename string) error {
	if !validName(filename) {
		return ErrInvalidName
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.Remove(filepath.Join(a.archivePath, filename)); err != nil {
		if os.IsNotExist(err) {
			return ErrArchiveNotFound
		}
		return fmt.Errorf("failed to delete archive: %w", err)
	}
	return nil
}

func (a *Archiver) ArchiveDays() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.archiveDays
}
