package archive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/orrn/pagespool/internal/core"
	"github.com/orrn/pagespool/internal/db"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestArchiver(t *testing.T, days int) (*Archiver, *db.Store) {
	t.Helper()
	dir := t.TempDir()
	store, err := db.Open(db.Config{Path: filepath.Join(dir, "pagespool.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	a, err := NewArchiver(store, ArchiveConfig{
		ArchivePath: filepath.Join(dir, "archives"),
		ArchiveDays: days,
		Interval:    time.Hour,
	}, zerolog.Nop())
	require.NoError(t, err)
	return a, store
}

func seedJobs(t *testing.T, store *db.Store) {
	t.Helper()
	ctx := context.Background()

	req := core.PrintRequest{FilePath: "/tmp/a.pdf", DeviceName: "Office", Copies: 1, CorrelationID: 1}
	_, err := store.RecordRejected(ctx, db.RejectedJob(req, &core.PrintError{Code: core.CodeDeviceNotFound, Message: "gone"}))
	require.NoError(t, err)

	require.NoError(t, store.RecordOutcome(ctx, db.Outcome{
		CorrelationID: 2, Device: "Office", SpoolJobID: 10, DocumentName: "pagespool-b", TotalPages: 2, PagesPrinted: 2, Status: db.JobStatusSuccess,
	}))

	ack := &core.Ack{Status: core.AckAccepted, JobID: 11, Device: "Office", DocumentName: "pagespool-c", TotalPages: 1}
	_, err = store.RecordAccepted(ctx, db.AcceptedJob(core.PrintRequest{FilePath: "/tmp/c.pdf", Copies: 1, CorrelationID: 3}, ack))
	require.NoError(t, err)
}

func TestRunArchiveMovesTerminalJobs(t *testing.T) {
	a, store := newTestArchiver(t, 1)
	seedJobs(t, store)
	ctx := context.Background()

	n, err := a.RunArchive(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "fresh jobs stay in the main database")

	a.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	n, err = a.RunArchive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	remaining, err := store.ListJobs(ctx, db.JobFilter{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, db.JobStatusAccepted, remaining[0].Status)

	archives, err := a.ListArchives()
	require.NoError(t, err)
	require.Len(t, archives, 1)
	assert.Equal(t, 2, archives[0].JobCount)
	assert.Equal(t, a.now().Format("2006_01"), archives[0].Month)

	job, file, err := a.FindJob(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, archives[0].Filename, file)
	assert.Equal(t, db.JobStatusSuccess, job.Status)
	assert.Equal(t, 2, job.PagesPrinted)
	require.NotNil(t, job.SpoolJobID)
	assert.Equal(t, int64(10), *job.SpoolJobID)

	_, _, err = a.FindJob(ctx, 3)
	assert.ErrorIs(t, err, ErrArchiveNotFound)
}

func TestRunArchiveDisabled(t *testing.T) {
	a, store := newTestArchiver(t, 0)
	seedJobs(t, store)
	a.now = func() time.Time { return time.Now().Add(365 * 24 * time.Hour) }

	n, err := a.RunArchive(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestArchiveNames(t *testing.T) {
	a, _ := newTestArchiver(t, 1)

	_, err := a.GetArchiveInfo("../pagespool.db")
	assert.ErrorIs(t, err, ErrInvalidName)
	assert.ErrorIs(t, a.DeleteArchive("notes.txt"), ErrInvalidName)
	assert.ErrorIs(t, a.DeleteArchive("archive_2020_01.db"), ErrArchiveNotFound)

	require.NoError(t, os.WriteFile(filepath.Join(a.archivePath, "stray.txt"), []byte("x"), 0o600))
	archives, err := a.ListArchives()
	require.NoError(t, err)
	assert.Empty(t, archives)
}

func TestDeleteArchive(t *testing.T) {
	a, store := newTestArchiver(t, 1)
	seedJobs(t, store)
	a.now = func() time.Time { return time.Now().Add(48 * time.Hour) }

	_, err := a.RunArchive(context.Background())
	require.NoError(t, err)

	name := fileName(a.now())
	require.NoError(t, a.DeleteArchive(name))
	_, err = a.GetArchiveInfo(name)
	assert.True(t, errors.Is(err, ErrArchiveNotFound))
}

func TestStartStop(t *testing.T) {
	a, _ := newTestArchiver(t, 1)
	a.Start()
	a.Stop()
	a.Stop()
}
