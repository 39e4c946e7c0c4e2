package core

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type submitFixture struct {
	printer *fakePrinter
	spooler *fakeSpooler
	source  *fakeSource
	doc     *fakeDoc
	watcher *fakeWatcher
	sub     *Submitter
}

func newSubmitFixture(pages int) *submitFixture {
	f := &submitFixture{
		printer: newFakePrinter("Office"),
		watcher: &fakeWatcher{},
	}
	ps := make([]Page, pages)
	for i := range ps {
		ps[i] = Page{Width: 595, Height: 842}
	}
	f.doc = newFakeDoc(ps...)
	f.source = &fakeSource{doc: f.doc}
	f.spooler = newFakeSpooler(f.printer)

	log := zerolog.Nop()
	f.sub = NewSubmitter(f.spooler, f.source, NewConfigurator(log),
		NewRenderer(NewMarginDetector(0.25, 0), log), f.watcher, log)
	return f
}

func request() PrintRequest {
	return PrintRequest{
		FilePath:      "report.pdf",
		DeviceName:    "Office",
		Copies:        1,
		Orientation:   OrientationAuto,
		CorrelationID: 7,
	}
}

func TestResolvePageRange(t *testing.T) {
	tests := []struct {
		start, end, count int
		first, last       int
	}{
		{0, 0, 5, 1, 5},
		{2, 4, 5, 2, 4},
		{2, 10, 5, 2, 5},
		{3, 3, 5, 3, 3},
		{4, 2, 5, 1, 5},
		{6, 8, 5, 1, 5},
		{-1, 3, 5, 1, 5},
		{1, 0, 5, 1, 5},
		{5, 5, 5, 5, 5},
	}
	for _, tt := range tests {
		first, last := ResolvePageRange(tt.start, tt.end, tt.count)
		assert.Equal(t, tt.first, first, "start=%d end=%d", tt.start, tt.end)
		assert.Equal(t, tt.last, last, "start=%d end=%d", tt.start, tt.end)
	}
}

func TestSubmitAcceptsAndHandsOffToMonitor(t *testing.T) {
	f := newSubmitFixture(3)

	ack, err := f.sub.Submit(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, AckAccepted, ack.Status)
	assert.Equal(t, uint32(42), ack.JobID)
	assert.Equal(t, 3, ack.TotalPages)
	assert.True(t, ack.Monitored)
	require.NotNil(t, ack.Profile)
	assert.Equal(t, OrientationPortrait, ack.Profile.Settings.Orientation)

	dc := f.printer.lastContext()
	require.NotNil(t, dc)
	assert.Equal(t, []string{
		"StartDoc",
		"StartPage", "EndPage",
		"StartPage", "EndPage",
		"StartPage", "EndPage",
		"EndDoc", "Close",
	}, dc.calls)
	assert.Len(t, dc.pages, 3)

	require.Len(t, f.watcher.jobs, 1)
	job := f.watcher.jobs[0]
	assert.Equal(t, uint32(42), job.JobID)
	assert.Equal(t, int64(7), job.CorrelationID)
	assert.Equal(t, "Office", job.Device)
	assert.Equal(t, 3, job.TotalPages)
	assert.Regexp(t, `^pagespool-[0-9a-f-]{36}$`, job.DocumentName)

	assert.True(t, f.doc.closed)
	assert.Zero(t, f.printer.openHandles())
}

func TestSubmitPrintsResolvedRange(t *testing.T) {
	f := newSubmitFixture(5)
	req := request()
	req.PageStart, req.PageEnd = 2, 10

	ack, err := f.sub.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 4, ack.TotalPages)
	assert.Len(t, f.printer.lastContext().pages, 4)
	assert.Equal(t, 4, f.watcher.jobs[0].TotalPages)
}

func TestSubmitWithoutCorrelationIsNotMonitored(t *testing.T) {
	for _, id := range []int64{0, -3} {
		f := newSubmitFixture(1)
		req := request()
		req.CorrelationID = id

		ack, err := f.sub.Submit(context.Background(), req)
		require.NoError(t, err)
		assert.False(t, ack.Monitored)
		assert.Empty(t, f.watcher.jobs)
	}
}

func TestSubmitAppliesRequestedMode(t *testing.T) {
	f := newSubmitFixture(1)
	f.doc.pages[0] = Page{Width: 842, Height: 595}
	req := request()
	req.Duplex = true
	req.Color = true
	req.Copies = 2
	req.PaperSize = "a3"

	ack, err := f.sub.Submit(context.Background(), req)
	require.NoError(t, err)

	s := ack.Profile.Settings
	assert.Equal(t, OrientationLandscape, s.Orientation)
	assert.Equal(t, DuplexShortEdge, s.Duplex)
	assert.True(t, s.Color)
	assert.Equal(t, 2, s.Copies)
	assert.Equal(t, PaperA3, s.Paper)
	assert.Same(t, ack.Profile, f.printer.lastContext().profile)
}

func TestSubmitFailures(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(f *submitFixture, req *PrintRequest)
		code      ErrorCode
		docOpened bool
		aborted   bool
	}{
		{"missing copies", func(f *submitFixture, r *PrintRequest) { r.Copies = 0 }, CodeInvalidArguments, false, false},
		{"bad orientation", func(f *submitFixture, r *PrintRequest) { r.Orientation = "sideways" }, CodeInvalidArguments, false, false},
		{"unknown device", func(f *submitFixture, r *PrintRequest) { r.DeviceName = "Lab" }, CodeDeviceNotFound, false, false},
		{"mode query", func(f *submitFixture, r *PrintRequest) { f.printer.modeSizeErr = errInjected }, CodeDeviceModeQueryFailed, false, false},
		{"mode alloc", func(f *submitFixture, r *PrintRequest) { f.printer.modeSize = -1 }, CodeDeviceModeAllocFailed, false, false},
		{"mode fetch", func(f *submitFixture, r *PrintRequest) { f.printer.defaultErr = errInjected }, CodeDeviceModeFetchFailed, false, false},
		{"bad uri", func(f *submitFixture, r *PrintRequest) { r.FilePath = "a\x00b.pdf" }, CodeDocumentURIError, false, false},
		{"load", func(f *submitFixture, r *PrintRequest) { f.source.err = errInjected }, CodeDocumentLoadError, false, false},
		{"empty document", func(f *submitFixture, r *PrintRequest) { f.doc.pages = nil }, CodeDocumentLoadError, true, false},
		{"context", func(f *submitFixture, r *PrintRequest) { f.printer.createErr = errInjected }, CodeDeviceNotFound, true, false},
		{"begin document", func(f *submitFixture, r *PrintRequest) { f.printer.startDocErr = errInjected }, CodeBeginDocumentFailed, true, false},
		{"begin page", func(f *submitFixture, r *PrintRequest) { f.printer.startPageErr = errInjected }, CodeBeginPageFailed, true, true},
		{"end page", func(f *submitFixture, r *PrintRequest) { f.printer.endPageErr = errInjected }, CodeEndPageFailed, true, true},
		{"render", func(f *submitFixture, r *PrintRequest) { f.doc.renderErr = errInjected }, CodeEndPageFailed, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSubmitFixture(2)
			req := request()
			tt.setup(f, &req)

			ack, err := f.sub.Submit(context.Background(), req)
			require.Error(t, err)
			assert.Nil(t, ack)
			assert.Equal(t, tt.code, CodeOf(err))
			assert.Empty(t, f.watcher.jobs)
			assert.Zero(t, f.printer.openHandles())
			assert.Equal(t, tt.docOpened, f.doc.closed)

			if dc := f.printer.lastContext(); dc != nil {
				assert.True(t, dc.closed)
				assert.Equal(t, tt.aborted, contains(dc.calls, "AbortDoc"))
				assert.NotContains(t, dc.calls, "EndDoc")
			}
		})
	}
}

func TestSubmitEndDocFailureIsStillAccepted(t *testing.T) {
	f := newSubmitFixture(1)
	f.printer.endDocErr = errInjected

	ack, err := f.sub.Submit(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, AckAccepted, ack.Status)
	assert.Len(t, f.watcher.jobs, 1)
}

func TestSubmitCancelledBetweenPages(t *testing.T) {
	f := newSubmitFixture(2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.sub.Submit(ctx, request())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, CodeBeginPageFailed, CodeOf(err))
	assert.Contains(t, err.Error(), "submission cancelled before page 1")
	assert.Contains(t, f.printer.lastContext().calls, "AbortDoc")
}

func TestDocumentURI(t *testing.T) {
	uri, err := DocumentURI("/tmp/some file.pdf")
	require.NoError(t, err)
	assert.Equal(t, "file:///tmp/some%20file.pdf", uri)

	_, err = DocumentURI("bad\xffname.pdf")
	assert.Error(t, err)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
