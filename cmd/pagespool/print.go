package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/orrn/pagespool/internal/core"
	"github.com/orrn/pagespool/internal/db"
	"github.com/orrn/pagespool/internal/logger"
	"github.com/spf13/cobra"
)

var printOpts struct {
	device        string
	file          string
	copies        int
	duplex        bool
	color         bool
	orientation   string
	paper         string
	from          int
	to            int
	correlationID int64
	wait          bool
	timeout       time.Duration
}

var printCmd = &cobra.Command{
	Use:   "print",
	Short: "Submit one document and optionally wait for its outcome",
	RunE:  runPrint,
}

func init() {
	f := printCmd.Flags()
	f.StringVarP(&printOpts.device, "device", "d", "", "target device name")
	f.StringVarP(&printOpts.file, "file", "f", "", "document to print")
	f.IntVarP(&printOpts.copies, "copies", "n", 1, "number of copies")
	f.BoolVar(&printOpts.duplex, "duplex", false, "print on both sides")
	f.BoolVar(&printOpts.color, "color", false, "print in color")
	f.StringVar(&printOpts.orientation, "orientation", "auto", "portrait, landscape or auto")
	f.StringVar(&printOpts.paper, "paper", "", "paper size name")
	f.IntVar(&printOpts.from, "from", 0, "first page (1-based)")
	f.IntVar(&printOpts.to, "to", 0, "last page (inclusive)")
	f.Int64Var(&printOpts.correlationID, "correlation-id", 0, "caller correlation id (defaults to a timestamp with --wait)")
	f.BoolVarP(&printOpts.wait, "wait", "w", false, "wait for the job outcome")
	f.DurationVar(&printOpts.timeout, "timeout", 0, "give up waiting after this long")
	_ = printCmd.MarkFlagRequired("device")
	_ = printCmd.MarkFlagRequired("file")
}

type printResult struct {
	Status       string `json:"status"`
	JobID        uint32 `json:"job_id,omitempty"`
	Device       string `json:"device"`
	TotalPages   int    `json:"total_pages,omitempty"`
	Outcome      string `json:"outcome,omitempty"`
	PagesPrinted int    `json:"pages_printed,omitempty"`
	Error        string `json:"error,omitempty"`
	Message      string `json:"message,omitempty"`
}

// outcomeWaiter collects job outcomes for one device so the CLI can block
// on the job it submitted.
type outcomeWaiter struct {
	device string
	mu     sync.Mutex
	seen   map[uint32]core.Event
	notify chan struct{}
}

func newOutcomeWaiter(device string) *outcomeWaiter {
	return &outcomeWaiter{
		device: device,
		seen:   make(map[uint32]core.Event),
		notify: make(chan struct{}, 1),
	}
}

func (w *outcomeWaiter) HandleEvent(_ context.Context, ev core.Event) {
	if ev.Kind != core.EventJobCompleted && ev.Kind != core.EventJobFailed {
		return
	}
	if ev.Device != w.device {
		return
	}
	w.mu.Lock()
	w.seen[ev.JobID] = ev
	w.mu.Unlock()
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

func (w *outcomeWaiter) wait(ctx context.Context, jobID uint32) (core.Event, error) {
	for {
		w.mu.Lock()
		ev, ok := w.seen[jobID]
		w.mu.Unlock()
		if ok {
			return ev, nil
		}
		select {
		case <-w.notify:
		case <-ctx.Done():
			return core.Event{}, ctx.Err()
		}
	}
}

func runPrint(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.WithComponent("print")

	p, err := buildPipeline(cfg)
	if err != nil {
		return err
	}

	correlationID := printOpts.correlationID
	if printOpts.wait && correlationID <= 0 {
		correlationID = time.Now().UnixNano()
	}

	waiter := newOutcomeWaiter(printOpts.device)
	p.dispatcher.Register(waiter)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	p.start(ctx)
	defer p.shutdown()

	req := core.PrintRequest{
		FilePath:      printOpts.file,
		DeviceName:    printOpts.device,
		Color:         printOpts.color,
		Duplex:        printOpts.duplex,
		Copies:        printOpts.copies,
		Orientation:   core.Orientation(printOpts.orientation),
		PaperSize:     printOpts.paper,
		PageStart:     printOpts.from,
		PageEnd:       printOpts.to,
		CorrelationID: correlationID,
	}

	ack, err := p.submitter.Submit(ctx, req)
	if err != nil {
		if _, dbErr := p.store.RecordRejected(ctx, db.RejectedJob(req, err)); dbErr != nil {
			log.Warn().Err(dbErr).Msg("failed to record rejected job")
		}
		writeResult(cmd, printResult{
			Status:  "rejected",
			Device:  req.DeviceName,
			Error:   string(core.CodeOf(err)),
			Message: err.Error(),
		})
		return err
	}
	if _, err := p.store.RecordAccepted(ctx, db.AcceptedJob(req, ack)); err != nil {
		log.Warn().Err(err).Msg("failed to record accepted job")
	}

	res := printResult{
		Status:     ack.Status,
		JobID:      ack.JobID,
		Device:     ack.Device,
		TotalPages: ack.TotalPages,
	}
	if !printOpts.wait || !ack.Monitored {
		writeResult(cmd, res)
		return nil
	}

	waitCtx := ctx
	if printOpts.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, printOpts.timeout)
		defer cancel()
	}

	ev, err := waiter.wait(waitCtx, ack.JobID)
	if err != nil {
		res.Message = "stopped waiting: " + err.Error()
		writeResult(cmd, res)
		return err
	}

	res.Outcome = string(ev.Outcome)
	res.PagesPrinted = ev.PagesPrinted
	res.Message = ev.Reason
	writeResult(cmd, res)
	if ev.Kind == core.EventJobFailed {
		return fmt.Errorf("job %d failed: %s", ev.JobID, ev.Reason)
	}
	return nil
}

func writeResult(cmd *cobra.Command, res printResult) {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	_ = enc.Encode(res)
}
