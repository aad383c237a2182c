package gallery

import (
	"context"
	"log/slog"
	"time"
)

// Reconciler is the work run by Worker.
type Reconciler interface {
	Reconcile(ctx context.Context, prune bool) (Report, error)
}

// Worker reconciles upload directories in the background.
type Worker struct {
	reconciler Reconciler
	logger     *slog.Logger
	interval   time.Duration
	prune      bool
	notify     chan struct{}
	onReport   func(Report)
}

// WorkerOption configures the Worker.
type WorkerOption func(*Worker)

// WithInterval sets the delay between periodic passes. Zero disables them.
func WithInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		w.interval = d
	}
}

// WithPrune makes every pass delete the orphaned directories it finds.
func WithPrune(prune bool) WorkerOption {
	return func(w *Worker) {
		w.prune = prune
	}
}

// WithReportHook sets a function called after every successful pass.
func WithReportHook(fn func(Report)) WorkerOption {
	return func(w *Worker) {
		w.onReport = fn
	}
}

// NewWorker creates a new reconcile worker.
func NewWorker(reconciler Reconciler, logger *slog.Logger, opts ...WorkerOption) *Worker {
	worker := &Worker{
		reconciler: reconciler,
		logger:     logger,
		notify:     make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(worker)
	}

	return worker
}

// Notify asks for a reconciliation pass.
// This is non-blocking - if a notification is already pending, it's a no-op.
func (w *Worker) Notify() {
	select {
	case w.notify <- struct{}{}:
		w.logger.Debug("reconcile worker notified")
	default:
		w.logger.Debug("reconcile worker notification skipped (already pending)")
	}
}

// Start runs the worker until the context is canceled.
// This method blocks and should be called in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.logger.InfoContext(ctx, "reconcile worker started", "interval", w.interval, "prune", w.prune)

	var tick <-chan time.Time
	if w.interval > 0 {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "reconcile worker stopping")
			return
		case <-tick:
			w.runOnce(ctx)
		case <-w.notify:
			w.runOnce(ctx)
		}
	}
}

func (w *Worker) runOnce(ctx context.Context) {
	report, err := w.reconciler.Reconcile(ctx, w.prune)
	if err != nil {
		// Transient failures are retried on the next pass
		w.logger.WarnContext(ctx, "reconcile pass failed", "error", err)
		return
	}
	if w.onReport != nil {
		w.onReport(report)
	}
}
