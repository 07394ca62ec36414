package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/richxcame/tartanilla-earnings/internal/breakeven"
	"go.uber.org/zap"
)

const runTimeout = 5 * time.Minute

// SnapshotRunner writes the breakeven snapshots that are due.
type SnapshotRunner interface {
	Run(ctx context.Context, onlyDriver string) []breakeven.JobResult
}

// Worker runs breakeven snapshots on a fixed interval.
type Worker struct {
	runner   SnapshotRunner
	interval time.Duration
	logger   *zap.Logger
	done     chan struct{}
	stopOnce sync.Once
}

// NewWorker creates a new snapshot worker
func NewWorker(runner SnapshotRunner, interval time.Duration, logger *zap.Logger) *Worker {
	return &Worker{
		runner:   runner,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start runs a snapshot immediately and then on every tick until ctx is
// cancelled or Stop is called. It blocks.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Starting breakeven snapshot worker", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.runOnce(ctx)

	for {
		select {
		case <-ticker.C:
			w.runOnce(ctx)
		case <-ctx.Done():
			w.logger.Info("Snapshot worker stopped")
			return
		case <-w.done:
			w.logger.Info("Snapshot worker shutdown requested")
			return
		}
	}
}

// Stop gracefully stops the worker. It is safe to call more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Worker) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	for _, result := range w.runner.Run(runCtx, "") {
		if result.Error != "" {
			w.logger.Error("Breakeven snapshot failed",
				zap.String("period_type", string(result.PeriodType)),
				zap.String("error", result.Error))
			continue
		}
		w.logger.Info("Breakeven snapshot written",
			zap.String("period_type", string(result.PeriodType)),
			zap.Int("rows", result.Count))
	}
}
