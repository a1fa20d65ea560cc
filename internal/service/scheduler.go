package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// BatchRunner is what the scheduler triggers on each tick.
type BatchRunner interface {
	RefreshAll(ctx context.Context) (BatchReport, error)
}

// Scheduler runs the batch refresh on a fixed interval. It is an explicit
// handle owned by the server: Start is idempotent and Stop waits for the
// loop to exit.
type Scheduler struct {
	batch    BatchRunner
	interval time.Duration
	logger   *slog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewScheduler returns a scheduler; an interval of zero or less disables it.
func NewScheduler(batch BatchRunner, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		batch:    batch,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start launches the loop. Calls after the first are no-ops.
func (s *Scheduler) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		if s.interval <= 0 {
			s.logger.Info("scheduler disabled")
			close(s.done)
			return
		}

		ctx, s.cancel = context.WithCancel(ctx)
		s.logger.Info("scheduler started", slog.Duration("interval", s.interval))
		go s.loop(ctx)
	})
}

// Stop cancels a running batch and waits for the loop. It is safe to call
// without Start and more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		// A Stop before Start must not leave a later Start running.
		s.startOnce.Do(func() { close(s.done) })
		if s.cancel != nil {
			s.cancel()
		}
		<-s.done
		s.logger.Info("scheduler stopped")
	})
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := s.batch.RefreshAll(ctx)
			if err != nil {
				s.logger.Warn("scheduled batch refresh failed",
					slog.String("runID", report.RunID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
