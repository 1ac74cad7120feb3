// Package jobs runs the retention cleanups on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const taskTimeout = 5 * time.Minute

// Cleaner deletes records older than a retention period and reports how many
// it removed.
type Cleaner interface {
	CleanupOld(ctx context.Context, retentionDays int) (int64, error)
}

type Task struct {
	Name          string
	RetentionDays int
	Cleaner       Cleaner
}

type Scheduler struct {
	cron   *cron.Cron
	tasks  []Task
	logger *zap.Logger
}

// NewScheduler registers tasks to run sequentially on schedule, a standard
// five-field cron expression evaluated in UTC.
func NewScheduler(schedule string, logger *zap.Logger, tasks ...Task) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		tasks:  tasks,
		logger: logger,
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.RunAll(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("cleanup scheduler started", zap.Int("tasks", len(s.tasks)))
}

// Stop prevents new runs and waits for a running one to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("cleanup still running at shutdown")
	}
}

// RunAll runs every task once. A failing task is logged and does not stop
// the others. It returns the rows removed per task name.
func (s *Scheduler) RunAll(ctx context.Context) map[string]int64 {
	removed := make(map[string]int64, len(s.tasks))
	for _, task := range s.tasks {
		tctx, cancel := context.WithTimeout(ctx, taskTimeout)
		start := time.Now()
		n, err := task.Cleaner.CleanupOld(tctx, task.RetentionDays)
		cancel()
		if err != nil {
			s.logger.Error("cleanup task failed", zap.String("task", task.Name), zap.Error(err))
			continue
		}
		removed[task.Name] = n
		s.logger.Info("cleanup task finished",
			zap.String("task", task.Name),
			zap.Int64("removed", n),
			zap.Duration("took", time.Since(start)),
		)
	}
	return removed
}
