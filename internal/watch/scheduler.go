package watch

import (
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	ferrors "git.home.luguber.info/inful/bazelide/internal/foundation/errors"
)

// Scheduler wraps gocron for the optional full-refresh interval: a periodic
// trigger that forces a regeneration even when no build file changed, to
// pick up drift the watcher cannot see (generated BUILD files, external
// repository updates).
type Scheduler struct {
	scheduler gocron.Scheduler
}

// NewScheduler creates an idle scheduler.
func NewScheduler() (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryInternal, "failed to create scheduler").Build()
	}
	return &Scheduler{scheduler: s}, nil
}

// SchedulePeriodicRefresh registers a trigger firing every interval.
func (s *Scheduler) SchedulePeriodicRefresh(interval time.Duration, trigger Trigger) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			slog.Info("Periodic full refresh trigger", slog.Duration("interval", interval))
			trigger.Trigger()
		}),
		gocron.WithName("full-refresh"),
	)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "failed to schedule periodic refresh").Build()
	}
	return nil
}

// Start begins executing scheduled jobs.
func (s *Scheduler) Start() {
	s.scheduler.Start()
}

// Stop shuts the scheduler down, waiting for a running job to finish.
func (s *Scheduler) Stop() error {
	return s.scheduler.Shutdown()
}
