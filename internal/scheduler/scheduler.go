package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// CacheMaintainer is the part of the cache the background jobs drive.
type CacheMaintainer interface {
	Sweep() int
	CheckBackend(ctx context.Context) error
}

// Scheduler runs the cache's background jobs: the periodic in-memory sweep
// and the durable-backend health probe.
type Scheduler struct {
	scheduler      *gocron.Scheduler
	cache          CacheMaintainer
	sweepInterval  time.Duration
	healthInterval time.Duration
	logger         *slog.Logger
}

// New creates a new Scheduler.
func New(cache CacheMaintainer, sweepInterval, healthInterval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler:      s,
		cache:          cache,
		sweepInterval:  sweepInterval,
		healthInterval: healthInterval,
		logger:         logger,
	}
}

// Start schedules both jobs and starts the underlying scheduler. The health
// probe runs immediately so the cache picks its backend before serving traffic.
func (s *Scheduler) Start() error {
	if s.sweepInterval <= 0 {
		s.sweepInterval = time.Hour
	}
	if s.healthInterval <= 0 {
		s.healthInterval = 30 * time.Second
	}

	_, err := s.scheduler.Every(s.sweepInterval).WaitForSchedule().Tag("cache-sweep").Do(func() {
		removed := s.cache.Sweep()
		s.logger.Debug("scheduler: cache sweep completed", "removed", removed)
	})
	if err != nil {
		return err
	}

	_, err = s.scheduler.Every(s.healthInterval).Tag("cache-health").Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.cache.CheckBackend(ctx); err != nil {
			s.logger.Debug("scheduler: durable cache backend check failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// Jobs returns the number of scheduled jobs.
func (s *Scheduler) Jobs() int {
	return len(s.scheduler.Jobs())
}
