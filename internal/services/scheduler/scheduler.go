package scheduler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/appello-dev/appello/internal/common"
	"github.com/appello-dev/appello/internal/interfaces"
	"github.com/appello-dev/appello/internal/models"
)

// Scheduler enqueues a discover task on a cron schedule. A tick that
// finds a discover task already pending or processing enqueues nothing;
// the queue never accumulates redundant walks.
type Scheduler struct {
	config common.SchedulerConfig
	tasks  interfaces.TaskStorage
	cron   *cron.Cron
	logger arbor.ILogger
}

func New(config common.SchedulerConfig, tasks interfaces.TaskStorage, logger arbor.ILogger) *Scheduler {
	return &Scheduler{
		config: config,
		tasks:  tasks,
		cron:   cron.New(),
		logger: logger,
	}
}

// Start registers the cron entry and begins ticking. Disabled
// schedulers start nothing and Stop remains safe to call.
func (s *Scheduler) Start() error {
	if !s.config.Enabled {
		s.logger.Info().Msg("Scheduler disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(s.config.Schedule, s.tick); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", s.config.Schedule, err)
	}
	s.cron.Start()

	s.logger.Info().
		Str("schedule", s.config.Schedule).
		Msg("Scheduler started")
	return nil
}

// Stop halts the cron loop and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Scheduler stopped")
}

func (s *Scheduler) tick() {
	ctx := context.Background()

	active, err := s.tasks.CountActive(ctx, models.TaskTypeDiscover)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to count active discover tasks")
		return
	}
	if active > 0 {
		s.logger.Debug().Int("active", active).Msg("Discover task already queued, skipping tick")
		return
	}

	payload, _ := json.Marshal(models.DiscoverPayload{})
	taskID, err := s.tasks.Enqueue(ctx, models.TaskTypeDiscover, payload, 0, "scheduler")
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to enqueue scheduled discover task")
		return
	}
	s.logger.Info().Str("task_id", taskID).Msg("Scheduled discover task enqueued")
}
