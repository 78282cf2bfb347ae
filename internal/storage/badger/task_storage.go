package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/appello-dev/appello/internal/interfaces"
	"github.com/appello-dev/appello/internal/models"
)

// TaskStorage implements the durable priority queue on Badger.
//
// Claiming discipline: the claim mutex serializes select-and-mark so a
// task is never handed to two concurrent claimants; readers that only
// inspect rows never take it, so claimants are never blocked behind a
// mere inspection. Ordering across concurrent claimants is advisory:
// each still gets a distinct task.
type TaskStorage struct {
	db      *BadgerDB
	logger  arbor.ILogger
	claimMu sync.Mutex
}

// NewTaskStorage creates a task storage instance.
func NewTaskStorage(db *BadgerDB, logger arbor.ILogger) interfaces.TaskStorage {
	return &TaskStorage{
		db:     db,
		logger: logger,
	}
}

func (s *TaskStorage) Enqueue(ctx context.Context, taskType models.TaskType, payload json.RawMessage, priority int, owner string) (string, error) {
	task := models.NewTask(taskType, payload, priority, owner)

	if err := s.db.Store().Insert(task.ID, task); err != nil {
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}

	s.logger.Info().
		Str("task_id", task.ID).
		Str("task_type", string(taskType)).
		Int("priority", priority).
		Msg("Task enqueued")
	return task.ID, nil
}

func (s *TaskStorage) ClaimNext(ctx context.Context) (*models.Task, error) {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()

	var pending []models.Task
	err := s.db.Store().Find(&pending, badgerhold.Where("Status").Eq(models.TaskStatusPending))
	if err != nil {
		return nil, fmt.Errorf("failed to query pending tasks: %w", err)
	}
	if len(pending) == 0 {
		return nil, models.ErrNoTask
	}

	// Priority descending, creation time ascending for ties.
	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].Priority != pending[j].Priority {
			return pending[i].Priority > pending[j].Priority
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})

	task := pending[0]
	task.Status = models.TaskStatusProcessing
	task.UpdatedAt = time.Now()

	if err := s.db.Store().Update(task.ID, &task); err != nil {
		return nil, fmt.Errorf("failed to claim task %s: %w", task.ID, err)
	}

	s.logger.Debug().
		Str("task_id", task.ID).
		Str("task_type", string(task.Type)).
		Int("priority", task.Priority).
		Msg("Task claimed")
	return &task, nil
}

func (s *TaskStorage) SetStatus(ctx context.Context, taskID string, status models.TaskStatus, message string) error {
	var task models.Task
	if err := s.db.Store().Get(taskID, &task); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("%w: %s", models.ErrTaskNotFound, taskID)
		}
		return fmt.Errorf("failed to get task %s: %w", taskID, err)
	}

	if task.Status == status {
		return nil
	}
	if !task.Status.CanTransition(status) {
		return fmt.Errorf("invalid task transition %s -> %s for %s", task.Status, status, taskID)
	}

	task.Status = status
	if message != "" {
		task.Message = message
	}
	task.UpdatedAt = time.Now()

	if err := s.db.Store().Update(taskID, &task); err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}

	s.logger.Info().
		Str("task_id", taskID).
		Str("status", string(status)).
		Msg("Task status updated")
	return nil
}

// AbortOrphaned marks pending/processing tasks of the given type as
// aborted_via_restart. This is the only crash-recovery mechanism:
// orphaned in-flight work is neither silently retried nor silently
// lost, it is made visible and excluded from future claims.
func (s *TaskStorage) AbortOrphaned(ctx context.Context, taskType models.TaskType) (int, error) {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()

	var stuck []models.Task
	err := s.db.Store().Find(&stuck, badgerhold.Where("Type").Eq(taskType).
		And("Status").In(models.TaskStatusPending, models.TaskStatusProcessing))
	if err != nil {
		return 0, fmt.Errorf("failed to find orphaned tasks: %w", err)
	}

	count := 0
	for i := range stuck {
		stuck[i].Status = models.TaskStatusAborted
		stuck[i].Message = "aborted by startup recovery"
		stuck[i].UpdatedAt = time.Now()
		if err := s.db.Store().Update(stuck[i].ID, &stuck[i]); err != nil {
			s.logger.Warn().Err(err).Str("task_id", stuck[i].ID).Msg("Failed to abort orphaned task")
			continue
		}
		count++
	}

	if count > 0 {
		s.logger.Info().
			Str("task_type", string(taskType)).
			Int("aborted", count).
			Msg("Orphaned tasks aborted on restart")
	}
	return count, nil
}

func (s *TaskStorage) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	var task models.Task
	if err := s.db.Store().Get(taskID, &task); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("%w: %s", models.ErrTaskNotFound, taskID)
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &task, nil
}

func (s *TaskStorage) ListTasks(ctx context.Context, limit int) ([]*models.Task, error) {
	var tasks []models.Task
	if err := s.db.Store().Find(&tasks, nil); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	// Newest first for inspection.
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
	if limit > 0 && limit < len(tasks) {
		tasks = tasks[:limit]
	}

	result := make([]*models.Task, len(tasks))
	for i := range tasks {
		result[i] = &tasks[i]
	}
	return result, nil
}

func (s *TaskStorage) CountActive(ctx context.Context, taskType models.TaskType) (int, error) {
	count, err := s.db.Store().Count(&models.Task{}, badgerhold.Where("Type").Eq(taskType).
		And("Status").In(models.TaskStatusPending, models.TaskStatusProcessing))
	if err != nil {
		return 0, fmt.Errorf("failed to count active tasks: %w", err)
	}
	return int(count), nil
}
