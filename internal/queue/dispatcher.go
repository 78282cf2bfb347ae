package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/appello-dev/appello/internal/interfaces"
	"github.com/appello-dev/appello/internal/models"
)

// Result is a handler's terminal outcome for one task. Status must be
// done or failed; Message is the human-readable reason shown on task
// inspection.
type Result struct {
	Status  models.TaskStatus
	Message string
}

// Handler processes one claimed task. Returning an error is equivalent
// to a failed Result; panics are recovered by the dispatcher and also
// converted to failure.
type Handler func(ctx context.Context, task *models.Task) (Result, error)

// Dispatcher is the single worker loop: it continuously claims the next
// eligible task and routes it to the handler registered for the task
// type. Tasks are processed one at a time, sequentially; there is no
// intra-process parallel task execution.
type Dispatcher struct {
	tasks        interfaces.TaskStorage
	handlers     map[models.TaskType]Handler
	pollInterval time.Duration
	taskTimeout  time.Duration
	logger       arbor.ILogger
	cancel       context.CancelFunc
	done         chan struct{}
}

// NewDispatcher creates a dispatcher polling the given task storage.
func NewDispatcher(tasks interfaces.TaskStorage, pollInterval, taskTimeout time.Duration, logger arbor.ILogger) *Dispatcher {
	return &Dispatcher{
		tasks:        tasks,
		handlers:     make(map[models.TaskType]Handler),
		pollInterval: pollInterval,
		taskTimeout:  taskTimeout,
		logger:       logger,
	}
}

// RegisterHandler registers the handler for a task type. Must be called
// before Start.
func (d *Dispatcher) RegisterHandler(taskType models.TaskType, handler Handler) {
	d.handlers[taskType] = handler
	d.logger.Debug().
		Str("task_type", string(taskType)).
		Msg("Task handler registered")
}

// Start launches the worker loop.
func (d *Dispatcher) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})

	d.logger.Info().
		Dur("poll_interval", d.pollInterval).
		Int("handlers", len(d.handlers)).
		Msg("Dispatcher started")

	go d.run(loopCtx)
}

// Stop cancels the loop and waits for the current iteration to finish.
// A task already dispatched runs to completion; there is no mid-task
// cancellation beyond the per-task timeout.
func (d *Dispatcher) Stop() {
	if d.cancel == nil {
		return
	}
	d.cancel()
	<-d.done
	d.logger.Info().Msg("Dispatcher stopped")
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)

	for {
		d.processNext(ctx)

		// Sleep after every iteration, whether or not a task ran. This
		// bounds both idle polling cost and pickup latency.
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.pollInterval):
		}
	}
}

// processNext claims and dispatches at most one task. A handler failure
// or panic never crashes the loop; it is logged and converted into a
// failed status write so nothing is left in processing outside of a
// genuine process crash.
func (d *Dispatcher) processNext(ctx context.Context) {
	task, err := d.tasks.ClaimNext(ctx)
	if err != nil {
		if err != models.ErrNoTask {
			d.logger.Warn().Err(err).Msg("Failed to claim next task")
		}
		return
	}

	logger := d.logger.WithCorrelationId(task.ID)
	logger.Info().
		Str("task_type", string(task.Type)).
		Int("priority", task.Priority).
		Str("owner", task.Owner).
		Msg("Processing task")

	handler, ok := d.handlers[task.Type]
	if !ok {
		// Unknown types still reach a terminal status rather than being
		// left in processing forever.
		logger.Error().
			Str("task_type", string(task.Type)).
			Msg("No handler registered for task type")
		d.writeStatus(ctx, task.ID, models.TaskStatusFailed, fmt.Sprintf("unknown task type %q", task.Type))
		return
	}

	startTime := time.Now()
	result := d.dispatch(ctx, handler, task)
	duration := time.Since(startTime)

	switch result.Status {
	case models.TaskStatusDone:
		logger.Info().
			Str("task_type", string(task.Type)).
			Dur("duration", duration).
			Str("message", result.Message).
			Msg("Task completed")
	default:
		logger.Error().
			Str("task_type", string(task.Type)).
			Dur("duration", duration).
			Str("message", result.Message).
			Msg("Task failed")
	}

	d.writeStatus(ctx, task.ID, result.Status, result.Message)
}

// dispatch runs the handler with a per-task timeout and panic recovery.
func (d *Dispatcher) dispatch(ctx context.Context, handler Handler, task *models.Task) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().
				Str("task_id", task.ID).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Task handler panicked")
			result = Result{
				Status:  models.TaskStatusFailed,
				Message: fmt.Sprintf("handler panic: %v", r),
			}
		}
	}()

	taskCtx, cancelTask := context.WithTimeout(ctx, d.taskTimeout)
	defer cancelTask()

	result, err := handler(taskCtx, task)
	if err != nil {
		return Result{Status: models.TaskStatusFailed, Message: err.Error()}
	}
	if result.Status == "" {
		result.Status = models.TaskStatusDone
	}
	return result
}

func (d *Dispatcher) writeStatus(ctx context.Context, taskID string, status models.TaskStatus, message string) {
	if err := d.tasks.SetStatus(ctx, taskID, status, message); err != nil {
		d.logger.Error().
			Err(err).
			Str("task_id", taskID).
			Str("status", string(status)).
			Msg("Failed to write terminal task status")
	}
}
