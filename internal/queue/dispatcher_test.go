package queue

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/appello-dev/appello/internal/models"
)

// memTaskStorage is an in-memory TaskStorage for dispatcher tests.
type memTaskStorage struct {
	mu    sync.Mutex
	tasks map[string]*models.Task
}

func newMemTaskStorage() *memTaskStorage {
	return &memTaskStorage{tasks: make(map[string]*models.Task)}
}

func (m *memTaskStorage) Enqueue(ctx context.Context, taskType models.TaskType, payload json.RawMessage, priority int, owner string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task := models.NewTask(taskType, payload, priority, owner)
	task.ID = uuid.New().String()
	m.tasks[task.ID] = task
	return task.ID, nil
}

func (m *memTaskStorage) ClaimNext(ctx context.Context) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pending []*models.Task
	for _, task := range m.tasks {
		if task.Status == models.TaskStatusPending {
			pending = append(pending, task)
		}
	}
	if len(pending) == 0 {
		return nil, models.ErrNoTask
	}
	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].Priority != pending[j].Priority {
			return pending[i].Priority > pending[j].Priority
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	pending[0].Status = models.TaskStatusProcessing
	copied := *pending[0]
	return &copied, nil
}

func (m *memTaskStorage) SetStatus(ctx context.Context, taskID string, status models.TaskStatus, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task := m.tasks[taskID]
	if task == nil {
		return models.ErrNoTask
	}
	task.Status = status
	task.Message = message
	task.UpdatedAt = time.Now()
	return nil
}

func (m *memTaskStorage) AbortOrphaned(ctx context.Context, taskType models.TaskType) (int, error) {
	return 0, nil
}

func (m *memTaskStorage) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task := m.tasks[taskID]
	if task == nil {
		return nil, models.ErrNoTask
	}
	copied := *task
	return &copied, nil
}

func (m *memTaskStorage) ListTasks(ctx context.Context, limit int) ([]*models.Task, error) {
	return nil, nil
}

func (m *memTaskStorage) CountActive(ctx context.Context, taskType models.TaskType) (int, error) {
	return 0, nil
}

func waitForStatus(t *testing.T, storage *memTaskStorage, taskID string, want models.TaskStatus) *models.Task {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		task, err := storage.GetTask(context.Background(), taskID)
		require.NoError(t, err)
		if task.Status == want {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s never reached status %s", taskID, want)
	return nil
}

func newTestDispatcher(storage *memTaskStorage) *Dispatcher {
	return NewDispatcher(storage, 10*time.Millisecond, time.Second, arbor.NewLogger())
}

func TestDispatcherRoutesByType(t *testing.T) {
	storage := newMemTaskStorage()
	dispatcher := newTestDispatcher(storage)

	var handled sync.Map
	dispatcher.RegisterHandler(models.TaskTypeDiscover, func(ctx context.Context, task *models.Task) (Result, error) {
		handled.Store(task.ID, true)
		return Result{Status: models.TaskStatusDone, Message: "2 new postings"}, nil
	})

	id, err := storage.Enqueue(context.Background(), models.TaskTypeDiscover, nil, 0, "")
	require.NoError(t, err)

	dispatcher.Start(context.Background())
	defer dispatcher.Stop()

	task := waitForStatus(t, storage, id, models.TaskStatusDone)
	assert.Equal(t, "2 new postings", task.Message)
	_, ok := handled.Load(id)
	assert.True(t, ok)
}

func TestDispatcherHandlerErrorMarksFailed(t *testing.T) {
	storage := newMemTaskStorage()
	dispatcher := newTestDispatcher(storage)

	dispatcher.RegisterHandler(models.TaskTypeApply, func(ctx context.Context, task *models.Task) (Result, error) {
		return Result{}, assert.AnError
	})

	id, err := storage.Enqueue(context.Background(), models.TaskTypeApply, nil, 0, "")
	require.NoError(t, err)

	dispatcher.Start(context.Background())
	defer dispatcher.Stop()

	task := waitForStatus(t, storage, id, models.TaskStatusFailed)
	assert.Equal(t, assert.AnError.Error(), task.Message)
}

func TestDispatcherRecoversFromPanic(t *testing.T) {
	storage := newMemTaskStorage()
	dispatcher := newTestDispatcher(storage)

	dispatcher.RegisterHandler(models.TaskTypeDiscover, func(ctx context.Context, task *models.Task) (Result, error) {
		panic("selector vanished")
	})

	first, err := storage.Enqueue(context.Background(), models.TaskTypeDiscover, nil, 0, "")
	require.NoError(t, err)
	second, err := storage.Enqueue(context.Background(), models.TaskTypeDiscover, nil, 0, "")
	require.NoError(t, err)

	dispatcher.Start(context.Background())
	defer dispatcher.Stop()

	// Both tasks reach a terminal state: the panic is converted to a
	// failure and the loop keeps going.
	task := waitForStatus(t, storage, first, models.TaskStatusFailed)
	assert.Contains(t, task.Message, "handler panic")
	waitForStatus(t, storage, second, models.TaskStatusFailed)
}

func TestDispatcherUnknownTypeFailsTerminally(t *testing.T) {
	storage := newMemTaskStorage()
	dispatcher := newTestDispatcher(storage)

	id, err := storage.Enqueue(context.Background(), models.TaskType("defragment"), nil, 0, "")
	require.NoError(t, err)

	dispatcher.Start(context.Background())
	defer dispatcher.Stop()

	task := waitForStatus(t, storage, id, models.TaskStatusFailed)
	assert.Contains(t, task.Message, "unknown task type")
}
