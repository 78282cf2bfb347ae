package interfaces

import (
	"context"
	"encoding/json"

	"github.com/appello-dev/appello/internal/models"
)

// TaskStorage is the durable FIFO-within-priority queue.
type TaskStorage interface {
	// Enqueue inserts a pending task and returns its ID. Payload
	// contents are not validated here.
	Enqueue(ctx context.Context, taskType models.TaskType, payload json.RawMessage, priority int, owner string) (string, error)

	// ClaimNext atomically moves the highest-priority, oldest-created
	// pending task to processing and returns it. Returns
	// models.ErrNoTask when the queue is empty. A task is never
	// returned to two concurrent callers.
	ClaimNext(ctx context.Context) (*models.Task, error)

	// SetStatus writes a status transition and refreshes UpdatedAt.
	// Transitions out of terminal states are rejected.
	SetStatus(ctx context.Context, taskID string, status models.TaskStatus, message string) error

	// AbortOrphaned transitions every pending or processing task of the
	// given type to aborted_via_restart and returns the affected count.
	// Invoked exactly once during startup, before the dispatcher polls.
	AbortOrphaned(ctx context.Context, taskType models.TaskType) (int, error)

	GetTask(ctx context.Context, taskID string) (*models.Task, error)
	ListTasks(ctx context.Context, limit int) ([]*models.Task, error)
	CountActive(ctx context.Context, taskType models.TaskType) (int, error)
}

// PostingStorage persists discovered postings.
type PostingStorage interface {
	// Insert stores a new posting. A duplicate URL or UID returns
	// models.ErrPostingExists, which callers treat as success.
	Insert(ctx context.Context, posting *models.JobPosting) error

	GetByURL(ctx context.Context, jobURL string) (*models.JobPosting, error)
	SetGenerationStatus(ctx context.Context, jobURL string, status string) error
	List(ctx context.Context, limit int) ([]*models.JobPosting, error)
}

// ProposalStorage persists generated proposals, 1:1 with postings.
type ProposalStorage interface {
	Insert(ctx context.Context, proposal *models.Proposal) error
	GetByURL(ctx context.Context, jobURL string) (*models.Proposal, error)
	// MarkApplied flips the applied flag and records who approved the
	// submission.
	MarkApplied(ctx context.Context, jobURL string, approvedBy string) error
	List(ctx context.Context, limit int) ([]*models.Proposal, error)
}

// KeyValueStorage holds small mutable settings such as the active
// proposal prompt.
type KeyValueStorage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// StorageManager aggregates the storage backends behind one lifecycle.
type StorageManager interface {
	TaskStorage() TaskStorage
	PostingStorage() PostingStorage
	ProposalStorage() ProposalStorage
	KeyValueStorage() KeyValueStorage
	Close() error
}
