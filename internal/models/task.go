package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNoTask is returned by ClaimNext when no pending task is eligible.
var ErrNoTask = errors.New("no pending tasks")

// ErrTaskNotFound is returned by task lookups for an unknown ID.
var ErrTaskNotFound = errors.New("task not found")

// TaskType identifies which session a queued task is routed to.
type TaskType string

const (
	TaskTypeDiscover TaskType = "discover"
	TaskTypeApply    TaskType = "apply"
)

// TaskStatus is the closed set of queue states.
// Lifecycle: pending -> processing -> {done, failed}.
// pending|processing -> aborted_via_restart happens only during startup
// recovery. No transition leaves a terminal state.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusFailed     TaskStatus = "failed"
	// TaskStatusAborted marks work orphaned by a process crash. Kept
	// distinct from failed so operators can tell "crashed mid-flight"
	// from "ran and failed".
	TaskStatusAborted TaskStatus = "aborted_via_restart"
)

// IsTerminal reports whether no further transition is allowed.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusDone, TaskStatusFailed, TaskStatusAborted:
		return true
	}
	return false
}

// CanTransition reports whether the status may move to the target state.
func (s TaskStatus) CanTransition(to TaskStatus) bool {
	switch s {
	case TaskStatusPending:
		return to == TaskStatusProcessing || to == TaskStatusAborted
	case TaskStatusProcessing:
		return to == TaskStatusDone || to == TaskStatusFailed || to == TaskStatusAborted
	}
	return false
}

// Task is one unit of queued work. Rows are never deleted; terminal
// rows remain as an audit trail.
type Task struct {
	ID        string          `json:"id" badgerhold:"key"`
	Type      TaskType        `json:"task_type" badgerhold:"index"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Priority  int             `json:"priority"`
	Status    TaskStatus      `json:"status" badgerhold:"index"`
	Owner     string          `json:"owner,omitempty"`
	Message   string          `json:"message,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewTask creates a pending task. Payload contents are not validated
// here; a malformed payload surfaces as a failure at processing time.
func NewTask(taskType TaskType, payload json.RawMessage, priority int, owner string) *Task {
	now := time.Now()
	return &Task{
		ID:        uuid.New().String(),
		Type:      taskType,
		Payload:   payload,
		Priority:  priority,
		Status:    TaskStatusPending,
		Owner:     owner,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// DiscoverPayload carries no fields; a discover task always walks the
// configured category listing pages.
type DiscoverPayload struct{}

// ApplyPayload targets one posting for proposal submission.
type ApplyPayload struct {
	JobURL     string `json:"job_url"`
	ApprovedBy string `json:"approved_by,omitempty"`
}

// DecodeApplyPayload decodes and validates the payload of an apply task.
func (t *Task) DecodeApplyPayload() (*ApplyPayload, error) {
	if t.Type != TaskTypeApply {
		return nil, fmt.Errorf("task %s is %q, not %q", t.ID, t.Type, TaskTypeApply)
	}
	var p ApplyPayload
	if len(t.Payload) > 0 {
		if err := json.Unmarshal(t.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid apply payload: %w", err)
		}
	}
	if p.JobURL == "" {
		return nil, errors.New("apply payload missing job_url")
	}
	return &p, nil
}
