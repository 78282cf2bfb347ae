package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/appello-dev/appello/internal/common"
	"github.com/appello-dev/appello/internal/interfaces"
	"github.com/appello-dev/appello/internal/models"
	"github.com/appello-dev/appello/internal/services/proposals"
)

// memTasks is an in-memory TaskStorage.
type memTasks struct {
	mu    sync.Mutex
	tasks map[string]*models.Task
}

func (m *memTasks) Enqueue(ctx context.Context, taskType models.TaskType, payload json.RawMessage, priority int, owner string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task := models.NewTask(taskType, payload, priority, owner)
	m.tasks[task.ID] = task
	return task.ID, nil
}

func (m *memTasks) ClaimNext(ctx context.Context) (*models.Task, error) {
	return nil, models.ErrNoTask
}

func (m *memTasks) SetStatus(ctx context.Context, taskID string, status models.TaskStatus, message string) error {
	return nil
}

func (m *memTasks) AbortOrphaned(ctx context.Context, taskType models.TaskType) (int, error) {
	return 0, nil
}

func (m *memTasks) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return nil, models.ErrTaskNotFound
	}
	return task, nil
}

func (m *memTasks) ListTasks(ctx context.Context, limit int) ([]*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var tasks []*models.Task
	for _, task := range m.tasks {
		tasks = append(tasks, task)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.After(tasks[j].CreatedAt) })
	return tasks, nil
}

func (m *memTasks) CountActive(ctx context.Context, taskType models.TaskType) (int, error) {
	return 0, nil
}

// memPostings is an in-memory PostingStorage.
type memPostings struct {
	mu       sync.Mutex
	postings map[string]*models.JobPosting
}

func (m *memPostings) Insert(ctx context.Context, posting *models.JobPosting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.postings[posting.URL]; ok {
		return models.ErrPostingExists
	}
	m.postings[posting.URL] = posting
	return nil
}

func (m *memPostings) GetByURL(ctx context.Context, jobURL string) (*models.JobPosting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	posting, ok := m.postings[jobURL]
	if !ok {
		return nil, fmt.Errorf("posting %s not found", jobURL)
	}
	return posting, nil
}

func (m *memPostings) SetGenerationStatus(ctx context.Context, jobURL string, status string) error {
	return nil
}

func (m *memPostings) List(ctx context.Context, limit int) ([]*models.JobPosting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var postings []*models.JobPosting
	for _, posting := range m.postings {
		postings = append(postings, posting)
	}
	return postings, nil
}

// memProposals is an in-memory ProposalStorage.
type memProposals struct {
	mu        sync.Mutex
	proposals map[string]*models.Proposal
}

func (m *memProposals) Insert(ctx context.Context, proposal *models.Proposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.proposals[proposal.JobURL] = proposal
	return nil
}

func (m *memProposals) GetByURL(ctx context.Context, jobURL string) (*models.Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	proposal, ok := m.proposals[jobURL]
	if !ok {
		return nil, models.ErrProposalNotFound
	}
	return proposal, nil
}

func (m *memProposals) MarkApplied(ctx context.Context, jobURL string, approvedBy string) error {
	return nil
}

func (m *memProposals) List(ctx context.Context, limit int) ([]*models.Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var proposals []*models.Proposal
	for _, proposal := range m.proposals {
		proposals = append(proposals, proposal)
	}
	return proposals, nil
}

// memKV is an in-memory KeyValueStorage.
type memKV struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memKV) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.data[key]
	if !ok {
		return "", fmt.Errorf("key %s not found", key)
	}
	return value, nil
}

func (m *memKV) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

// memStorage aggregates the in-memory stores into a StorageManager.
type memStorage struct {
	tasks     *memTasks
	postings  *memPostings
	proposals *memProposals
	kv        *memKV
}

func newMemStorage() *memStorage {
	return &memStorage{
		tasks:     &memTasks{tasks: make(map[string]*models.Task)},
		postings:  &memPostings{postings: make(map[string]*models.JobPosting)},
		proposals: &memProposals{proposals: make(map[string]*models.Proposal)},
		kv:        &memKV{data: make(map[string]string)},
	}
}

func (m *memStorage) TaskStorage() interfaces.TaskStorage         { return m.tasks }
func (m *memStorage) PostingStorage() interfaces.PostingStorage   { return m.postings }
func (m *memStorage) ProposalStorage() interfaces.ProposalStorage { return m.proposals }
func (m *memStorage) KeyValueStorage() interfaces.KeyValueStorage { return m.kv }
func (m *memStorage) Close() error                                { return nil }

func newTestServer(t *testing.T) (*Server, *memStorage) {
	t.Helper()
	storage := newMemStorage()
	logger := arbor.NewLogger()
	prompts := proposals.NewPromptStore(storage.kv, logger)
	config := common.NewDefaultConfig()
	return New(config, storage, nil, prompts, logger), storage
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	recorder := httptest.NewRecorder()
	s.withMiddleware(s.setupRoutes()).ServeHTTP(recorder, req)
	return recorder
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	resp := doRequest(s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "healthy")
}

func TestEnqueueTaskEndpoint(t *testing.T) {
	s, storage := newTestServer(t)

	resp := doRequest(s, http.MethodPost, "/api/tasks", `{"type": "discover"}`)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	var created struct {
		TaskID string `json:"task_id"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))

	task, err := storage.tasks.GetTask(context.Background(), created.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskTypeDiscover, task.Type)
	assert.Equal(t, models.TaskStatusPending, task.Status)
}

func TestEnqueueRejectsBadApplyPayload(t *testing.T) {
	s, _ := newTestServer(t)

	// Missing job_url.
	resp := doRequest(s, http.MethodPost, "/api/tasks", `{"type": "apply", "payload": {}}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	// Unknown type.
	resp = doRequest(s, http.MethodPost, "/api/tasks", `{"type": "defragment"}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	// Valid apply payload is accepted.
	resp = doRequest(s, http.MethodPost, "/api/tasks",
		`{"type": "apply", "payload": {"job_url": "https://example.com/jobs/1"}, "priority": 5}`)
	assert.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
}

func TestGetTaskByID(t *testing.T) {
	s, storage := newTestServer(t)

	taskID, err := storage.tasks.Enqueue(context.Background(), models.TaskTypeDiscover, nil, 0, "tester")
	require.NoError(t, err)

	resp := doRequest(s, http.MethodGet, "/api/tasks/"+taskID, "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), taskID)

	resp = doRequest(s, http.MethodGet, "/api/tasks/nonexistent", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestListJobsEndpoint(t *testing.T) {
	s, storage := newTestServer(t)

	require.NoError(t, storage.postings.Insert(context.Background(), &models.JobPosting{
		URL:              "https://example.com/jobs/1",
		UID:              101,
		Title:            "Build a data pipeline",
		GenerationStatus: models.GenerationPending,
		DiscoveredAt:     time.Now(),
	}))

	resp := doRequest(s, http.MethodGet, "/api/jobs", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "Build a data pipeline")
}

func TestGenerateUnavailableWithoutGenerator(t *testing.T) {
	s, storage := newTestServer(t)

	require.NoError(t, storage.postings.Insert(context.Background(), &models.JobPosting{
		URL: "https://example.com/jobs/1",
		UID: 101,
	}))

	resp := doRequest(s, http.MethodPost, "/api/proposals/generate", `{"job_url": "https://example.com/jobs/1"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestPromptEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	resp := doRequest(s, http.MethodGet, "/api/prompt", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "FREELANCER")

	resp = doRequest(s, http.MethodPut, "/api/prompt", `{"prompt": "Write terse proposals."}`)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = doRequest(s, http.MethodGet, "/api/prompt", "")
	assert.Contains(t, resp.Body.String(), "terse")
}
