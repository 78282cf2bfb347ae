package proposals

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/appello-dev/appello/internal/models"
)

// memKV is an in-memory KeyValueStorage.
type memKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string]string)}
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

func TestPromptStoreDefaultAndUpdate(t *testing.T) {
	kv := newMemKV()
	store := NewPromptStore(kv, arbor.NewLogger())
	ctx := context.Background()

	assert.Contains(t, store.Get(), "YOU ARE THE FREELANCER")

	require.NoError(t, store.Set(ctx, "Write terse proposals."))
	assert.Equal(t, "Write terse proposals.", store.Get())

	// A fresh store picks up the persisted prompt.
	reloaded := NewPromptStore(kv, arbor.NewLogger())
	assert.Equal(t, "Write terse proposals.", reloaded.Get())

	assert.Error(t, store.Set(ctx, ""))
}

func TestParseGeneratedContent(t *testing.T) {
	response := "Here is the proposal:\n```json\n" +
		`{"cover_letter": "I can build this.", "questions_and_answers": [{"question": "When can you start?", "answer": "Monday."}]}` +
		"\n```"

	content, err := parseGeneratedContent(response)
	require.NoError(t, err)
	assert.Equal(t, "I can build this.", content.CoverLetter)
	require.Len(t, content.Answers, 1)
	assert.Equal(t, "When can you start?", content.Answers[0].Question)
}

func TestParseGeneratedContentRejectsGarbage(t *testing.T) {
	_, err := parseGeneratedContent("no json here at all")
	assert.Error(t, err)

	_, err = parseGeneratedContent(`{"questions_and_answers": []}`)
	assert.Error(t, err)
}

func TestCollectTextIgnoresNonTextBlocks(t *testing.T) {
	blocks := []anthropic.ContentBlockUnion{
		{Type: "text", Text: "Hello, "},
		{Type: "tool_use"},
		{Type: "text", Text: "world."},
	}
	assert.Equal(t, "Hello, world.", collectText(blocks))

	assert.Empty(t, collectText(nil))
	assert.Empty(t, collectText([]anthropic.ContentBlockUnion{{Type: "tool_use"}}))
}

func TestDescribePosting(t *testing.T) {
	posting := &models.JobPosting{
		URL:   "https://example.com/jobs/1",
		Title: "Build a data pipeline",
		Detail: models.PostingDetail{
			Compensation: models.CompensationHourly,
			Rate:         "$30.00-$50.00",
			Summary:      "Nightly ETL into a warehouse.",
			Skills:       []string{"Python", "PostgreSQL"},
			Questions:    []string{"1. What is your experience?"},
		},
	}

	message := describePosting(posting)
	assert.Contains(t, message, "Job title: Build a data pipeline")
	assert.Contains(t, message, "Job type: Hourly")
	assert.Contains(t, message, "Rate: $30.00-$50.00")
	assert.Contains(t, message, "Skills: Python, PostgreSQL")
	assert.Contains(t, message, "Nightly ETL into a warehouse.")
	assert.Contains(t, message, "1. What is your experience?")
}
