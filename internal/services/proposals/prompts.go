package proposals

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/appello-dev/appello/internal/interfaces"
)

const promptKey = "proposal_prompt"

// defaultPrompt is the built-in system prompt, used until an operator
// stores a custom one.
const defaultPrompt = `YOU ARE THE FREELANCER.
You are writing a proposal as if you are the freelancer applying for the
job, not as a proposal writer or assistant. Adopt the role and expertise
of the professional the client is seeking. Write a persuasive,
human-sounding proposal that makes the client feel understood. Avoid
repeating the job post verbatim. Keep the cover letter between 100 and
200 words: one paragraph of alignment and credibility, one paragraph of
evidence from similar work, and a short call to action.

If the job includes client questions, answer each one. Match the
question text exactly and give tailored, concrete answers.

Respond with a single JSON object and nothing else:
{"cover_letter": "...", "questions_and_answers": [{"question": "...", "answer": "..."}]}
Omit questions_and_answers when the job has no questions.`

// PromptStore holds the active proposal system prompt. Reads come from
// an in-memory copy guarded by a RWMutex; writes go through to the
// key-value store so the prompt survives restarts.
type PromptStore struct {
	mu     sync.RWMutex
	kv     interfaces.KeyValueStorage
	logger arbor.ILogger
	active string
}

// NewPromptStore loads the persisted prompt, falling back to the
// built-in default.
func NewPromptStore(kv interfaces.KeyValueStorage, logger arbor.ILogger) *PromptStore {
	store := &PromptStore{kv: kv, logger: logger, active: defaultPrompt}

	if stored, err := kv.Get(context.Background(), promptKey); err == nil && stored != "" {
		store.active = stored
		logger.Debug().Int("length", len(stored)).Msg("Loaded stored proposal prompt")
	}
	return store
}

// Get returns the active prompt.
func (s *PromptStore) Get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Set persists a new prompt and makes it active. The in-memory copy
// only changes after the write succeeds.
func (s *PromptStore) Set(ctx context.Context, prompt string) error {
	if prompt == "" {
		return fmt.Errorf("prompt cannot be empty")
	}
	if err := s.kv.Set(ctx, promptKey, prompt); err != nil {
		return fmt.Errorf("failed to persist prompt: %w", err)
	}

	s.mu.Lock()
	s.active = prompt
	s.mu.Unlock()

	s.logger.Info().Int("length", len(prompt)).Msg("Proposal prompt updated")
	return nil
}
