package proposals

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"github.com/appello-dev/appello/internal/common"
	"github.com/appello-dev/appello/internal/interfaces"
	"github.com/appello-dev/appello/internal/models"
)

// Generator produces submission content for stored postings using the
// Claude API. The posting's generation status tracks progress so the
// pipeline is observable from the jobs listing.
type Generator struct {
	config    common.ClaudeConfig
	postings  interfaces.PostingStorage
	proposals interfaces.ProposalStorage
	prompts   *PromptStore
	client    *anthropic.Client
	logger    arbor.ILogger
}

// generatedContent is the JSON shape the prompt instructs the model to
// return.
type generatedContent struct {
	CoverLetter string                  `json:"cover_letter"`
	Answers     []models.QuestionAnswer `json:"questions_and_answers"`
}

// NewGenerator creates a proposal generator. The API key must already
// be resolved into the config.
func NewGenerator(
	config common.ClaudeConfig,
	postings interfaces.PostingStorage,
	proposals interfaces.ProposalStorage,
	prompts *PromptStore,
	logger arbor.ILogger,
) (*Generator, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required (set ANTHROPIC_API_KEY or claude.api_key)")
	}

	client := anthropic.NewClient(option.WithAPIKey(config.APIKey))

	logger.Debug().
		Str("model", config.Model).
		Int("max_tokens", config.MaxTokens).
		Msg("Proposal generator initialized")

	return &Generator{
		config:    config,
		postings:  postings,
		proposals: proposals,
		prompts:   prompts,
		client:    &client,
		logger:    logger,
	}, nil
}

// Generate builds and stores a proposal for the posting at jobURL. The
// posting's generation status moves to processing, then to generated or
// failed.
func (g *Generator) Generate(ctx context.Context, jobURL string) (*models.Proposal, error) {
	posting, err := g.postings.GetByURL(ctx, jobURL)
	if err != nil {
		return nil, fmt.Errorf("failed to load posting: %w", err)
	}

	if err := g.postings.SetGenerationStatus(ctx, jobURL, models.GenerationProcessing); err != nil {
		return nil, fmt.Errorf("failed to mark posting processing: %w", err)
	}

	proposal, err := g.generate(ctx, posting)
	if err != nil {
		if statusErr := g.postings.SetGenerationStatus(ctx, jobURL, models.GenerationFailed); statusErr != nil {
			g.logger.Error().Err(statusErr).Str("job_url", jobURL).Msg("Failed to record generation failure")
		}
		return nil, err
	}

	if err := g.proposals.Insert(ctx, proposal); err != nil {
		return nil, fmt.Errorf("failed to store proposal: %w", err)
	}
	if err := g.postings.SetGenerationStatus(ctx, jobURL, models.GenerationGenerated); err != nil {
		return nil, fmt.Errorf("failed to mark posting generated: %w", err)
	}

	g.logger.Info().
		Str("job_url", jobURL).
		Int("cover_letter_length", len(proposal.CoverLetter)).
		Int("answers", len(proposal.Answers)).
		Msg("Proposal generated")
	return proposal, nil
}

func (g *Generator) generate(ctx context.Context, posting *models.JobPosting) (*models.Proposal, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	startTime := time.Now()
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.config.Model),
		MaxTokens: int64(g.config.MaxTokens),
		System: []anthropic.TextBlockParam{
			{Text: g.prompts.Get()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(describePosting(posting))),
		},
	}

	resp, err := g.client.Messages.New(timeoutCtx, params)
	if err != nil {
		return nil, fmt.Errorf("Claude API call failed: %w", err)
	}

	response := collectText(resp.Content)
	if response == "" {
		return nil, fmt.Errorf("no response generated from Claude API")
	}

	content, err := parseGeneratedContent(response)
	if err != nil {
		return nil, err
	}

	g.logger.Debug().
		Str("job_url", posting.URL).
		Dur("duration", time.Since(startTime)).
		Msg("Claude completion finished")

	return &models.Proposal{
		JobURL:      posting.URL,
		UID:         posting.UID,
		JobType:     posting.Detail.Compensation,
		Profile:     models.DefaultProfile,
		CoverLetter: strings.TrimSpace(content.CoverLetter),
		Answers:     content.Answers,
		CreatedAt:   time.Now(),
	}, nil
}

// collectText concatenates the text blocks of a completion, ignoring
// any other block types.
func collectText(blocks []anthropic.ContentBlockUnion) string {
	var text strings.Builder
	for _, block := range blocks {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return text.String()
}

// describePosting renders the posting as the user message the prompt
// operates on.
func describePosting(posting *models.JobPosting) string {
	detail := posting.Detail

	var b strings.Builder
	fmt.Fprintf(&b, "Job title: %s\n", posting.Title)
	fmt.Fprintf(&b, "Job type: %s\n", detail.Compensation)
	if detail.Rate != "" {
		fmt.Fprintf(&b, "Rate: %s\n", detail.Rate)
	}
	if detail.Duration != "" {
		fmt.Fprintf(&b, "Duration: %s\n", detail.Duration)
	}
	if len(detail.Skills) > 0 {
		fmt.Fprintf(&b, "Skills: %s\n", strings.Join(detail.Skills, ", "))
	}
	fmt.Fprintf(&b, "\nJob description:\n%s\n", detail.Summary)
	if len(detail.Questions) > 0 {
		fmt.Fprintf(&b, "\nClient questions:\n%s\n", strings.Join(detail.Questions, "\n"))
	}
	return b.String()
}

// parseGeneratedContent extracts the JSON object from the model output,
// tolerating surrounding prose or markdown fences.
func parseGeneratedContent(response string) (*generatedContent, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("response contains no JSON object")
	}

	var content generatedContent
	if err := json.Unmarshal([]byte(response[start:end+1]), &content); err != nil {
		return nil, fmt.Errorf("failed to decode generated content: %w", err)
	}
	if content.CoverLetter == "" {
		return nil, fmt.Errorf("generated content has no cover letter")
	}
	return &content, nil
}
