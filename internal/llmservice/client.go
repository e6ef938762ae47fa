package llmservice

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"script-rag/internal/config"
	"script-rag/internal/models"
)

// Summaries run short and focused regardless of the chat settings.
const (
	summaryMaxChars    = 3000
	summaryMaxTokens   = 500
	summaryTemperature = 0.3
)

// Client talks to a chat completion API through the OpenAI-compatible
// protocol. The default target is DeepSeek; any compatible endpoint
// works via the base_url setting.
type Client struct {
	llm             *openai.LLM
	maxTokens       int
	temperature     float64
	maxContextChars int
}

// New builds a chat client. maxContextChars caps how many runes of
// retrieved passages are stuffed into one prompt.
func New(cfg *config.ChatConfig, maxContextChars int) (*Client, error) {
	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(strings.TrimPrefix(cfg.APIKey, "Bearer ")),
		openai.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("init chat client: %v: %w", err, models.ErrGeneration)
	}
	return &Client{
		llm:             llm,
		maxTokens:       cfg.MaxTokens,
		temperature:     cfg.Temperature,
		maxContextChars: maxContextChars,
	}, nil
}

// Answer generates a grounded reply to question. The retrieved passages
// become the prompt context and prior turns are replayed so follow-up
// questions resolve against the conversation. The caller decides what
// to do when passages is empty; Answer always calls the model.
func (c *Client) Answer(ctx context.Context, question string, passages []string, history []models.ChatTurn) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, models.ChatSystemPrompt),
	}
	for _, turn := range history {
		role := llms.ChatMessageTypeHuman
		if turn.Role == models.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, turn.Content))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, c.buildPrompt(question, passages)))

	log.Debug().Int("messages", len(messages)).Int("passages", len(passages)).Msg("requesting answer")
	resp, err := c.llm.GenerateContent(ctx, messages,
		llms.WithMaxTokens(c.maxTokens),
		llms.WithTemperature(c.temperature),
	)
	if err != nil {
		return "", fmt.Errorf("chat completion: %v: %w", err, models.ErrGeneration)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices: %w", models.ErrGeneration)
	}
	return resp.Choices[0].Content, nil
}

// buildPrompt fills the answer template with as many whole passages as
// fit the context budget. A passage is included in full or not at all,
// never truncated mid-text.
func (c *Client) buildPrompt(question string, passages []string) string {
	var kept []string
	used := 0
	for _, p := range passages {
		n := len([]rune(p))
		if used+n > c.maxContextChars {
			break
		}
		kept = append(kept, p)
		used += n
	}
	context := strings.Join(kept, "\n\n")
	return fmt.Sprintf(models.AnswerPromptTemplate, context, question)
}

// Summarize produces a short abstract of the given texts. Input is
// clipped to a fixed size so summaries of long documents stay cheap.
func (c *Client) Summarize(ctx context.Context, texts []string) (string, error) {
	joined := strings.Join(texts, "\n")
	if runes := []rune(joined); len(runes) > summaryMaxChars {
		joined = string(runes[:summaryMaxChars]) + "..."
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, models.SummarySystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, fmt.Sprintf(models.SummaryPromptTemplate, joined)),
	}
	resp, err := c.llm.GenerateContent(ctx, messages,
		llms.WithMaxTokens(summaryMaxTokens),
		llms.WithTemperature(summaryTemperature),
	)
	if err != nil {
		return "", fmt.Errorf("summary completion: %v: %w", err, models.ErrGeneration)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("summary completion returned no choices: %w", models.ErrGeneration)
	}
	return resp.Choices[0].Content, nil
}
