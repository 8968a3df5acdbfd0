package llm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// defaultModel is used when the caller does not configure LLM_MODEL_ID.
const defaultModel = "gemini-2.5-flash"

// GenAIClient invokes Gemini through google.golang.org/genai for text
// generation, the Criteria Compiler's model-invocation backend.
type GenAIClient struct {
	client *genai.Client
	model  string
	logger zerolog.Logger
}

// NewGenAIClient constructs a GenAIClient against the Gemini API. model
// defaults to "gemini-2.5-flash" when empty.
func NewGenAIClient(ctx context.Context, apiKey, model string, logger zerolog.Logger) (*GenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("llm: GenAI API key is required")
	}
	if model == "" {
		model = defaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("llm: creating GenAI client: %w", err)
	}

	return &GenAIClient{client: client, model: model, logger: logger}, nil
}

// Generate sends systemPrompt and userPrompt to the configured model at the
// requested temperature and returns the raw text response.
func (c *GenAIClient) Generate(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, error) {
	temp := float32(temperature)
	contents := []*genai.Content{genai.NewContentFromText(userPrompt, genai.RoleUser)}

	c.logger.Debug().Str("model", c.model).Float64("temperature", temperature).Msg("llm: generating criterion tree")

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{
		Temperature:       &temp,
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("llm: GenAI generate failed")
		return "", fmt.Errorf("llm: GenAI generate failed: %w", err)
	}

	text := result.Text()
	if text == "" {
		return "", fmt.Errorf("llm: GenAI returned no text")
	}
	return text, nil
}

// Close releases the underlying GenAI client. GenAI's client has no
// explicit teardown today; Close exists so callers can defer it uniformly.
func (c *GenAIClient) Close() error {
	return nil
}

var _ Client = (*GenAIClient)(nil)
