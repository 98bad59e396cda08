package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"tcgen/internal/logging"
)

// GeminiConfig configures the Gemini client.
type GeminiConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// GeminiClient generates completions through the Google GenAI SDK.
type GeminiClient struct {
	client    *genai.Client
	model     string
	maxTokens int
	timeout   time.Duration
}

// NewGeminiClient builds a Gemini-backed client.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key not configured")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 20000
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiClient{client: client, model: model, maxTokens: maxTokens, timeout: timeout}, nil
}

// Model returns the configured model id.
func (c *GeminiClient) Model() string {
	return c.model
}

// Generate sends the instructions as the system instruction and the block
// input as user content, with temperature pinned to zero.
func (c *GeminiClient) Generate(ctx context.Context, instructions, input string) (string, Usage, error) {
	ctx, cancel := callContext(ctx, c.timeout)
	defer cancel()

	logging.LLMDebug("[Gemini] Generate: model=%s system_len=%d input_len=%d",
		c.model, len(instructions), len(input))

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0),
		MaxOutputTokens: int32(c.maxTokens),
	}
	if strings.TrimSpace(instructions) != "" {
		cfg.SystemInstruction = genai.NewContentFromText(instructions, genai.RoleUser)
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(input), cfg)
	if err != nil {
		logging.LLMError("[Gemini] Generate failed: %v", err)
		return "", Usage{}, fmt.Errorf("GenAI generate failed: %w", err)
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", Usage{}, fmt.Errorf("no completion returned")
	}

	var usage Usage
	if result.UsageMetadata != nil {
		usage.InputTokens = int(result.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int(result.UsageMetadata.CandidatesTokenCount)
	}

	logging.LLM("[Gemini] Generate: response_len=%d tokens_in=%d tokens_out=%d",
		len(text), usage.InputTokens, usage.OutputTokens)
	return text, usage, nil
}
