package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
)

// ProviderConfig configures one completion provider.
type ProviderConfig struct {
	APIKey      string  `koanf:"api_key"`
	Model       string  `koanf:"model"`
	BaseURL     string  `koanf:"base_url"`
	Temperature float64 `koanf:"temperature"`
	MaxTokens   int     `koanf:"max_tokens"`
}

// groqBaseURL is the OpenAI-compatible endpoint Groq exposes.
const groqBaseURL = "https://api.groq.com/openai/v1"

// LangchainClient adapts a langchaingo model to the Client interface.
type LangchainClient struct {
	name        string
	model       llms.Model
	temperature float64
	maxTokens   int
}

// NewGroqClient creates the primary provider. Temperature 0 and a short
// token budget keep price arithmetic exact and replies brief.
func NewGroqClient(cfg ProviderConfig) (*LangchainClient, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = groqBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "llama-3.3-70b-versatile"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 120
	}

	model, err := openai.New(
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
		openai.WithBaseURL(cfg.BaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("create groq client: %w", err)
	}
	return &LangchainClient{name: "groq", model: model, temperature: cfg.Temperature, maxTokens: cfg.MaxTokens}, nil
}

// NewGeminiClient creates the fallback provider.
func NewGeminiClient(ctx context.Context, cfg ProviderConfig) (*LangchainClient, error) {
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 120
	}

	model, err := googleai.New(ctx,
		googleai.WithAPIKey(cfg.APIKey),
		googleai.WithDefaultModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &LangchainClient{name: "gemini", model: model, temperature: cfg.Temperature, maxTokens: cfg.MaxTokens}, nil
}

// Name identifies the provider in logs.
func (c *LangchainClient) Name() string { return c.name }

// Generate runs one chat completion.
func (c *LangchainClient) Generate(ctx context.Context, system string, history []Turn, userText string) (string, error) {
	messages := make([]llms.MessageContent, 0, len(history)+2)
	if system != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	for _, turn := range history {
		role := llms.ChatMessageTypeHuman
		if turn.Role == RoleAgent {
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, turn.Content))
	}
	if userText != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, userText))
	}

	opts := []llms.CallOption{llms.WithTemperature(c.temperature)}
	if c.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(c.maxTokens))
	}

	resp, err := c.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("%s completion: %w", c.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s completion: empty response", c.name)
	}
	return resp.Choices[0].Content, nil
}
