package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
)

// ClaudeService implements the LLMService interface on the Anthropic API.
type ClaudeService struct {
	config    *common.ClaudeConfig
	logger    arbor.ILogger
	client    *anthropic.Client
	limiter   *rate.Limiter
	retry     retryConfig
	timeout   time.Duration
	maxTokens int
}

// NewClaudeService creates a Claude-backed LLM service. The API key is
// resolved environment-first, then KV storage, then config.
func NewClaudeService(config *common.Config, storageManager interfaces.StorageManager, logger arbor.ILogger) (*ClaudeService, error) {
	ctx := context.Background()

	var kv interfaces.KeyValueStorage
	if storageManager != nil {
		kv = storageManager.KV()
	}
	apiKey, err := common.ResolveAPIKey(ctx, kv, "anthropic_api_key", config.Claude.APIKey)
	if err != nil {
		return nil, fmt.Errorf("Anthropic API key is required (set ANTHROPIC_API_KEY, COLLIGO_CLAUDE_API_KEY, or claude.api_key in config): %w", err)
	}

	if config.Claude.Model == "" {
		config.Claude.Model = "claude-haiku-3-5-20241022"
	}
	maxTokens := config.Claude.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	interval := common.ParseDurationOr(config.Claude.RateLimit, time.Second)
	timeout := common.ParseDurationOr(config.Claude.Timeout, 5*time.Minute)

	service := &ClaudeService{
		config:    &config.Claude,
		logger:    logger,
		client:    &client,
		limiter:   rate.NewLimiter(rate.Every(interval), 1),
		retry:     newRetryConfig(config.LLM.RetryAttempts, common.ParseDurationOr(config.LLM.RetryBackoff, 2*time.Second)),
		timeout:   timeout,
		maxTokens: maxTokens,
	}

	logger.Info().
		Str("model", config.Claude.Model).
		Int("max_tokens", maxTokens).
		Dur("timeout", timeout).
		Msg("Claude LLM service initialized")

	return service, nil
}

// Generate produces a completion for a single prompt.
func (s *ClaudeService) Generate(ctx context.Context, prompt string, opts interfaces.GenerateOptions) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
	}
	return s.complete(ctx, "generate", messages, opts)
}

// Chat generates a completion from a multi-turn exchange.
func (s *ClaudeService) Chat(ctx context.Context, messages []interfaces.LLMMessage) (string, error) {
	claudeMessages, systemText, err := convertMessagesToClaude(messages)
	if err != nil {
		return "", err
	}
	return s.complete(ctx, "chat", claudeMessages, interfaces.GenerateOptions{System: systemText})
}

func (s *ClaudeService) complete(ctx context.Context, op string, messages []anthropic.MessageParam, opts interfaces.GenerateOptions) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	temperature := s.config.Temperature
	if opts.Temperature > 0 {
		temperature = opts.Temperature
	}
	maxTokens := s.maxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(s.config.Model),
		MaxTokens:   int64(maxTokens),
		Messages:    messages,
		Temperature: anthropic.Float(float64(temperature)),
	}
	if opts.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: opts.System}}
	}

	startTime := time.Now()

	text, err := withRetry(timeoutCtx, s.retry, s.logger, op, func(ctx context.Context) (string, error) {
		if err := s.limiter.Wait(ctx); err != nil {
			return "", err
		}

		resp, err := s.client.Messages.New(ctx, params)
		if err != nil {
			return "", fmt.Errorf("claude completion failed: %w", err)
		}

		var out string
		for _, block := range resp.Content {
			if block.Type == "text" {
				out += block.Text
			}
		}
		if out == "" {
			return "", fmt.Errorf("claude returned empty response")
		}
		return out, nil
	})
	if err != nil {
		return "", err
	}

	s.logger.Debug().
		Str("operation", op).
		Int("response_length", len(text)).
		Dur("duration", time.Since(startTime)).
		Msg("Claude completion finished")

	return text, nil
}

// ProviderName returns "claude".
func (s *ClaudeService) ProviderName() string {
	return string(common.LLMProviderClaude)
}

// HealthCheck verifies the API key works with a minimal completion.
func (s *ClaudeService) HealthCheck(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.limiter.Wait(checkCtx); err != nil {
		return err
	}
	_, err := s.client.Messages.New(checkCtx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.config.Model),
		MaxTokens: 8,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})
	if err != nil {
		return fmt.Errorf("claude health check failed: %w", err)
	}
	return nil
}

// Close releases client resources.
func (s *ClaudeService) Close() error {
	return nil
}

// convertMessagesToClaude converts chat messages to Claude MessageParam
// format. System messages are extracted for the System parameter; the first
// one wins. At least one user message is required.
func convertMessagesToClaude(messages []interfaces.LLMMessage) ([]anthropic.MessageParam, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("messages cannot be empty")
	}

	hasUserMessage := false
	for _, msg := range messages {
		if msg.Role == interfaces.LLMRoleUser {
			hasUserMessage = true
			break
		}
	}
	if !hasUserMessage {
		return nil, "", fmt.Errorf("at least one message must have role 'user'")
	}

	claudeMessages := make([]anthropic.MessageParam, 0, len(messages))
	var systemText string
	for _, msg := range messages {
		switch msg.Role {
		case interfaces.LLMRoleSystem:
			if systemText == "" {
				systemText = msg.Content
			}
		case interfaces.LLMRoleAssistant:
			claudeMessages = append(claudeMessages, anthropic.NewAssistantMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		default:
			claudeMessages = append(claudeMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		}
	}

	return claudeMessages, systemText, nil
}
