package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
)

// GeminiService implements the LLMService interface on the Google Gemini
// API. A shared rate limiter keeps all callers inside the configured
// request interval; retries handle quota-window 429s.
type GeminiService struct {
	config  *common.GeminiConfig
	logger  arbor.ILogger
	client  *genai.Client
	limiter *rate.Limiter
	retry   retryConfig
	timeout time.Duration
}

// NewGeminiService creates a Gemini-backed LLM service. The API key is
// resolved environment-first, then KV storage, then config.
func NewGeminiService(config *common.Config, storageManager interfaces.StorageManager, logger arbor.ILogger) (*GeminiService, error) {
	ctx := context.Background()

	var kv interfaces.KeyValueStorage
	if storageManager != nil {
		kv = storageManager.KV()
	}
	apiKey, err := common.ResolveAPIKey(ctx, kv, "gemini_api_key", config.Gemini.APIKey)
	if err != nil {
		return nil, fmt.Errorf("Gemini API key is required (set GEMINI_API_KEY, COLLIGO_GEMINI_API_KEY, or gemini.api_key in config): %w", err)
	}

	if config.Gemini.Model == "" {
		config.Gemini.Model = "gemini-3-flash-preview"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	interval := common.ParseDurationOr(config.Gemini.RateLimit, 4*time.Second)
	timeout := common.ParseDurationOr(config.Gemini.Timeout, 5*time.Minute)

	service := &GeminiService{
		config:  &config.Gemini,
		logger:  logger,
		client:  client,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		retry:   newRetryConfig(config.LLM.RetryAttempts, common.ParseDurationOr(config.LLM.RetryBackoff, 2*time.Second)),
		timeout: timeout,
	}

	logger.Info().
		Str("model", config.Gemini.Model).
		Dur("rate_limit", interval).
		Dur("timeout", timeout).
		Msg("Gemini LLM service initialized")

	return service, nil
}

// Generate produces a completion for a single prompt.
func (s *GeminiService) Generate(ctx context.Context, prompt string, opts interfaces.GenerateOptions) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	contents := []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{genai.NewPartFromText(prompt)},
	}}

	return s.complete(ctx, "generate", contents, s.generateConfig(opts))
}

// Chat generates a completion from a multi-turn exchange.
func (s *GeminiService) Chat(ctx context.Context, messages []interfaces.LLMMessage) (string, error) {
	contents, systemText, err := convertMessagesToGemini(messages)
	if err != nil {
		return "", err
	}

	cfg := s.generateConfig(interfaces.GenerateOptions{System: systemText})
	return s.complete(ctx, "chat", contents, cfg)
}

func (s *GeminiService) generateConfig(opts interfaces.GenerateOptions) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}

	temperature := s.config.Temperature
	if opts.Temperature > 0 {
		temperature = opts.Temperature
	}
	cfg.Temperature = genai.Ptr(temperature)

	if opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if opts.System != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(opts.System)},
		}
	}
	return cfg
}

func (s *GeminiService) complete(ctx context.Context, op string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	startTime := time.Now()

	text, err := withRetry(timeoutCtx, s.retry, s.logger, op, func(ctx context.Context) (string, error) {
		if err := s.limiter.Wait(ctx); err != nil {
			return "", err
		}

		resp, err := s.client.Models.GenerateContent(ctx, s.config.Model, contents, cfg)
		if err != nil {
			return "", fmt.Errorf("gemini completion failed: %w", err)
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			return "", fmt.Errorf("gemini returned no candidates")
		}

		var out string
		for _, part := range resp.Candidates[0].Content.Parts {
			out += part.Text
		}
		if out == "" {
			return "", fmt.Errorf("gemini returned empty response")
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
		Msg("Gemini completion finished")

	return text, nil
}

// ProviderName returns "gemini".
func (s *GeminiService) ProviderName() string {
	return string(common.LLMProviderGemini)
}

// HealthCheck verifies the API key works with a minimal completion.
func (s *GeminiService) HealthCheck(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	contents := []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{genai.NewPartFromText("ping")},
	}}
	cfg := &genai.GenerateContentConfig{MaxOutputTokens: 8}

	if err := s.limiter.Wait(checkCtx); err != nil {
		return err
	}
	if _, err := s.client.Models.GenerateContent(checkCtx, s.config.Model, contents, cfg); err != nil {
		return fmt.Errorf("gemini health check failed: %w", err)
	}
	return nil
}

// Close releases client resources.
func (s *GeminiService) Close() error {
	return nil
}

// convertMessagesToGemini converts chat messages to Gemini Content format.
// System messages are extracted separately for SystemInstruction; the first
// one wins. At least one user message is required.
func convertMessagesToGemini(messages []interfaces.LLMMessage) ([]*genai.Content, string, error) {
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

	contents := make([]*genai.Content, 0, len(messages))
	var systemText string
	for _, msg := range messages {
		if msg.Role == interfaces.LLMRoleSystem {
			if systemText == "" {
				systemText = msg.Content
			}
			continue
		}

		geminiRole := genai.RoleUser
		if msg.Role == interfaces.LLMRoleAssistant {
			geminiRole = genai.RoleModel
		}

		contents = append(contents, &genai.Content{
			Role:  geminiRole,
			Parts: []*genai.Part{genai.NewPartFromText(msg.Content)},
		})
	}

	return contents, systemText, nil
}
