package interfaces

import (
	"context"
)

// LLMRole identifies the sender of a chat message.
const (
	LLMRoleSystem    = "system"
	LLMRoleUser      = "user"
	LLMRoleAssistant = "assistant"
)

// LLMMessage represents a single message in a chat exchange
type LLMMessage struct {
	// Role identifies the message sender: "user", "assistant", or "system"
	Role string

	// Content contains the text content of the message
	Content string
}

// GenerateOptions tunes a single completion call.
type GenerateOptions struct {
	// Temperature controls sampling randomness. Zero means provider default.
	Temperature float32

	// MaxTokens caps the response length. Zero means provider default.
	MaxTokens int

	// System is an optional system prompt prepended to the exchange.
	System string
}

// LLMService defines the interface for language model completions.
// Implementations wrap cloud providers (Gemini, Claude) and carry their own
// retry and rate-limit behavior; callers see a single blocking call.
type LLMService interface {
	// Generate produces a completion for the given prompt.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - prompt: Full prompt text, including any structured payload
	//   - opts: Per-call tuning; zero values fall back to provider defaults
	//
	// Returns:
	//   - string: Generated response text
	//   - error: Error after retries are exhausted
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// Chat generates a completion from a multi-turn exchange. The messages
	// slice should contain the full conversation context in chronological
	// order.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - messages: Conversation history in chronological order
	//
	// Returns:
	//   - string: Generated assistant response
	//   - error: Error after retries are exhausted
	Chat(ctx context.Context, messages []LLMMessage) (string, error)

	// ProviderName returns the provider identifier recorded in decision
	// results and run logs ("gemini", "claude").
	ProviderName() string

	// HealthCheck verifies the provider is reachable and authenticated.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//
	// Returns:
	//   - error: Error if service is not healthy or unreachable
	HealthCheck(ctx context.Context) error

	// Close releases provider resources.
	Close() error
}
