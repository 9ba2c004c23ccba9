package llm

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
)

// NewLLMService creates the LLM service for the configured default
// provider. Decision prompts, triple extraction, and chat all share the
// returned instance so rate limiting stays global.
func NewLLMService(config *common.Config, storageManager interfaces.StorageManager, logger arbor.ILogger) (interfaces.LLMService, error) {
	provider := config.LLM.DefaultProvider
	if provider == "" {
		provider = common.LLMProviderGemini
	}

	switch provider {
	case common.LLMProviderGemini:
		return NewGeminiService(config, storageManager, logger)
	case common.LLMProviderClaude:
		return NewClaudeService(config, storageManager, logger)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q (expected %q or %q)", provider, common.LLMProviderGemini, common.LLMProviderClaude)
	}
}
