package common

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/ternarybob/colligo/internal/interfaces"
)

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment"` // "development" or "production"
	Server      ServerConfig     `toml:"server"`
	Queue       QueueConfig      `toml:"queue"`
	Storage     StorageConfig    `toml:"storage"`
	Logging     LoggingConfig    `toml:"logging"`
	Pipeline    PipelineConfig   `toml:"pipeline"`
	Gemini      GeminiConfig     `toml:"gemini"`
	Claude      ClaudeConfig     `toml:"claude"`
	LLM         LLMConfig        `toml:"llm"`
	Literature  LiteratureConfig `toml:"literature"`
	Mailbox     MailboxConfig    `toml:"mailbox"`
	Scheduler   SchedulerConfig  `toml:"scheduler"`
	Policy      AdminPolicy      `toml:"policy"` // Operator-managed tuning, immutable after startup
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type QueueConfig struct {
	PollInterval      string `toml:"poll_interval"`      // e.g., "1s" - how often workers poll for messages
	Concurrency       int    `toml:"concurrency"`        // Number of concurrent workers
	VisibilityTimeout string `toml:"visibility_timeout"` // e.g., "5m" - message visibility timeout for redelivery
	MaxReceive        int    `toml:"max_receive"`        // Max times a message can be received before poison removal
	QueueName         string `toml:"queue_name"`         // Queue name prefix in Badger
}

type StorageConfig struct {
	Badger     BadgerConfig     `toml:"badger"`
	Filesystem FilesystemConfig `toml:"filesystem"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type FilesystemConfig struct {
	Uploads string `toml:"uploads"` // User-uploaded artifacts
	Papers  string `toml:"papers"`  // Downloaded paper PDFs
	Reports string `toml:"reports"` // Exported job reports
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05.000")
}

// PipelineConfig tunes stage execution behavior
type PipelineConfig struct {
	StageTimeout       string `toml:"stage_timeout"`        // Per-stage deadline as duration string (default: "10m")
	HeartbeatInterval  string `toml:"heartbeat_interval"`   // How often in-flight stages extend visibility (default: "1m")
	StructuralCacheTTL string `toml:"structural_cache_ttl"` // TTL for the cached structural graph (default: "1h")
	EmbeddingCacheTTL  string `toml:"embedding_cache_ttl"`  // TTL for memoized embeddings (default: "720h")
	ExtractConcurrency int    `toml:"extract_concurrency"`  // Parallel per-file extraction workers (default: 4)
	DecisionMode       string `toml:"decision_mode"`        // "rule_based", "hybrid", or "llm" (default: "rule_based")
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey         string  `toml:"api_key"`         // Google Gemini API key
	Model          string  `toml:"model"`           // Model for completions (default: "gemini-3-flash-preview")
	EmbeddingModel string  `toml:"embedding_model"` // Model for embeddings (default: "gemini-embedding-001")
	Timeout        string  `toml:"timeout"`         // Operation timeout as duration string (default: "5m")
	RateLimit      string  `toml:"rate_limit"`      // Rate limit duration string (default: "4s" for 15 RPM)
	Temperature    float32 `toml:"temperature"`     // Completion temperature (default: 0.2)
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`     // Anthropic API key for Claude operations
	Model       string  `toml:"model"`       // Model for completions (default: "claude-haiku-3-5-20241022")
	MaxTokens   int     `toml:"max_tokens"`  // Maximum tokens in response (default: 8192)
	Timeout     string  `toml:"timeout"`     // Operation timeout as duration string (default: "5m")
	RateLimit   string  `toml:"rate_limit"`  // Rate limit duration string (default: "1s")
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.2)
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
)

// LLMConfig contains unified configuration for all AI providers
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider"` // Default provider: "gemini" or "claude" (default: "gemini")
	RetryAttempts   int         `toml:"retry_attempts"`   // Retries on transient provider errors (default: 3)
	RetryBackoff    string      `toml:"retry_backoff"`    // Initial backoff as duration string, doubles per attempt (default: "2s")
}

// LiteratureConfig contains external paper provider configuration
type LiteratureConfig struct {
	UserAgent       string                `toml:"user_agent"`      // User agent for provider requests
	RequestTimeout  string                `toml:"request_timeout"` // HTTP timeout as duration string (default: "30s")
	SemanticScholar SemanticScholarConfig `toml:"semanticscholar"`
	OpenAlex        OpenAlexConfig        `toml:"openalex"`
	Arxiv           ArxivConfig           `toml:"arxiv"`
}

type SemanticScholarConfig struct {
	APIKey    string `toml:"api_key"`    // Optional key lifts the shared-pool rate limit
	RateLimit string `toml:"rate_limit"` // Min interval between requests (default: "1s")
}

type OpenAlexConfig struct {
	MailTo    string `toml:"mailto"`     // Contact email for the polite pool
	RateLimit string `toml:"rate_limit"` // Min interval between requests (default: "200ms")
}

type ArxivConfig struct {
	RateLimit string `toml:"rate_limit"` // Min interval between requests (default: "3s" per arXiv ToS)
}

// MailboxConfig controls IMAP alert ingestion. Credentials live in KV
// storage (imap_host, imap_port, imap_username, imap_password, imap_use_tls)
// so they can be rotated without a restart.
type MailboxConfig struct {
	Enabled      bool   `toml:"enabled"`       // Poll a mailbox for literature alert emails
	PollSchedule string `toml:"poll_schedule"` // Cron schedule (default: "*/15 * * * *")
	Folder       string `toml:"folder"`        // IMAP folder to read (default: "INBOX")
}

// SchedulerConfig controls background maintenance jobs
type SchedulerConfig struct {
	StaleSweepEnabled     bool   `toml:"stale_sweep_enabled"`     // Mark abandoned jobs FAILED (default: true)
	StaleSweepSchedule    string `toml:"stale_sweep_schedule"`    // Cron schedule (default: "*/10 * * * *")
	StaleCutoff           string `toml:"stale_cutoff"`            // Inactivity before a running job is stale (default: "2h")
	ImpactRefreshEnabled  bool   `toml:"impact_refresh_enabled"`  // Recompute paper impact scores (default: true)
	ImpactRefreshSchedule string `toml:"impact_refresh_schedule"` // Cron schedule (default: "0 * * * *")
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in colligo.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Queue: QueueConfig{
			PollInterval:      "1s",
			Concurrency:       8, // Stages are LLM-bound; modest parallelism avoids provider throttling
			VisibilityTimeout: "5m",
			MaxReceive:        3,
			QueueName:         "colligo_jobs",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
			Filesystem: FilesystemConfig{
				Uploads: "./data/uploads",
				Papers:  "./data/papers",
				Reports: "./data/reports",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
		Pipeline: PipelineConfig{
			StageTimeout:       "10m",
			HeartbeatInterval:  "1m",
			StructuralCacheTTL: "1h",
			EmbeddingCacheTTL:  "720h", // 30 days; embeddings are stable per model+text
			ExtractConcurrency: 4,
			DecisionMode:       "rule_based",
		},
		Gemini: GeminiConfig{
			APIKey:         "", // User must provide API key (no fallback)
			Model:          "gemini-3-flash-preview",
			EmbeddingModel: "gemini-embedding-001",
			Timeout:        "5m",
			RateLimit:      "4s", // Default to 4s (15 RPM) for free tier
			Temperature:    0.2,  // Extraction and classification want determinism, not creativity
		},
		Claude: ClaudeConfig{
			APIKey:      "", // User must provide API key (ANTHROPIC_API_KEY or config)
			Model:       "claude-haiku-3-5-20241022",
			MaxTokens:   8192,
			Timeout:     "5m",
			RateLimit:   "1s",
			Temperature: 0.2,
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderGemini,
			RetryAttempts:   3,
			RetryBackoff:    "2s",
		},
		Literature: LiteratureConfig{
			UserAgent:      "colligo/1.0 (literature review engine)",
			RequestTimeout: "30s",
			SemanticScholar: SemanticScholarConfig{
				RateLimit: "1s",
			},
			OpenAlex: OpenAlexConfig{
				RateLimit: "200ms",
			},
			Arxiv: ArxivConfig{
				RateLimit: "3s",
			},
		},
		Mailbox: MailboxConfig{
			Enabled:      false, // Disabled by default - user must configure IMAP credentials first
			PollSchedule: "*/15 * * * *",
			Folder:       "INBOX",
		},
		Scheduler: SchedulerConfig{
			StaleSweepEnabled:     true,
			StaleSweepSchedule:    "*/10 * * * *",
			StaleCutoff:           "2h",
			ImpactRefreshEnabled:  true,
			ImpactRefreshSchedule: "0 * * * *",
		},
		Policy: *NewDefaultPolicy(),
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files. Later files
// override earlier files; environment variables override all files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy configuration: %w", err)
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("COLLIGO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("COLLIGO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("COLLIGO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Queue configuration
	if pollInterval := os.Getenv("COLLIGO_QUEUE_POLL_INTERVAL"); pollInterval != "" {
		config.Queue.PollInterval = pollInterval
	}
	if concurrency := os.Getenv("COLLIGO_QUEUE_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Queue.Concurrency = c
		}
	}
	if visibilityTimeout := os.Getenv("COLLIGO_QUEUE_VISIBILITY_TIMEOUT"); visibilityTimeout != "" {
		config.Queue.VisibilityTimeout = visibilityTimeout
	}
	if maxReceive := os.Getenv("COLLIGO_QUEUE_MAX_RECEIVE"); maxReceive != "" {
		if mr, err := strconv.Atoi(maxReceive); err == nil {
			config.Queue.MaxReceive = mr
		}
	}
	if queueName := os.Getenv("COLLIGO_QUEUE_NAME"); queueName != "" {
		config.Queue.QueueName = queueName
	}

	// Storage configuration
	if badgerPath := os.Getenv("COLLIGO_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging configuration
	if level := os.Getenv("COLLIGO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("COLLIGO_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("COLLIGO_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Pipeline configuration
	if stageTimeout := os.Getenv("COLLIGO_PIPELINE_STAGE_TIMEOUT"); stageTimeout != "" {
		if _, err := time.ParseDuration(stageTimeout); err == nil {
			config.Pipeline.StageTimeout = stageTimeout
		}
	}
	if extractConcurrency := os.Getenv("COLLIGO_PIPELINE_EXTRACT_CONCURRENCY"); extractConcurrency != "" {
		if ec, err := strconv.Atoi(extractConcurrency); err == nil {
			config.Pipeline.ExtractConcurrency = ec
		}
	}

	// Gemini configuration
	if apiKey := os.Getenv("COLLIGO_GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	} else if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	}
	if model := os.Getenv("COLLIGO_GEMINI_MODEL"); model != "" {
		config.Gemini.Model = model
	}
	if embeddingModel := os.Getenv("COLLIGO_GEMINI_EMBEDDING_MODEL"); embeddingModel != "" {
		config.Gemini.EmbeddingModel = embeddingModel
	}
	if timeout := os.Getenv("COLLIGO_GEMINI_TIMEOUT"); timeout != "" {
		config.Gemini.Timeout = timeout
	}
	if rateLimit := os.Getenv("COLLIGO_GEMINI_RATE_LIMIT"); rateLimit != "" {
		config.Gemini.RateLimit = rateLimit
	}
	if temperature := os.Getenv("COLLIGO_GEMINI_TEMPERATURE"); temperature != "" {
		if t, err := strconv.ParseFloat(temperature, 32); err == nil {
			config.Gemini.Temperature = float32(t)
		}
	}

	// Claude configuration
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if apiKey := os.Getenv("COLLIGO_CLAUDE_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey // COLLIGO_ prefix takes priority
	}
	if model := os.Getenv("COLLIGO_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}
	if maxTokens := os.Getenv("COLLIGO_CLAUDE_MAX_TOKENS"); maxTokens != "" {
		if mt, err := strconv.Atoi(maxTokens); err == nil {
			config.Claude.MaxTokens = mt
		}
	}
	if timeout := os.Getenv("COLLIGO_CLAUDE_TIMEOUT"); timeout != "" {
		config.Claude.Timeout = timeout
	}
	if rateLimit := os.Getenv("COLLIGO_CLAUDE_RATE_LIMIT"); rateLimit != "" {
		config.Claude.RateLimit = rateLimit
	}
	if temperature := os.Getenv("COLLIGO_CLAUDE_TEMPERATURE"); temperature != "" {
		if t, err := strconv.ParseFloat(temperature, 32); err == nil {
			config.Claude.Temperature = float32(t)
		}
	}

	// LLM provider configuration
	if provider := os.Getenv("COLLIGO_LLM_DEFAULT_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(provider)
	}

	// Literature provider configuration
	if apiKey := os.Getenv("COLLIGO_S2_API_KEY"); apiKey != "" {
		config.Literature.SemanticScholar.APIKey = apiKey
	}
	if mailTo := os.Getenv("COLLIGO_OPENALEX_MAILTO"); mailTo != "" {
		config.Literature.OpenAlex.MailTo = mailTo
	}

	// Mailbox configuration
	if enabled := os.Getenv("COLLIGO_MAILBOX_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Mailbox.Enabled = e
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// ResolveAPIKey resolves an API key by name with environment variable priority.
// Resolution order: environment variables -> KV store -> config fallback -> error.
func ResolveAPIKey(ctx context.Context, kvStorage interfaces.KeyValueStorage, name string, configFallback string) (string, error) {
	keyToEnvMapping := map[string][]string{
		"gemini_api_key":          {"COLLIGO_GEMINI_API_KEY", "GEMINI_API_KEY"},
		"anthropic_api_key":       {"COLLIGO_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
		"claude_api_key":          {"COLLIGO_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
		"semanticscholar_api_key": {"COLLIGO_S2_API_KEY"},
		"github_token":            {"COLLIGO_GITHUB_TOKEN", "GITHUB_TOKEN"},
	}

	if envVarNames, ok := keyToEnvMapping[name]; ok {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	if kvStorage != nil {
		apiKey, err := kvStorage.Get(ctx, name)
		if err == nil && apiKey != "" {
			return apiKey, nil
		}
	}

	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment, KV store, or config", name)
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// ParseDurationOr parses a duration string, falling back to def on error
// or empty input. Config duration fields are strings so TOML stays readable.
func ParseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
