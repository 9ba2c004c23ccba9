package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
)

const defaultDimension = 768

// Service implements EmbeddingService on the Gemini embedding API. Vectors
// are L2-normalized before they are returned or cached, so cosine
// similarity downstream is a plain dot product.
//
// Embeddings are stable for a given model and text, so they are memoized
// twice: an in-process map for the current merge pass, and the KV cache
// under emb:{model}:{sha256} so repeated pipeline cycles do not re-bill
// the same node texts.
type Service struct {
	config  *common.GeminiConfig
	logger  arbor.ILogger
	client  *genai.Client
	kv      interfaces.KeyValueStorage
	limiter *rate.Limiter
	ttl     time.Duration

	mu    sync.RWMutex
	local map[string][]float32
}

// NewService creates a Gemini-backed embedding service.
func NewService(config *common.Config, storageManager interfaces.StorageManager, logger arbor.ILogger) (*Service, error) {
	ctx := context.Background()

	var kv interfaces.KeyValueStorage
	if storageManager != nil {
		kv = storageManager.KV()
	}
	apiKey, err := common.ResolveAPIKey(ctx, kv, "gemini_api_key", config.Gemini.APIKey)
	if err != nil {
		return nil, fmt.Errorf("Gemini API key is required for embeddings: %w", err)
	}

	if config.Gemini.EmbeddingModel == "" {
		config.Gemini.EmbeddingModel = "gemini-embedding-001"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	interval := common.ParseDurationOr(config.Gemini.RateLimit, 4*time.Second)
	ttl := common.ParseDurationOr(config.Pipeline.EmbeddingCacheTTL, 720*time.Hour)

	logger.Info().
		Str("model", config.Gemini.EmbeddingModel).
		Int("dimension", defaultDimension).
		Msg("Embedding service initialized")

	return &Service{
		config:  &config.Gemini,
		logger:  logger,
		client:  client,
		kv:      kv,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		ttl:     ttl,
		local:   make(map[string][]float32),
	}, nil
}

// GenerateEmbedding returns the normalized vector for one text.
func (s *Service) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("text cannot be empty for embedding generation")
	}

	key := s.cacheKey(text)
	if vec, ok := s.lookup(ctx, key); ok {
		return vec, nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	contents := []*genai.Content{{
		Parts: []*genai.Part{genai.NewPartFromText(text)},
	}}
	resp, err := s.client.Models.EmbedContent(ctx, s.config.EmbeddingModel, contents, &genai.EmbedContentConfig{
		OutputDimensionality: genai.Ptr(int32(defaultDimension)),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding generation failed: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("embedding response contained no values")
	}

	vec := normalize(resp.Embeddings[0].Values)
	s.store(ctx, key, vec)
	return vec, nil
}

// GenerateEmbeddings returns one normalized vector per input text, in
// order. Cached texts skip the API entirely.
func (s *Service) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := s.GenerateEmbedding(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding %d of %d failed: %w", i+1, len(texts), err)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// ModelName returns the embedding model identifier.
func (s *Service) ModelName() string {
	return s.config.EmbeddingModel
}

// Dimension returns the embedding vector dimension.
func (s *Service) Dimension() int {
	return defaultDimension
}

// IsAvailable probes the API with a short embedding call.
func (s *Service) IsAvailable(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	_, err := s.GenerateEmbedding(probeCtx, "availability probe")
	return err == nil
}

func (s *Service) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("emb:%s:%s", s.config.EmbeddingModel, hex.EncodeToString(sum[:]))
}

func (s *Service) lookup(ctx context.Context, key string) ([]float32, bool) {
	s.mu.RLock()
	vec, ok := s.local[key]
	s.mu.RUnlock()
	if ok {
		return vec, true
	}

	if s.kv == nil {
		return nil, false
	}
	data, found, err := s.kv.CacheGet(ctx, key)
	if err != nil || !found {
		return nil, false
	}
	if err := json.Unmarshal(data, &vec); err != nil {
		return nil, false
	}

	s.mu.Lock()
	s.local[key] = vec
	s.mu.Unlock()
	return vec, true
}

func (s *Service) store(ctx context.Context, key string, vec []float32) {
	s.mu.Lock()
	s.local[key] = vec
	s.mu.Unlock()

	if s.kv == nil {
		return
	}
	data, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := s.kv.CacheSet(ctx, key, data, s.ttl); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to cache embedding")
	}
}

// normalize scales a vector to unit length. Zero vectors pass through
// unchanged.
func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out
}
