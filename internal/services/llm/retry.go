package llm

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
)

// retryConfig defines backoff behavior shared by both cloud providers.
// Rate-limit errors honor the API-suggested delay when one is present in
// the error body; everything else uses exponential backoff.
type retryConfig struct {
	attempts int
	backoff  time.Duration
}

func newRetryConfig(attempts int, backoff time.Duration) retryConfig {
	if attempts <= 0 {
		attempts = 3
	}
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	return retryConfig{attempts: attempts, backoff: backoff}
}

// isRetryableError reports whether a provider error is worth retrying:
// rate limits, quota exhaustion, and transient 5xx responses.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "RESOURCE_EXHAUSTED") ||
		strings.Contains(errStr, "quota") ||
		strings.Contains(errStr, "overloaded") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// retryDelayRegex matches "Please retry in Xs" or "retryDelay:Xs" patterns
// that Gemini embeds in 429 error bodies.
var retryDelayRegex = regexp.MustCompile(`(?i)(?:Please retry in |retryDelay[:\s]+)(\d+(?:\.\d+)?)\s*s`)

// extractRetryDelay parses the API-suggested retry delay from an error.
// Returns 0 if no delay is found in the error message.
func extractRetryDelay(err error) time.Duration {
	if err == nil {
		return 0
	}
	matches := retryDelayRegex.FindStringSubmatch(err.Error())
	if len(matches) < 2 {
		return 0
	}
	seconds, parseErr := strconv.ParseFloat(matches[1], 64)
	if parseErr != nil {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// delayFor computes the wait before the given retry attempt (0-based).
// The backoff doubles per attempt unless the error carried its own delay.
func (c retryConfig) delayFor(attempt int, err error) time.Duration {
	if apiDelay := extractRetryDelay(err); apiDelay > 0 {
		return apiDelay + time.Second
	}
	delay := c.backoff
	for i := 0; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// withRetry runs fn up to attempts+1 times, sleeping between retryable
// failures. Context cancellation and non-retryable errors stop immediately.
func withRetry[T any](ctx context.Context, cfg retryConfig, logger arbor.ILogger, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= cfg.attempts; attempt++ {
		if attempt > 0 {
			delay := cfg.delayFor(attempt-1, lastErr)
			logger.Warn().
				Str("operation", op).
				Int("attempt", attempt).
				Dur("delay", delay).
				Err(lastErr).
				Msg("Retrying provider call")

			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if !isRetryableError(err) || ctx.Err() != nil {
			return zero, err
		}
		lastErr = err
	}

	return zero, lastErr
}
