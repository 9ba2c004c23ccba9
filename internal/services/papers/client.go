// -----------------------------------------------------------------------
// Shared HTTP plumbing for literature providers
// -----------------------------------------------------------------------

package papers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
)

// providerClient wraps an HTTP client with the per-provider rate limiter
// and a single retry on 429. Providers own identity mapping; this owns
// transport behavior.
type providerClient struct {
	http      *http.Client
	limiter   *rate.Limiter
	userAgent string
}

func newProviderClient(cfg *common.LiteratureConfig, rateLimit string, defaultInterval time.Duration) *providerClient {
	return &providerClient{
		http: &http.Client{
			Timeout: common.ParseDurationOr(cfg.RequestTimeout, 30*time.Second),
		},
		limiter:   rate.NewLimiter(rate.Every(common.ParseDurationOr(rateLimit, defaultInterval)), 1),
		userAgent: cfg.UserAgent,
	}
}

// get performs a rate-limited GET and returns the response body. A 429
// waits out the Retry-After interval once before giving up.
func (c *providerClient) get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt == 0 {
			resp.Body.Close()
			delay := 5 * time.Second
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if d, err := time.ParseDuration(ra + "s"); err == nil {
					delay = d
				}
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200))
		}
		if readErr != nil {
			return nil, fmt.Errorf("failed to read response: %w", readErr)
		}
		return body, nil
	}
}

// download fetches arbitrary bytes (PDFs) without the JSON niceties.
func (c *providerClient) download(ctx context.Context, url string) ([]byte, error) {
	return c.get(ctx, url, map[string]string{"Accept": "application/pdf"})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// downloadViaURL is the common DownloadPDF body: follow the stored PDF
// URL or report no full text.
func downloadViaURL(ctx context.Context, c *providerClient, pdfURL string) ([]byte, error) {
	if pdfURL == "" {
		return nil, interfaces.ErrNoFullText
	}
	data, err := c.download(ctx, pdfURL)
	if err != nil {
		return nil, fmt.Errorf("pdf download failed: %w", err)
	}
	if len(data) == 0 {
		return nil, interfaces.ErrNoFullText
	}
	return data, nil
}
