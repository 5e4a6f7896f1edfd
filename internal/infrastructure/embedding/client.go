package embedding

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/cartwise/backend/internal/domain"
	"github.com/cartwise/backend/internal/infrastructure/breaker"
	"github.com/cartwise/backend/internal/logging"
)

// ClientConfig holds configuration for the embedding service client
type ClientConfig struct {
	BaseURL           string
	Model             string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	MaxRetries        int
	BreakerFailures   uint32
	BreakerTimeout    time.Duration
}

// Client calls an Ollama-compatible /api/embed endpoint
type Client struct {
	httpClient  *http.Client
	baseURL     string
	model       string
	rateLimiter *rate.Limiter
	maxRetries  int
	breaker     *gobreaker.CircuitBreaker[[][]float32]
	backoff     func(attempt int) time.Duration
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// NewClient creates a new embedding client
func NewClient(config ClientConfig) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 20
	}
	if config.Burst <= 0 {
		config.Burst = 5
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.Model == "" {
		config.Model = "nomic-embed-text"
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		baseURL:     strings.TrimRight(config.BaseURL, "/"),
		model:       config.Model,
		rateLimiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		maxRetries:  config.MaxRetries,
		breaker: breaker.New[[][]float32](breaker.Config{
			Name:             "embedding",
			FailureThreshold: config.BreakerFailures,
			Timeout:          config.BreakerTimeout,
		}),
		backoff: exponentialBackoff,
	}
}

// exponentialBackoff returns the wait before retry attempt n (1-based)
func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(500*(1<<(attempt-1))) * time.Millisecond
}

// Embed implements domain.Embedder
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch implements domain.Embedder. Calls go through the circuit
// breaker; an open breaker fails fast with ErrEmbeddingFailure.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vecs, err := c.breaker.Execute(func() ([][]float32, error) {
		return c.embedWithRetry(ctx, texts)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbeddingFailure, err)
	}
	return vecs, err
}

func (c *Client) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Model: c.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter error: %w", err)
		}

		vecs, retry, err := c.doEmbed(ctx, body, len(texts))
		if err == nil {
			return vecs, nil
		}
		lastErr = err
		if !retry || attempt == c.maxRetries {
			break
		}

		logging.Warn().Err(err).Int("attempt", attempt).Int("texts", len(texts)).Msg("[EMBED] request failed, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.backoff(attempt)):
		}
	}

	return nil, lastErr
}

// doEmbed performs one request. retry reports whether the failure is transient.
func (c *Client) doEmbed(ctx context.Context, body []byte, want int) (vecs [][]float32, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "CartWise/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, fmt.Errorf("%w: %v", domain.ErrEmbeddingFailure, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("%w: reading body: %v", domain.ErrEmbeddingFailure, err)
	}

	if resp.StatusCode != http.StatusOK {
		// Retry on rate limiting and server errors only
		transient := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, transient, fmt.Errorf("%w: status %d: %s", domain.ErrEmbeddingFailure, resp.StatusCode, truncate(string(data), 200))
	}

	var parsed embedResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, false, fmt.Errorf("%w: failed to decode response: %v", domain.ErrEmbeddingFailure, err)
	}
	if len(parsed.Embeddings) != want {
		return nil, false, fmt.Errorf("%w: got %d embeddings for %d texts", domain.ErrEmbeddingFailure, len(parsed.Embeddings), want)
	}

	return parsed.Embeddings, false, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
