package embedding

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartwise/backend/internal/domain"
)

func newTestClient(url string, config ClientConfig) *Client {
	config.BaseURL = url
	client := NewClient(config)
	client.backoff = func(int) time.Duration { return time.Millisecond }
	return client
}

func embedHandler(t *testing.T, dim int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := embedResponse{Model: req.Model}
		for i := range req.Input {
			vec := make([]float32, dim)
			vec[i%dim] = 1
			resp.Embeddings = append(resp.Embeddings, vec)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func TestNewClient(t *testing.T) {
	client := NewClient(ClientConfig{BaseURL: "http://localhost:11434/"})

	assert.NotNil(t, client)
	assert.Equal(t, "http://localhost:11434", client.baseURL)
	assert.Equal(t, "nomic-embed-text", client.model)
	assert.Equal(t, 3, client.maxRetries)
	assert.NotNil(t, client.httpClient)
	assert.NotNil(t, client.rateLimiter)
	assert.NotNil(t, client.breaker)
}

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 500 * time.Millisecond},
		{2, 1000 * time.Millisecond},
		{3, 2000 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run("", func(t *testing.T) {
			assert.Equal(t, tt.expected, exponentialBackoff(tt.attempt))
		})
	}
}

func TestEmbedBatch_Success(t *testing.T) {
	server := httptest.NewServer(embedHandler(t, 4))
	defer server.Close()

	client := newTestClient(server.URL, ClientConfig{Model: "test-model"})
	vecs, err := client.EmbedBatch(context.Background(), []string{"whole milk", "cheddar"})

	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{1, 0, 0, 0}, vecs[0])
	assert.Equal(t, []float32{0, 1, 0, 0}, vecs[1])
}

func TestEmbed_Single(t *testing.T) {
	server := httptest.NewServer(embedHandler(t, 3))
	defer server.Close()

	client := newTestClient(server.URL, ClientConfig{})
	vec, err := client.Embed(context.Background(), "bananas")

	require.NoError(t, err)
	assert.Len(t, vec, 3)
}

func TestEmbedBatch_Empty(t *testing.T) {
	client := NewClient(ClientConfig{BaseURL: "http://unused"})
	vecs, err := client.EmbedBatch(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, vecs)
}

func TestEmbedBatch_ServerError_Retries(t *testing.T) {
	var attempts atomic.Int32
	ok := embedHandler(t, 2)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		ok(w, r)
	}))
	defer server.Close()

	client := newTestClient(server.URL, ClientConfig{})
	vecs, err := client.EmbedBatch(context.Background(), []string{"milk"})

	require.NoError(t, err)
	assert.Len(t, vecs, 1)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestEmbedBatch_TooManyRequests_Retries(t *testing.T) {
	var attempts atomic.Int32
	ok := embedHandler(t, 2)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		ok(w, r)
	}))
	defer server.Close()

	client := newTestClient(server.URL, ClientConfig{})
	_, err := client.EmbedBatch(context.Background(), []string{"milk"})

	require.NoError(t, err)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestEmbedBatch_ClientError_NoRetry(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := newTestClient(server.URL, ClientConfig{})
	vecs, err := client.EmbedBatch(context.Background(), []string{"milk"})

	assert.Nil(t, vecs)
	assert.ErrorIs(t, err, domain.ErrEmbeddingFailure)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestEmbedBatch_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("invalid json"))
	}))
	defer server.Close()

	client := newTestClient(server.URL, ClientConfig{})
	_, err := client.EmbedBatch(context.Background(), []string{"milk"})

	assert.ErrorIs(t, err, domain.ErrEmbeddingFailure)
	assert.Contains(t, err.Error(), "failed to decode response")
}

func TestEmbedBatch_CountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{1, 0}}})
	}))
	defer server.Close()

	client := newTestClient(server.URL, ClientConfig{})
	_, err := client.EmbedBatch(context.Background(), []string{"milk", "eggs"})

	assert.ErrorIs(t, err, domain.ErrEmbeddingFailure)
}

func TestEmbedBatch_BreakerOpens(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := newTestClient(server.URL, ClientConfig{BreakerFailures: 1, BreakerTimeout: time.Minute})

	_, err := client.EmbedBatch(context.Background(), []string{"milk"})
	require.Error(t, err)

	// The open breaker fails fast without reaching the server
	_, err = client.EmbedBatch(context.Background(), []string{"milk"})
	assert.ErrorIs(t, err, domain.ErrEmbeddingFailure)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestEmbedBatch_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := newTestClient(server.URL, ClientConfig{})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.EmbedBatch(ctx, []string{"milk"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
