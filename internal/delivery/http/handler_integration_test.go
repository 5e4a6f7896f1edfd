package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartwise/backend/config"
	"github.com/cartwise/backend/internal/domain"
	"github.com/cartwise/backend/internal/infrastructure/cache"
	"github.com/cartwise/backend/internal/infrastructure/memstore"
	"github.com/cartwise/backend/internal/usecase"
)

// TestMain sets up test environment before running tests
func TestMain(m *testing.M) {
	// Set Gin to test mode once for all tests
	gin.SetMode(gin.TestMode)

	os.Exit(m.Run())
}

// keywordEmbedder maps embedding text to a fixed vector by subcategory
type keywordEmbedder struct{}

func (keywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := keywordEmbedder{}.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (keywordEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		lower := strings.ToLower(text)
		switch {
		case strings.Contains(lower, "chips"):
			out[i] = []float32{1, 0.1, 0}
		case strings.Contains(lower, "organic"):
			out[i] = []float32{0.1, 1, 0.05}
		case strings.Contains(lower, "milk"):
			out[i] = []float32{0.1, 1, 0}
		default:
			out[i] = []float32{0, 0, 1}
		}
	}
	return out, nil
}

type staticSource []domain.RawProduct

func (s staticSource) Load(context.Context) ([]domain.RawProduct, error) {
	return s, nil
}

var testCatalog = staticSource{
	{Title: "Kettle Potato Chips", Category: "Snacks", Subcategory: "Chips", Price: "$4.50", Size: "8 oz"},
	{Title: "Store Brand Potato Chips", Category: "Snacks", Subcategory: "Chips", Price: "$2.00", Size: "10 oz"},
	{Title: "Organic Whole Milk", Brand: "Horizon", Category: "Dairy", Subcategory: "Milk", Price: 6.0, Size: "1 gal"},
	{Title: "Whole Milk", Category: "Dairy", Subcategory: "Milk", Price: "3.50", Size: "1 gal"},
	{Title: "Bananas", Category: "Produce", Subcategory: "Fruit", Price: "$1.00", Size: "6 ct"},
}

func productID(title, subcategory string) int64 {
	return usecase.StableProductID(title, subcategory)
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:           "8080",
			Environment:    "test",
			AllowedOrigins: []string{"chrome-extension://*", "http://localhost:3000"},
		},
		State: config.StateConfig{
			Type: "memory",
		},
	}
}

// newTestServices wires real services over in-memory storage. A nil
// catalog source leaves the catalog unloaded.
func newTestServices(t *testing.T, source domain.CatalogSource) Services {
	t.Helper()

	holder := usecase.NewCatalogHolder(nil)
	if source != nil {
		err := holder.Rebuild(context.Background(), source,
			[]usecase.NamedEmbedder{{Name: "keyword", Embedder: keywordEmbedder{}}},
			usecase.NewTextPreprocessor(false), usecase.CatalogConfig{})
		require.NoError(t, err)
	}

	orders := memstore.NewOrderStore()
	interactionLog := memstore.NewInteractionLog()
	models := usecase.NewModelRegistry(nil, nil)
	guardrails, err := usecase.NewGuardrails(usecase.GuardrailConfig{})
	require.NoError(t, err)

	retriever := usecase.NewRetriever(usecase.RetrieverConfig{}, nil)
	reranker := usecase.NewReranker(models, guardrails)
	states := cache.NewMemoryStateStore(time.Hour)
	tracker := usecase.NewIntentTracker(memstore.NewEventStore(), states, holder, usecase.IntentConfig{})

	return Services{
		Catalog: holder,
		Substitutions: usecase.NewSubstitutionService(holder, retriever, usecase.NewBlender(nil), models, reranker, tracker,
			interactionLog, usecase.SubstitutionConfig{}),
		Recommendations: usecase.NewRecommendationService(holder, orders, retriever, models, reranker, tracker,
			usecase.RecommendationConfig{}),
		Intent:       tracker,
		Interactions: usecase.NewInteractionService(interactionLog),
		Checkout:     usecase.NewCheckoutService(holder, orders, nil),
		State:        states,
	}
}

// downStore is a state store whose connection is gone
type downStore struct{}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

// setupTestRouter creates a test router over the test catalog
func setupTestRouter(t *testing.T) *gin.Engine {
	return SetupRouter(testConfig(), NewHandler(newTestServices(t, testCatalog)))
}

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req, _ = http.NewRequest(method, path, nil)
	} else {
		req, _ = http.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response), "body: %s", w.Body.String())
	return response
}

// TestHealthCheckEndpoint tests the health check endpoint
func TestHealthCheckEndpoint(t *testing.T) {
	t.Run("returns healthy status with catalog stats", func(t *testing.T) {
		w := doJSON(setupTestRouter(t), "GET", "/health", "")

		if w.Code != http.StatusOK {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
		}

		response := decode(t, w)
		if response["status"] != "healthy" {
			t.Errorf("status = %v, want healthy", response["status"])
		}
		if response["service"] != "cartwise-backend" {
			t.Errorf("service = %v, want cartwise-backend", response["service"])
		}
		catalog, ok := response["catalog"].(map[string]interface{})
		if !ok || catalog["products"] != float64(len(testCatalog)) {
			t.Errorf("catalog = %v, want %d products", response["catalog"], len(testCatalog))
		}
	})

	t.Run("reports degraded without a catalog", func(t *testing.T) {
		router := SetupRouter(testConfig(), NewHandler(newTestServices(t, nil)))
		response := decode(t, doJSON(router, "GET", "/health", ""))
		if response["status"] != "degraded" {
			t.Errorf("status = %v, want degraded", response["status"])
		}
	})

	t.Run("reports the state store", func(t *testing.T) {
		response := decode(t, doJSON(setupTestRouter(t), "GET", "/health", ""))
		state, ok := response["state"].(map[string]interface{})
		if !ok || state["ok"] != true {
			t.Errorf("state = %v, want ok", response["state"])
		}
	})

	t.Run("reports degraded when the state store is down", func(t *testing.T) {
		services := newTestServices(t, testCatalog)
		services.State = downStore{}
		w := doJSON(SetupRouter(testConfig(), NewHandler(services)), "GET", "/health", "")

		if w.Code != http.StatusOK {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
		}
		response := decode(t, w)
		if response["status"] != "degraded" {
			t.Errorf("status = %v, want degraded", response["status"])
		}
		state, _ := response["state"].(map[string]interface{})
		if state["ok"] != false || state["error"] != "connection refused" {
			t.Errorf("state = %v, want the ping error", response["state"])
		}
	})

	t.Run("accepts GET requests only", func(t *testing.T) {
		router := setupTestRouter(t)

		for _, method := range []string{"POST", "PUT", "DELETE", "PATCH"} {
			w := doJSON(router, method, "/health", "")
			if w.Code != http.StatusNotFound {
				t.Errorf("Method %s: Status = %d, want %d", method, w.Code, http.StatusNotFound)
			}
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	router := setupTestRouter(t)
	doJSON(router, "GET", "/health", "")

	w := doJSON(router, "GET", "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cartwise_api_request_duration_seconds")
}

func TestSubstitutionsEndpoint(t *testing.T) {
	chips := productID("Kettle Potato Chips", "Chips")

	t.Run("suggests a cheaper alternative for an over-budget cart", func(t *testing.T) {
		body := fmt.Sprintf(`{"userId":"u1","budget":3,"items":[{"productId":%d,"quantity":1,"priceSnapshot":4.5}]}`, chips)
		w := doJSON(setupTestRouter(t), "POST", "/api/v1/cart/substitutions", body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var result domain.SubstitutionResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		assert.Equal(t, 4.5, result.CartTotal)
		assert.InDelta(t, 1.5, result.Overage, 1e-9)
		require.Len(t, result.Suggestions, 1)
		require.NotEmpty(t, result.Suggestions[0].Alternatives)
		assert.Equal(t, "Store Brand Potato Chips", result.Suggestions[0].Alternatives[0].Replacement.Title)
		assert.True(t, result.CoversOverage)
	})

	t.Run("returns a message when within budget", func(t *testing.T) {
		body := fmt.Sprintf(`{"userId":"u1","budget":50,"items":[{"productId":%d,"quantity":1,"priceSnapshot":4.5}]}`, chips)
		response := decode(t, doJSON(setupTestRouter(t), "POST", "/api/v1/cart/substitutions", body))
		assert.Equal(t, usecase.MessageWithinBudget, response["message"])
		assert.Empty(t, response["suggestions"])
	})

	t.Run("returns 400 for missing userId", func(t *testing.T) {
		w := doJSON(setupTestRouter(t), "POST", "/api/v1/cart/substitutions", `{"budget":10,"items":[]}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.NotNil(t, decode(t, w)["error"])
	})

	t.Run("returns 400 for non-positive budget", func(t *testing.T) {
		w := doJSON(setupTestRouter(t), "POST", "/api/v1/cart/substitutions", `{"userId":"u1","budget":0}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("returns 400 for invalid JSON", func(t *testing.T) {
		w := doJSON(setupTestRouter(t), "POST", "/api/v1/cart/substitutions", `{invalid}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCheckoutAndRecommendations(t *testing.T) {
	router := setupTestRouter(t)
	chips := productID("Kettle Potato Chips", "Chips")

	t.Run("recommendations before any purchase", func(t *testing.T) {
		response := decode(t, doJSON(router, "GET", "/api/v1/users/u1/recommendations", ""))
		assert.Equal(t, usecase.MessageNoHistory, response["message"])
	})

	t.Run("checkout records an order", func(t *testing.T) {
		body := fmt.Sprintf(`{"userId":"u1","items":[{"productId":%d,"quantity":2,"priceSnapshot":4.5}]}`, chips)
		w := doJSON(router, "POST", "/api/v1/checkout", body)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		var order domain.Order
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &order))
		assert.NotEmpty(t, order.ID)
		require.Len(t, order.Items, 1)
		assert.Equal(t, 2, order.Items[0].Quantity)
	})

	t.Run("recommends neighbours of purchased products", func(t *testing.T) {
		w := doJSON(router, "GET", "/api/v1/users/u1/recommendations?limit=5", "")
		require.Equal(t, http.StatusOK, w.Code)

		var result domain.RecommendationResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		require.NotEmpty(t, result.Recommendations)
		assert.Equal(t, "Store Brand Potato Chips", result.Recommendations[0].Product.Title)
		assert.Equal(t, chips, result.Recommendations[0].BecauseOf)
	})

	t.Run("rejects a bad limit", func(t *testing.T) {
		w := doJSON(router, "GET", "/api/v1/users/u1/recommendations?limit=abc", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("checkout of unknown product is 404", func(t *testing.T) {
		w := doJSON(router, "POST", "/api/v1/checkout", `{"userId":"u1","items":[{"productId":12345,"quantity":1}]}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("checkout of empty cart is 400", func(t *testing.T) {
		w := doJSON(router, "POST", "/api/v1/checkout", `{"userId":"u1","items":[]}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestIntentEndpoints(t *testing.T) {
	router := setupTestRouter(t)
	organic := productID("Organic Whole Milk", "Milk")

	t.Run("records an event and returns the computed intent", func(t *testing.T) {
		body := fmt.Sprintf(`{"userId":"u7","productId":%d,"action":"add"}`, organic)
		w := doJSON(router, "POST", "/api/v1/intent/events", body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var result domain.IntentResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		assert.Equal(t, "u7", result.UserID)
		assert.Equal(t, 1, result.EventsUsed)
		assert.Equal(t, 1, result.QualitySignals)
		assert.Greater(t, result.EMA, 0.5)
	})

	t.Run("returns the stored state", func(t *testing.T) {
		w := doJSON(router, "GET", "/api/v1/users/u7/intent", "")
		require.Equal(t, http.StatusOK, w.Code)

		var state domain.UserIntentState
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
		assert.Greater(t, state.EMA, 0.5)
	})

	t.Run("computes at server time for backdated events", func(t *testing.T) {
		at := time.Now().Add(-2 * time.Hour).UTC().Format(time.RFC3339)
		body := fmt.Sprintf(`{"userId":"u8","productId":%d,"action":"add","at":%q}`, organic, at)
		w := doJSON(router, "POST", "/api/v1/intent/events", body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var result domain.IntentResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		assert.Zero(t, result.EventsUsed, "a two hour old event is outside the window")

		w = doJSON(router, "GET", "/api/v1/users/u8/intent", "")
		require.Equal(t, http.StatusOK, w.Code)
		var state domain.UserIntentState
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
		assert.WithinDuration(t, time.Now(), state.UpdatedAt, time.Minute)
	})

	t.Run("resets the stored state", func(t *testing.T) {
		w := doJSON(router, "DELETE", "/api/v1/users/u7/intent", "")
		require.Equal(t, http.StatusNoContent, w.Code)

		w = doJSON(router, "GET", "/api/v1/users/u7/intent", "")
		require.Equal(t, http.StatusOK, w.Code)
		var state domain.UserIntentState
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
		assert.InDelta(t, 0.5, state.EMA, 1e-9)
		assert.Equal(t, domain.ModeBalanced, state.Mode)
	})

	t.Run("rejects an unknown action", func(t *testing.T) {
		body := fmt.Sprintf(`{"userId":"u7","productId":%d,"action":"wishlist"}`, organic)
		w := doJSON(router, "POST", "/api/v1/intent/events", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestInteractionEndpoints(t *testing.T) {
	router := setupTestRouter(t)

	w := doJSON(router, "POST", "/api/v1/interactions", `{"userId":"u1","productId":42,"event":"accepted","score":0.8}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotEmpty(t, decode(t, w)["id"])

	w = doJSON(router, "POST", "/api/v1/interactions", `{"userId":"u1","productId":42,"event":"liked"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	response := decode(t, doJSON(router, "GET", "/api/v1/users/u1/interactions", ""))
	interactions, ok := response["interactions"].([]interface{})
	require.True(t, ok)
	assert.Len(t, interactions, 1)
}

func TestProductEndpoint(t *testing.T) {
	router := setupTestRouter(t)
	id := productID("Bananas", "Fruit")

	t.Run("returns a product", func(t *testing.T) {
		w := doJSON(router, "GET", fmt.Sprintf("/api/v1/products/%d", id), "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Bananas", decode(t, w)["title"])
	})

	testCases := []struct {
		name   string
		path   string
		status int
	}{
		{"unknown id", "/api/v1/products/1", http.StatusNotFound},
		{"non-numeric id", "/api/v1/products/abc", http.StatusBadRequest},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.status, doJSON(router, "GET", tc.path, "").Code)
		})
	}

	t.Run("unavailable without a catalog", func(t *testing.T) {
		router := SetupRouter(testConfig(), NewHandler(newTestServices(t, nil)))
		w := doJSON(router, "GET", fmt.Sprintf("/api/v1/products/%d", id), "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestUnconfiguredServices(t *testing.T) {
	router := SetupRouter(testConfig(), NewHandler(Services{}))

	endpoints := []struct {
		method string
		path   string
	}{
		{"POST", "/api/v1/cart/substitutions"},
		{"GET", "/api/v1/users/u1/recommendations"},
		{"POST", "/api/v1/intent/events"},
		{"GET", "/api/v1/users/u1/intent"},
		{"DELETE", "/api/v1/users/u1/intent"},
		{"POST", "/api/v1/interactions"},
		{"POST", "/api/v1/checkout"},
		{"GET", "/api/v1/products/1"},
	}

	for _, endpoint := range endpoints {
		t.Run(endpoint.method+" "+endpoint.path, func(t *testing.T) {
			w := doJSON(router, endpoint.method, endpoint.path, "")

			if w.Code != http.StatusNotImplemented {
				t.Errorf("Status = %d, want %d", w.Code, http.StatusNotImplemented)
			}
			if got := w.Header().Get("Content-Type"); got != "application/json; charset=utf-8" {
				t.Errorf("Content-Type = %q, want application/json", got)
			}
			errorMsg, _ := decode(t, w)["error"].(string)
			if !strings.Contains(errorMsg, "not configured") {
				t.Errorf("error = %q, want to contain 'not configured'", errorMsg)
			}
		})
	}
}

// TestCORSIntegration tests CORS headers work end-to-end with full router
func TestCORSIntegration(t *testing.T) {
	t.Run("health endpoint has CORS for Chrome extension", func(t *testing.T) {
		router := setupTestRouter(t)

		req, _ := http.NewRequest("GET", "/health", nil)
		req.Header.Set("Origin", "chrome-extension://abcdefghijklmnop")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "chrome-extension://abcdefghijklmnop" {
			t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "chrome-extension://abcdefghijklmnop")
		}
		if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
			t.Errorf("Access-Control-Allow-Credentials = %q, want %q", got, "true")
		}
	})

	t.Run("api endpoint has CORS for localhost", func(t *testing.T) {
		router := setupTestRouter(t)

		req, _ := http.NewRequest("POST", "/api/v1/cart/substitutions", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
			t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "http://localhost:3000")
		}
	})
}

// TestRecoveryMiddleware tests panic recovery
func TestRecoveryMiddleware(t *testing.T) {
	router := setupTestRouter(t)
	router.GET("/panic", func(c *gin.Context) {
		panic("test panic")
	})

	w := doJSON(router, "GET", "/panic", "")

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if decode(t, w)["error"] != "internal server error" {
		t.Errorf("error body = %s", w.Body.String())
	}
}

// TestAPIVersioning tests that API v1 routes are correctly versioned
func TestAPIVersioning(t *testing.T) {
	router := setupTestRouter(t)

	for _, path := range []string{"/api/cart/substitutions", "/cart/substitutions", "/api/v2/cart/substitutions"} {
		w := doJSON(router, "POST", path, "")
		if w.Code != http.StatusNotFound {
			t.Errorf("Path %s: Status = %d, want %d", path, w.Code, http.StatusNotFound)
		}
	}
}
