package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cartwise/backend/internal/domain"
	"github.com/cartwise/backend/internal/logging"
	"github.com/cartwise/backend/internal/usecase"
)

// healthPingTimeout bounds the state store check in /health
const healthPingTimeout = 2 * time.Second

// Pinger is a dependency /health can check
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services are the usecases served over HTTP. A nil service answers 501.
type Services struct {
	Catalog         *usecase.CatalogHolder
	Substitutions   *usecase.SubstitutionService
	Recommendations *usecase.RecommendationService
	Intent          *usecase.IntentTracker
	Interactions    *usecase.InteractionService
	Checkout        *usecase.CheckoutService
	State           Pinger // Intent state store, optional
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	state           Pinger
	catalog         *usecase.CatalogHolder
	substitutions   *usecase.SubstitutionService
	recommendations *usecase.RecommendationService
	intent          *usecase.IntentTracker
	interactions    *usecase.InteractionService
	checkout        *usecase.CheckoutService
}

// NewHandler creates a new HTTP handler
func NewHandler(services Services) *Handler {
	return &Handler{
		state:           services.State,
		catalog:         services.Catalog,
		substitutions:   services.Substitutions,
		recommendations: services.Recommendations,
		intent:          services.Intent,
		interactions:    services.Interactions,
		checkout:        services.Checkout,
	}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	response := gin.H{
		"status":  "healthy",
		"service": "cartwise-backend",
		"version": "1.0.0",
	}

	var idx *usecase.CatalogIndex
	if h.catalog != nil {
		idx = h.catalog.Current()
	}
	if idx == nil {
		response["status"] = "degraded"
		response["catalog"] = gin.H{"loaded": false}
	} else {
		response["catalog"] = gin.H{
			"loaded":    true,
			"products":  idx.Len(),
			"threshold": idx.Threshold(),
			"builtAt":   idx.BuiltAt(),
		}
	}

	if h.state != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthPingTimeout)
		defer cancel()
		if err := h.state.Ping(ctx); err != nil {
			logging.Warn().Err(err).Msg("[HTTP] state store ping failed")
			response["status"] = "degraded"
			response["state"] = gin.H{"ok": false, "error": err.Error()}
		} else {
			response["state"] = gin.H{"ok": true}
		}
	}

	c.JSON(http.StatusOK, response)
}

// SuggestSubstitutions handles budget substitution requests
func (h *Handler) SuggestSubstitutions(c *gin.Context) {
	if h.substitutions == nil {
		notConfigured(c, "substitution")
		return
	}

	var cart domain.Cart
	if err := c.ShouldBindJSON(&cart); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.substitutions.SuggestSubstitutions(c.Request.Context(), cart)
	if err != nil {
		h.respondError(c, err, "substitutions")
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetRecommendations handles personalized recommendation requests
func (h *Handler) GetRecommendations(c *gin.Context) {
	if h.recommendations == nil {
		notConfigured(c, "recommendation")
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	result, err := h.recommendations.RecommendForUser(c.Request.Context(), c.Param("userId"), limit)
	if err != nil {
		h.respondError(c, err, "recommendations")
		return
	}

	c.JSON(http.StatusOK, result)
}

// RecordIntentEvent records a cart event and returns the recomputed intent
func (h *Handler) RecordIntentEvent(c *gin.Context) {
	if h.intent == nil {
		notConfigured(c, "intent")
		return
	}

	var event domain.IntentEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		badRequest(c, err)
		return
	}

	ctx := c.Request.Context()
	if err := h.intent.Record(ctx, event); err != nil {
		h.respondError(c, err, "intent_event")
		return
	}

	// Intent is computed at server time; the event's own timestamp only places it in the window
	result, err := h.intent.Compute(ctx, event.UserID, time.Time{})
	if err != nil {
		h.respondError(c, err, "intent_compute")
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetIntent returns the user's stored intent state
func (h *Handler) GetIntent(c *gin.Context) {
	if h.intent == nil {
		notConfigured(c, "intent")
		return
	}

	userID := c.Param("userId")
	if strings.TrimSpace(userID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}

	c.JSON(http.StatusOK, h.intent.Current(c.Request.Context(), userID))
}

// ResetIntent clears the user's stored intent state
func (h *Handler) ResetIntent(c *gin.Context) {
	if h.intent == nil {
		notConfigured(c, "intent")
		return
	}

	if err := h.intent.Reset(c.Request.Context(), c.Param("userId")); err != nil {
		h.respondError(c, err, "intent_reset")
		return
	}

	c.Status(http.StatusNoContent)
}

// RecordInteraction appends a recommendation interaction
func (h *Handler) RecordInteraction(c *gin.Context) {
	if h.interactions == nil {
		notConfigured(c, "interaction")
		return
	}

	var interaction domain.RecommendationInteraction
	if err := c.ShouldBindJSON(&interaction); err != nil {
		badRequest(c, err)
		return
	}

	recorded, err := h.interactions.RecordInteraction(c.Request.Context(), interaction)
	if err != nil {
		h.respondError(c, err, "interaction")
		return
	}

	c.JSON(http.StatusCreated, recorded)
}

// ListInteractions returns the user's interaction log
func (h *Handler) ListInteractions(c *gin.Context) {
	if h.interactions == nil {
		notConfigured(c, "interaction")
		return
	}

	interactions, err := h.interactions.List(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.respondError(c, err, "interactions")
		return
	}
	if interactions == nil {
		interactions = []domain.RecommendationInteraction{}
	}

	c.JSON(http.StatusOK, gin.H{"interactions": interactions})
}

// checkoutRequest is a purchased cart; unlike substitution requests it has no budget
type checkoutRequest struct {
	UserID string            `json:"userId" binding:"required"`
	Items  []domain.CartItem `json:"items" binding:"required,min=1"`
}

// Checkout records a completed order
func (h *Handler) Checkout(c *gin.Context) {
	if h.checkout == nil {
		notConfigured(c, "checkout")
		return
	}

	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	cart := domain.Cart{UserID: req.UserID, Items: req.Items}
	order, err := h.checkout.Checkout(c.Request.Context(), cart)
	if err != nil {
		h.respondError(c, err, "checkout")
		return
	}

	c.JSON(http.StatusCreated, order)
}

// GetProduct returns one catalog product
func (h *Handler) GetProduct(c *gin.Context) {
	if h.catalog == nil {
		notConfigured(c, "catalog")
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "product id must be an integer"})
		return
	}

	idx := h.catalog.Current()
	if idx == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": usecase.MessageCatalogNotLoaded})
		return
	}

	product, ok := idx.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": domain.ErrProductNotFound.Error()})
		return
	}

	c.JSON(http.StatusOK, product)
}

// respondError maps usecase errors to HTTP status codes
func (h *Handler) respondError(c *gin.Context, err error, op string) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrProductNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrCatalogEmpty):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": usecase.MessageCatalogNotLoaded})
	case errors.Is(err, domain.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	default:
		logging.Error().Err(err).Str("op", op).Str("path", c.FullPath()).Msg("[HTTP] request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid request body",
		"details": err.Error(),
	})
}

func notConfigured(c *gin.Context, service string) {
	c.JSON(http.StatusNotImplemented, gin.H{
		"error": service + " service not configured",
	})
}
