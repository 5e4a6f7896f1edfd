package domain

import "errors"

var (
	// ErrProductNotFound is returned when a product id is not in the catalog
	ErrProductNotFound = errors.New("product not found in catalog")

	// ErrCatalogEmpty is returned when the catalog has no products
	ErrCatalogEmpty = errors.New("catalog is empty")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrModelUnavailable is returned when a trained model is not loaded
	ErrModelUnavailable = errors.New("model not available")

	// ErrStateNotFound is returned when no intent state is stored for a user
	ErrStateNotFound = errors.New("intent state not found")

	// ErrRetrainInProgress is returned when a retrain is already running
	ErrRetrainInProgress = errors.New("retrain already in progress")

	// ErrEmbeddingFailure is returned when the embedding service fails
	ErrEmbeddingFailure = errors.New("embedding request failed")

	// ErrNoTrainingData is returned when there is not enough history to fit weights
	ErrNoTrainingData = errors.New("not enough training data")

	// ErrRateLimited is returned when rate limit is exceeded
	ErrRateLimited = errors.New("rate limit exceeded")
)
