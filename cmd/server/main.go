package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cartwise/backend/config"
	httpDelivery "github.com/cartwise/backend/internal/delivery/http"
	"github.com/cartwise/backend/internal/domain"
	"github.com/cartwise/backend/internal/infrastructure/cache"
	"github.com/cartwise/backend/internal/infrastructure/catalog"
	"github.com/cartwise/backend/internal/infrastructure/embedding"
	"github.com/cartwise/backend/internal/infrastructure/filewatch"
	"github.com/cartwise/backend/internal/infrastructure/memstore"
	"github.com/cartwise/backend/internal/infrastructure/models"
	"github.com/cartwise/backend/internal/logging"
	"github.com/cartwise/backend/internal/usecase"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Caller: cfg.Log.Caller,
	})

	logging.Info().
		Str("environment", cfg.Server.Environment).
		Str("port", cfg.Server.Port).
		Str("state_store", cfg.State.Type).
		Msg("Starting CartWise Backend v1.0.0")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Catalog: remote embeddings when configured, hashing embedder as the last resort
	var embedders []usecase.NamedEmbedder
	if cfg.Embedding.BaseURL != "" {
		embedders = append(embedders, usecase.NamedEmbedder{
			Name: "remote",
			Embedder: embedding.NewClient(embedding.ClientConfig{
				BaseURL:           cfg.Embedding.BaseURL,
				Model:             cfg.Embedding.Model,
				Timeout:           cfg.Embedding.Timeout,
				RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
				Burst:             cfg.Embedding.Burst,
				MaxRetries:        cfg.Embedding.MaxRetries,
				BreakerFailures:   cfg.Embedding.BreakerFailures,
				BreakerTimeout:    cfg.Embedding.BreakerTimeout,
			}),
		})
		logging.Info().Str("base_url", cfg.Embedding.BaseURL).Str("model", cfg.Embedding.Model).Msg("[EMBED] remote embeddings enabled")
	}
	embedders = append(embedders, usecase.NamedEmbedder{
		Name:     "hashing",
		Embedder: embedding.NewHashingEmbedder(cfg.Embedding.HashDim),
	})

	text := usecase.NewTextPreprocessor(cfg.Server.Environment == "development")
	catalogConfig := usecase.CatalogConfig{
		CalibrationPairs:    cfg.Catalog.CalibrationPairs,
		CalibrationQuantile: cfg.Catalog.CalibrationQuantile,
		DefaultThreshold:    cfg.Catalog.DefaultThreshold,
		EmbedBatchSize:      cfg.Catalog.EmbedBatchSize,
		EmbedConcurrency:    cfg.Catalog.EmbedConcurrency,
	}
	source := catalog.NewFileSource(cfg.Catalog.Path)
	holder := usecase.NewCatalogHolder(nil)

	if err := holder.Rebuild(ctx, source, embedders, text, catalogConfig); err != nil {
		logging.Warn().Err(err).Str("path", source.Path()).Msg("[CATALOG] initial load failed, serving without a catalog")
	}

	// Models
	registry := usecase.NewModelRegistry(nil, nil)
	loader := models.NewLoader(registry, models.Paths{
		CF:      cfg.Models.CFPath,
		Ranking: cfg.Models.RankingPath,
	}, models.BreakerConfig{
		FailureThreshold: cfg.Models.BreakerFailures,
		Timeout:          cfg.Models.BreakerTimeout,
	})
	if err := loader.LoadAll(); err != nil {
		logging.Warn().Err(err).Msg("[MODELS] starting without some models")
	}

	weightStore := models.NewFileWeightStore(cfg.Models.WeightsPath)
	weights, err := weightStore.LoadWeights(ctx)
	if err != nil {
		logging.Info().Err(err).Msg("[BLEND] no learned weights, using fixed blend")
	}
	blender := usecase.NewBlender(weights)

	// Storage
	events := memstore.NewEventStore()
	orders := memstore.NewOrderStore()
	interactions := memstore.NewInteractionLog()

	states, closeStates, err := newStateStore(ctx, cfg.State)
	if err != nil {
		logging.Fatal().Err(err).Str("type", cfg.State.Type).Msg("Failed to create intent state store")
	}
	defer closeStates()

	// Training
	trainer := usecase.NewBlendTrainer(holder, orders, weightStore, usecase.BlendTrainerConfig{
		AlternativesPerPurchase: cfg.Blend.AlternativesPerPurchase,
		MinSamples:              cfg.Blend.MinSamples,
		ElasticNet: usecase.ElasticNetConfig{
			Alpha:   cfg.Blend.Alpha,
			L1Ratio: cfg.Blend.L1Ratio,
			MaxIter: cfg.Blend.MaxIter,
		},
	})
	retrainer := usecase.NewRetrainer(trainer, blender, usecase.RetrainerConfig{Timeout: cfg.Blend.RetrainTimeout})
	if cfg.Blend.RetrainOnStart {
		triggerRetrain(retrainer, "startup")
	}

	// Usecases
	guardrails, err := usecase.NewGuardrails(usecase.GuardrailConfig{
		Quality:  cfg.Rerank.QualityGuardrail,
		Economy:  cfg.Rerank.EconomyGuardrail,
		Balanced: cfg.Rerank.BalancedGuardrail,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to compile guardrail expressions")
	}

	retriever := usecase.NewRetriever(usecase.RetrieverConfig{
		StrictFloor: cfg.Catalog.StrictFloor,
		Limit:       cfg.Catalog.MatchLimit,
	}, nil)
	reranker := usecase.NewReranker(registry, guardrails)
	tracker := usecase.NewIntentTracker(events, states, holder, usecase.IntentConfig{
		Window:           cfg.Intent.Window,
		MaxEvents:        cfg.Intent.MaxEvents,
		Alpha:            cfg.Intent.Alpha,
		QualityThreshold: cfg.Intent.QualityThreshold,
		EconomyThreshold: cfg.Intent.EconomyThreshold,
		Cooldown:         cfg.Intent.Cooldown,
	})

	services := httpDelivery.Services{
		Catalog: holder,
		Substitutions: usecase.NewSubstitutionService(holder, retriever, blender, registry, reranker, tracker, interactions,
			usecase.SubstitutionConfig{MaxAlternatives: cfg.Substitution.MaxAlternatives}),
		Recommendations: usecase.NewRecommendationService(holder, orders, retriever, registry, reranker, tracker,
			usecase.RecommendationConfig{
				SeedProducts: cfg.Recommendation.SeedProducts,
				DefaultLimit: cfg.Recommendation.DefaultLimit,
				MaxLimit:     cfg.Recommendation.MaxLimit,
			}),
		Intent:       tracker,
		Interactions: usecase.NewInteractionService(interactions),
		Checkout:     usecase.NewCheckoutService(holder, orders, retrainer),
		State:        states,
	}

	// Hot reload of the catalog and model artifacts
	if cfg.Catalog.Watch || cfg.Models.Watch {
		watcher, err := filewatch.New(cfg.Models.WatchDebounce)
		if err != nil {
			logging.Warn().Err(err).Msg("[WATCH] file watching disabled")
		} else {
			defer watcher.Close()
			if cfg.Catalog.Watch {
				watch(watcher, cfg.Catalog.Path, func(ctx context.Context) error {
					if err := holder.Rebuild(ctx, source, embedders, text, catalogConfig); err != nil {
						return err
					}
					triggerRetrain(retrainer, "catalog reload")
					return nil
				})
			}
			if cfg.Models.Watch {
				watch(watcher, cfg.Models.CFPath, func(context.Context) error { return loader.LoadCF() })
				watch(watcher, cfg.Models.RankingPath, func(context.Context) error { return loader.LoadRanking() })
				watch(watcher, cfg.Models.WeightsPath, func(ctx context.Context) error {
					w, err := weightStore.LoadWeights(ctx)
					if err != nil {
						return err
					}
					blender.SetWeights(w)
					return nil
				})
			}
			go watcher.Run(ctx)
		}
	}

	// Create HTTP handler with dependencies
	handler := httpDelivery.NewHandler(services)
	router := httpDelivery.SetupRouter(cfg, handler)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logging.Info().Str("addr", server.Addr).Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	logging.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("Graceful shutdown failed")
	}
	retrainer.Wait()
}

// stateStore is an intent state store that /health can ping
type stateStore interface {
	domain.IntentStateStore
	Ping(ctx context.Context) error
}

// newStateStore creates the configured intent state store and its closer
func newStateStore(ctx context.Context, cfg config.StateConfig) (stateStore, func() error, error) {
	if cfg.Type == "redis" {
		store, err := cache.NewRedisStateStore(ctx, cfg.RedisURL, cfg.TTL)
		if err != nil {
			return nil, nil, err
		}
		logging.Info().Dur("ttl", cfg.TTL).Msg("Intent state in redis")
		return store, store.Close, nil
	}
	logging.Info().Dur("ttl", cfg.TTL).Msg("Intent state in memory")
	return cache.NewMemoryStateStore(cfg.TTL), func() error { return nil }, nil
}

func watch(w *filewatch.Watcher, path string, reload filewatch.ReloadFunc) {
	if path == "" {
		return
	}
	if err := w.Add(path, reload); err != nil {
		logging.Warn().Err(err).Str("path", path).Msg("[WATCH] cannot watch file")
	}
}

func triggerRetrain(r *usecase.Retrainer, reason string) {
	if err := r.Trigger(); err != nil && !errors.Is(err, domain.ErrRetrainInProgress) {
		logging.Warn().Err(err).Str("reason", reason).Msg("[RETRAIN] trigger failed")
	}
}
