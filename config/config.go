package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server         ServerConfig
	Log            LogConfig
	Catalog        CatalogConfig
	Embedding      EmbeddingConfig
	Models         ModelsConfig
	Intent         IntentConfig
	Rerank         RerankConfig
	Blend          BlendConfig
	Substitution   SubstitutionConfig
	Recommendation RecommendationConfig
	State          StateConfig
	RateLimit      RateLimitConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Environment     string        `mapstructure:"environment"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "console"
	Caller bool   `mapstructure:"caller"`
}

// CatalogConfig holds catalog loading and index configuration
type CatalogConfig struct {
	Path                string  `mapstructure:"path"`
	Watch               bool    `mapstructure:"watch"`
	CalibrationPairs    int     `mapstructure:"calibration_pairs"`
	CalibrationQuantile float64 `mapstructure:"calibration_quantile"`
	DefaultThreshold    float64 `mapstructure:"default_threshold"`
	EmbedBatchSize      int     `mapstructure:"embed_batch_size"`
	EmbedConcurrency    int     `mapstructure:"embed_concurrency"`
	StrictFloor         float64 `mapstructure:"strict_floor"`
	MatchLimit          int     `mapstructure:"match_limit"`
}

// EmbeddingConfig holds the remote embedding service configuration.
// An empty base URL disables it and leaves only the hashing embedder.
type EmbeddingConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Model             string        `mapstructure:"model"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	MaxRetries        int           `mapstructure:"max_retries"`
	BreakerFailures   uint32        `mapstructure:"breaker_failures"`
	BreakerTimeout    time.Duration `mapstructure:"breaker_timeout"`
	HashDim           int           `mapstructure:"hash_dim"`
}

// ModelsConfig holds model artifact locations
type ModelsConfig struct {
	CFPath          string        `mapstructure:"cf_path"`
	RankingPath     string        `mapstructure:"ranking_path"`
	WeightsPath     string        `mapstructure:"weights_path"`
	Watch           bool          `mapstructure:"watch"`
	WatchDebounce   time.Duration `mapstructure:"watch_debounce"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
}

// IntentConfig holds intent detection configuration
type IntentConfig struct {
	Window           time.Duration `mapstructure:"window"`
	MaxEvents        int           `mapstructure:"max_events"`
	Alpha            float64       `mapstructure:"alpha"`
	QualityThreshold float64       `mapstructure:"quality_threshold"`
	EconomyThreshold float64       `mapstructure:"economy_threshold"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
}

// RerankConfig holds the guardrail expressions per intent mode
type RerankConfig struct {
	QualityGuardrail  string `mapstructure:"quality_guardrail"`
	EconomyGuardrail  string `mapstructure:"economy_guardrail"`
	BalancedGuardrail string `mapstructure:"balanced_guardrail"`
}

// BlendConfig holds Elastic-Net training configuration
type BlendConfig struct {
	Alpha                   float64       `mapstructure:"alpha"`
	L1Ratio                 float64       `mapstructure:"l1_ratio"`
	MaxIter                 int           `mapstructure:"max_iter"`
	MinSamples              int           `mapstructure:"min_samples"`
	AlternativesPerPurchase int           `mapstructure:"alternatives_per_purchase"`
	RetrainTimeout          time.Duration `mapstructure:"retrain_timeout"`
	RetrainOnStart          bool          `mapstructure:"retrain_on_start"`
}

// SubstitutionConfig holds substitution search configuration
type SubstitutionConfig struct {
	MaxAlternatives int `mapstructure:"max_alternatives"`
}

// RecommendationConfig holds recommendation configuration
type RecommendationConfig struct {
	SeedProducts int `mapstructure:"seed_products"`
	DefaultLimit int `mapstructure:"default_limit"`
	MaxLimit     int `mapstructure:"max_limit"`
}

// StateConfig holds intent state store configuration
type StateConfig struct {
	Type     string        `mapstructure:"type"` // "memory" or "redis"
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	PerIP int `mapstructure:"per_ip"` // Requests per minute
	Burst int `mapstructure:"burst"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/cartwise/")

	// CARTWISE_STATE_REDIS_URL -> state.redis_url
	v.SetEnvPrefix("CARTWISE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set default values
	setDefaults(v)

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile loads a .env file from the working directory when present.
// Variables already set in the environment win.
func loadEnvFile() error {
	err := godotenv.Load()
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// setDefaults sets default configuration values. Every key gets a default
// so AutomaticEnv can bind it during Unmarshal.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", "15s")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.caller", false)

	// Catalog defaults
	v.SetDefault("catalog.path", "./data/catalog.json")
	v.SetDefault("catalog.watch", true)
	v.SetDefault("catalog.calibration_pairs", 2000)
	v.SetDefault("catalog.calibration_quantile", 0.1)
	v.SetDefault("catalog.default_threshold", 0.5)
	v.SetDefault("catalog.embed_batch_size", 32)
	v.SetDefault("catalog.embed_concurrency", 4)
	v.SetDefault("catalog.strict_floor", 0.75)
	v.SetDefault("catalog.match_limit", 20)

	// Embedding defaults
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.model", "nomic-embed-text")
	v.SetDefault("embedding.timeout", "30s")
	v.SetDefault("embedding.requests_per_second", 20)
	v.SetDefault("embedding.burst", 5)
	v.SetDefault("embedding.max_retries", 3)
	v.SetDefault("embedding.breaker_failures", 5)
	v.SetDefault("embedding.breaker_timeout", "30s")
	v.SetDefault("embedding.hash_dim", 256)

	// Model defaults
	v.SetDefault("models.cf_path", "./data/models/cf.json")
	v.SetDefault("models.ranking_path", "./data/models/ranking.json")
	v.SetDefault("models.weights_path", "./data/models/blend_weights.json")
	v.SetDefault("models.watch", true)
	v.SetDefault("models.watch_debounce", "500ms")
	v.SetDefault("models.breaker_failures", 5)
	v.SetDefault("models.breaker_timeout", "30s")

	// Intent defaults
	v.SetDefault("intent.window", "10m")
	v.SetDefault("intent.max_events", 10)
	v.SetDefault("intent.alpha", 0.3)
	v.SetDefault("intent.quality_threshold", 0.6)
	v.SetDefault("intent.economy_threshold", 0.4)
	v.SetDefault("intent.cooldown", "45s")

	// Guardrail defaults are filled in by the re-ranker when empty
	v.SetDefault("rerank.quality_guardrail", "")
	v.SetDefault("rerank.economy_guardrail", "")
	v.SetDefault("rerank.balanced_guardrail", "")

	// Blend defaults
	v.SetDefault("blend.alpha", 0.01)
	v.SetDefault("blend.l1_ratio", 0.5)
	v.SetDefault("blend.max_iter", 1000)
	v.SetDefault("blend.min_samples", 10)
	v.SetDefault("blend.alternatives_per_purchase", 5)
	v.SetDefault("blend.retrain_timeout", "2m")
	v.SetDefault("blend.retrain_on_start", false)

	v.SetDefault("substitution.max_alternatives", 3)

	v.SetDefault("recommendation.seed_products", 5)
	v.SetDefault("recommendation.default_limit", 10)
	v.SetDefault("recommendation.max_limit", 50)

	// State store defaults
	v.SetDefault("state.type", "memory")
	v.SetDefault("state.redis_url", "")
	v.SetDefault("state.ttl", "168h") // 7 days

	// Rate limit defaults
	v.SetDefault("ratelimit.per_ip", 100)
	v.SetDefault("ratelimit.burst", 20)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.State.Type != "memory" && config.State.Type != "redis" {
		return fmt.Errorf("state type must be 'memory' or 'redis', got: %s", config.State.Type)
	}

	if config.State.Type == "redis" && config.State.RedisURL == "" {
		return fmt.Errorf("Redis URL is required when state type is 'redis'")
	}

	if config.Catalog.Path == "" {
		return fmt.Errorf("catalog path is required (set CARTWISE_CATALOG_PATH)")
	}

	if config.Intent.EconomyThreshold >= config.Intent.QualityThreshold {
		return fmt.Errorf("intent economy threshold (%.2f) must be below quality threshold (%.2f)",
			config.Intent.EconomyThreshold, config.Intent.QualityThreshold)
	}

	if config.Blend.L1Ratio < 0 || config.Blend.L1Ratio > 1 {
		return fmt.Errorf("blend l1_ratio must be within [0, 1], got: %v", config.Blend.L1Ratio)
	}

	if config.RateLimit.PerIP <= 0 {
		return fmt.Errorf("ratelimit per_ip must be positive, got: %d", config.RateLimit.PerIP)
	}

	return nil
}
