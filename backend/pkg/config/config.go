package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	apperrors "knowledge-organization/backend/pkg/errors"
)

// Config holds all application configuration
type Config struct {
	// App
	Port         string
	Env          string
	LogLevel     string
	StoreBackend string // neo4j or memory

	// Neo4j
	Neo4jURI         string
	Neo4jUser        string
	Neo4jPassword    string
	Neo4jDatabase    string
	Neo4jMaxPoolSize int
	Neo4jTimeout     time.Duration

	// Redis backs the metrics cache when set; otherwise it stays in process
	RedisURL string

	// Similarity
	SimilarityMetric string
	SimilarityDim    int

	// Extraction
	ExtractionBatchSize int
	RelationshipTTL     time.Duration
	RelationshipCap     int // cached pair capacity

	// Building
	MinConnectionsPerNode int
	MaxParallelBatches    int

	// Optimization
	Optimization OptimizationSettings

	// Embeddings (OpenAI-compatible)
	EmbeddingURL    string
	EmbeddingModel  string
	EmbeddingAPIKey string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:                  getEnv("PORT", "8080"),
		Env:                   getEnv("ENV", "development"),
		LogLevel:              getEnv("LOG_LEVEL", ""),
		StoreBackend:          getEnv("STORE_BACKEND", "neo4j"),
		Neo4jURI:              getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:             getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:         getEnv("NEO4J_PASSWORD", "password"),
		Neo4jDatabase:         getEnv("NEO4J_DATABASE", "neo4j"),
		Neo4jMaxPoolSize:      getEnvInt("NEO4J_MAX_POOL_SIZE", 50),
		Neo4jTimeout:          time.Duration(getEnvInt("NEO4J_TIMEOUT_SECONDS", 30)) * time.Second,
		RedisURL:              getEnv("REDIS_URL", ""),
		SimilarityMetric:      getEnv("SIMILARITY_METRIC", "cosine"),
		SimilarityDim:         getEnvInt("SIMILARITY_MAX_DIMENSION", 4096),
		ExtractionBatchSize:   getEnvInt("EXTRACTION_BATCH_SIZE", 100),
		RelationshipTTL:       getEnvDuration("RELATIONSHIP_CACHE_TTL", time.Hour),
		RelationshipCap:       getEnvInt("RELATIONSHIP_CACHE_CAPACITY", 100000),
		MinConnectionsPerNode: getEnvInt("MIN_CONNECTIONS_PER_NODE", 10),
		MaxParallelBatches:    getEnvInt("MAX_PARALLEL_BATCHES", 5),
		Optimization:          DefaultOptimization(),
		EmbeddingURL:          getEnv("EMBEDDING_URL", ""),
		EmbeddingModel:        getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingAPIKey:       getEnv("EMBEDDING_API_KEY", ""),
	}
	cfg.Optimization.applyEnv()

	if path := getEnv("OPTIMIZATION_CONFIG_FILE", ""); path != "" {
		opt, err := LoadOptimizationFile(path, cfg.Optimization)
		if err != nil {
			return nil, err
		}
		cfg.Optimization = opt
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	switch c.Env {
	case "development", "staging", "production":
	default:
		return apperrors.NewConfigValidationFailed("ENV", "must be development, staging or production")
	}
	switch c.StoreBackend {
	case "memory":
	case "neo4j":
		if c.Neo4jURI == "" {
			return apperrors.NewConfigMissingRequired("NEO4J_URI")
		}
		if c.Neo4jUser == "" {
			return apperrors.NewConfigMissingRequired("NEO4J_USER")
		}
		if c.Neo4jPassword == "" {
			return apperrors.NewConfigMissingRequired("NEO4J_PASSWORD")
		}
	default:
		return apperrors.NewConfigValidationFailed("STORE_BACKEND", "must be neo4j or memory")
	}
	switch strings.ToLower(c.SimilarityMetric) {
	case "cosine", "euclidean", "manhattan", "dot_product":
	default:
		return apperrors.NewConfigValidationFailed("SIMILARITY_METRIC", fmt.Sprintf("unsupported metric %q", c.SimilarityMetric))
	}
	if c.ExtractionBatchSize < 2 {
		return apperrors.NewConfigValidationFailed("EXTRACTION_BATCH_SIZE", "must be at least 2")
	}
	if c.MaxParallelBatches < 1 {
		return apperrors.NewConfigValidationFailed("MAX_PARALLEL_BATCHES", "must be positive")
	}
	if c.MinConnectionsPerNode < 0 {
		return apperrors.NewConfigValidationFailed("MIN_CONNECTIONS_PER_NODE", "must not be negative")
	}
	return c.Optimization.Validate()
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var result float64
		if _, err := fmt.Sscanf(value, "%f", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("90s") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	var secs int
	if _, err := fmt.Sscanf(value, "%d", &secs); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
