package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config represents the complete configuration for the transcripts service.
// It provides type-safe access to all configuration values with validation.
type Config struct {
	Server     ServerConfig     `koanf:"server"     validate:"required"`
	Database   DatabaseConfig   `koanf:"database"   validate:"required"`
	Redis      RedisConfig      `koanf:"redis"`
	Knowledge  KnowledgeConfig  `koanf:"knowledge"  validate:"required"`
	LLM        LLMConfig        `koanf:"llm"        validate:"required"`
	RateLimit  RateLimitConfig  `koanf:"rate_limit"`
	Quota      QuotaConfig      `koanf:"quota"`
	Monitoring MonitoringConfig `koanf:"monitoring"`
	Runtime    RuntimeConfig    `koanf:"runtime"    validate:"required"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"             validate:"required"        env:"SERVER_HOST"`
	Port            int           `koanf:"port"             validate:"min=1,max=65535" env:"SERVER_PORT"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"                            env:"SERVER_SHUTDOWN_TIMEOUT"`
	MaxBodyBytes    int64         `koanf:"max_body_bytes"   validate:"min=1"           env:"SERVER_MAX_BODY_BYTES"`
}

// DatabaseConfig contains database connection configuration.
type DatabaseConfig struct {
	ConnString      string          `koanf:"conn_string"       env:"DB_CONN_STRING"`
	Host            string          `koanf:"host"              env:"DB_HOST"`
	Port            string          `koanf:"port"              env:"DB_PORT"`
	User            string          `koanf:"user"              env:"DB_USER"`
	Password        SensitiveString `koanf:"password"          env:"DB_PASSWORD"          sensitive:"true"`
	DBName          string          `koanf:"name"              env:"DB_NAME"`
	SSLMode         string          `koanf:"ssl_mode"          env:"DB_SSL_MODE"`
	MaxOpenConns    int             `koanf:"max_open_conns"    env:"DB_MAX_OPEN_CONNS"`
	MaxIdleConns    int             `koanf:"max_idle_conns"    env:"DB_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration   `koanf:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME"`
	ConnMaxIdleTime time.Duration   `koanf:"conn_max_idle_time" env:"DB_CONN_MAX_IDLE_TIME"`
	AutoMigrate     bool            `koanf:"auto_migrate"      env:"DB_AUTO_MIGRATE"`
}

// DSN returns the connection string, assembling it from components when needed.
func (d *DatabaseConfig) DSN() string {
	if d.ConnString != "" {
		return d.ConnString
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password.Value()),
		Host:   fmt.Sprintf("%s:%s", d.Host, d.Port),
		Path:   "/" + d.DBName,
	}
	if d.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{d.SSLMode}}.Encode()
	}
	return u.String()
}

// RedisConfig is optional; an empty address keeps limiter state in memory.
type RedisConfig struct {
	Addr     string          `koanf:"addr"     env:"REDIS_ADDR"`
	Password SensitiveString `koanf:"password" env:"REDIS_PASSWORD" sensitive:"true"`
	DB       int             `koanf:"db"       env:"REDIS_DB"       validate:"min=0"`
}

// KnowledgeConfig tunes chunking, caching, storage and retrieval.
type KnowledgeConfig struct {
	VectorStore        string        `koanf:"vector_store"         validate:"oneof=pgvector memory" env:"KNOWLEDGE_VECTOR_STORE"`
	Dimension          int           `koanf:"dimension"            validate:"min=1"                 env:"KNOWLEDGE_DIMENSION"`
	ChunkTargetTokens  int           `koanf:"chunk_target_tokens"  validate:"min=1"                 env:"KNOWLEDGE_CHUNK_TARGET_TOKENS"`
	ChunkOverlapWords  int           `koanf:"chunk_overlap_words"  validate:"min=0"                 env:"KNOWLEDGE_CHUNK_OVERLAP_WORDS"`
	MinContentChars    int           `koanf:"min_content_chars"    validate:"min=0"                 env:"KNOWLEDGE_MIN_CONTENT_CHARS"`
	CacheSize          int           `koanf:"cache_size"           validate:"min=1"                 env:"KNOWLEDGE_CACHE_SIZE"`
	CacheTTL           time.Duration `koanf:"cache_ttl"                                             env:"KNOWLEDGE_CACHE_TTL"`
	MinSimilarity      float64       `koanf:"min_similarity"       validate:"min=0,max=1"           env:"KNOWLEDGE_MIN_SIMILARITY"`
	MaxPerDocument     int           `koanf:"max_per_document"     validate:"min=1"                 env:"KNOWLEDGE_MAX_PER_DOCUMENT"`
	MaxResults         int           `koanf:"max_results"          validate:"min=1"                 env:"KNOWLEDGE_MAX_RESULTS"`
	TokenEstimator     string        `koanf:"token_estimator"      validate:"oneof=chars tiktoken"  env:"KNOWLEDGE_TOKEN_ESTIMATOR"`
	MaxContextTokens   int           `koanf:"max_context_tokens"   validate:"min=1"                 env:"KNOWLEDGE_MAX_CONTEXT_TOKENS"`
	EmbedRetryAttempts uint64        `koanf:"embed_retry_attempts"                                  env:"KNOWLEDGE_EMBED_RETRY_ATTEMPTS"`
	EmbedRetryBase     time.Duration `koanf:"embed_retry_base"                                      env:"KNOWLEDGE_EMBED_RETRY_BASE"`
	EmbedRetryMax      time.Duration `koanf:"embed_retry_max"                                       env:"KNOWLEDGE_EMBED_RETRY_MAX"`
	Enrichments        []string      `koanf:"enrichments"          validate:"dive,oneof=token_count summary" env:"KNOWLEDGE_ENRICHMENTS"`
	EnrichmentTimeout  time.Duration `koanf:"enrichment_timeout"                                    env:"KNOWLEDGE_ENRICHMENT_TIMEOUT"`
}

// LLMConfig selects the embedding/completion provider.
type LLMConfig struct {
	Provider        string          `koanf:"provider"         validate:"required"    env:"LLM_PROVIDER"`
	APIKey          SensitiveString `koanf:"api_key"                                 env:"LLM_API_KEY"          sensitive:"true"`
	BaseURL         string          `koanf:"base_url"                                env:"LLM_BASE_URL"`
	ChatModel       string          `koanf:"chat_model"       validate:"required"    env:"LLM_CHAT_MODEL"`
	EmbeddingModel  string          `koanf:"embedding_model"  validate:"required"    env:"LLM_EMBEDDING_MODEL"`
	EmbedBatchSize  int             `koanf:"embed_batch_size" validate:"min=1"       env:"LLM_EMBED_BATCH_SIZE"`
	Temperature     float64         `koanf:"temperature"      validate:"min=0,max=2" env:"LLM_TEMPERATURE"`
	MaxTokens       int             `koanf:"max_tokens"       validate:"min=0"       env:"LLM_MAX_TOKENS"`
	RewriteTimeout  time.Duration   `koanf:"rewrite_timeout"                         env:"LLM_REWRITE_TIMEOUT"`
	RewriteMaxTurns int             `koanf:"rewrite_max_turns" validate:"min=1"      env:"LLM_REWRITE_MAX_TURNS"`
}

// RateLimitConfig contains rate limiting configuration.
type RateLimitConfig struct {
	Enabled         bool          `koanf:"enabled"          env:"RATELIMIT_ENABLED"`
	Ingest          RateConfig    `koanf:"ingest"`
	Query           RateConfig    `koanf:"query"`
	Prefix          string        `koanf:"prefix"           env:"RATELIMIT_PREFIX"`
	MaxRetry        int           `koanf:"max_retry"        env:"RATELIMIT_MAX_RETRY"`
	CleanupInterval time.Duration `koanf:"cleanup_interval" env:"RATELIMIT_CLEANUP_INTERVAL"`
}

// RateConfig represents a single fixed-window limit.
type RateConfig struct {
	Limit  int64         `koanf:"limit"  validate:"min=1"`
	Period time.Duration `koanf:"period"`
}

// Unlimited marks a plan feature as unmetered.
const Unlimited = -1

// QuotaConfig maps plan names to per-feature daily limits.
type QuotaConfig struct {
	Enabled     bool                      `koanf:"enabled"      env:"QUOTA_ENABLED"`
	DefaultPlan string                    `koanf:"default_plan" env:"QUOTA_DEFAULT_PLAN"`
	Plans       map[string]map[string]int `koanf:"plans"`
}

// MonitoringConfig controls the Prometheus scrape endpoint.
type MonitoringConfig struct {
	Enabled bool   `koanf:"enabled" env:"MONITORING_ENABLED"`
	Path    string `koanf:"path"    env:"MONITORING_PATH"`
}

// RuntimeConfig contains runtime behavior configuration.
type RuntimeConfig struct {
	Environment string `koanf:"environment" validate:"oneof=development staging production" env:"RUNTIME_ENVIRONMENT"`
	LogLevel    string `koanf:"log_level"   validate:"oneof=debug info warn error"          env:"RUNTIME_LOG_LEVEL"`
	LogJSON     bool   `koanf:"log_json"                                                    env:"RUNTIME_LOG_JSON"`
}

// Default returns the built-in configuration values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5005,
			ShutdownTimeout: 15 * time.Second,
			MaxBodyBytes:    8 << 20,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            "5432",
			User:            "postgres",
			DBName:          "transcripts",
			SSLMode:         "disable",
			MaxOpenConns:    20,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			AutoMigrate:     true,
		},
		Knowledge: KnowledgeConfig{
			VectorStore:        "pgvector",
			Dimension:          1536,
			ChunkTargetTokens:  500,
			ChunkOverlapWords:  50,
			MinContentChars:    200,
			CacheSize:          1000,
			CacheTTL:           time.Hour,
			MinSimilarity:      0.7,
			MaxPerDocument:     5,
			MaxResults:         20,
			TokenEstimator:     "chars",
			MaxContextTokens:   6000,
			EmbedRetryAttempts: 3,
			EmbedRetryBase:     200 * time.Millisecond,
			EmbedRetryMax:      2 * time.Second,
			Enrichments:        []string{"token_count"},
			EnrichmentTimeout:  20 * time.Second,
		},
		LLM: LLMConfig{
			Provider:        "openai",
			ChatModel:       "gpt-4o-mini",
			EmbeddingModel:  "text-embedding-3-small",
			EmbedBatchSize:  64,
			Temperature:     0.2,
			MaxTokens:       1024,
			RewriteTimeout:  5 * time.Second,
			RewriteMaxTurns: 4,
		},
		RateLimit: RateLimitConfig{
			Enabled:         true,
			Ingest:          RateConfig{Limit: 10, Period: time.Minute},
			Query:           RateConfig{Limit: 30, Period: time.Minute},
			Prefix:          "transcripts:ratelimit:",
			MaxRetry:        3,
			CleanupInterval: 30 * time.Second,
		},
		Quota: QuotaConfig{
			Enabled:     true,
			DefaultPlan: "free",
			Plans: map[string]map[string]int{
				"free":      {"chat": 20, "ingest": 5},
				"pro":       {"chat": 500, "ingest": 100},
				"unlimited": {"chat": Unlimited, "ingest": Unlimited},
			},
		},
		Monitoring: MonitoringConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Runtime: RuntimeConfig{
			Environment: "development",
			LogLevel:    "info",
		},
	}
}
