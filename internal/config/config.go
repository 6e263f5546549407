package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kode4food/timebox"

	"github.com/botflow/engine/pkg/api"
)

type (
	// Config holds configuration settings for the flow engine daemon
	Config struct {
		// API Server
		APIHost  string
		APIPort  int
		LogLevel string

		// Stores
		CatalogStore timebox.StoreConfig
		Redis        RedisConfig

		// Engine
		StepBudget      int
		WorkerPool      int
		FlowCacheSize   int
		SessionTTL      time.Duration
		DedupeTTL       time.Duration
		FallbackMessage string
		Retry           api.RetryConfig
		ShutdownTimeout time.Duration

		// Collaborators
		HTTPTimeout    time.Duration
		ModelEndpoint  string
		ModelAPIKey    string
		FileBucketURL  string
		WebhookBaseURL string
		DBTables       []string
	}

	// RedisConfig covers the plain Redis connection used for sessions,
	// continuations, tenant data, and event dedupe
	RedisConfig struct {
		Addr     string
		Password string
		DB       int
		Prefix   string
	}
)

const (
	DefaultAPIPort = 8080
	DefaultAPIHost = "0.0.0.0"
	MaxTCPPort     = 65535
	DefaultRedisDB = 0

	DefaultRedisEndpoint       = "localhost:6379"
	DefaultRedisPrefix         = "botflow"
	DefaultSnapshotWorkers     = 4
	DefaultSnapshotQueueSize   = 1000
	DefaultSnapshotSaveTimeout = 30 * time.Second

	DefaultStepBudget      = 64
	DefaultWorkerPool      = 16
	DefaultFlowCacheSize   = 1024
	DefaultSessionTTL      = 24 * time.Hour
	DefaultDedupeTTL       = time.Hour
	DefaultHTTPTimeout     = 10 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultFileBucketURL   = "file:///var/lib/botflow/files"

	DefaultRetryMaxRetries  = 5
	DefaultRetryInitBackoff = 1000
	DefaultRetryMaxBackoff  = 60000

	MaxStepBudget    = 10_000
	MaxWorkerPool    = 4096
	MaxFlowCacheSize = 1_000_000
	MaxRetries       = 1000
	MaxBackoffMs     = 24 * 60 * 60 * 1000 // 1 day in ms

	// DefaultFallbackMessage is sent to the user when a node fails
	// permanently and the flow has no failure edge to follow
	DefaultFallbackMessage = "Something went wrong. Please try again later."
)

var (
	ErrInvalidAPIPort    = errors.New("invalid API port")
	ErrInvalidStepBudget = errors.New("step budget must be positive")
	ErrInvalidWorkerPool = errors.New("worker pool size must be positive")
	ErrInvalidSessionTTL = errors.New("session TTL must be positive")
	ErrInvalidMaxRetries = errors.New("retry max retries cannot be zero")
	ErrInvalidBackoff    = errors.New("retry backoff must be positive")
	ErrBackoffTooSmall   = errors.New(
		"retry max backoff must be >= retry initial backoff",
	)
	ErrInvalidBackoffType = errors.New("invalid retry backoff type")
)

// NewDefaultConfig creates a configuration with sensible defaults for the
// server, stores, and engine behavior
func NewDefaultConfig() *Config {
	return &Config{
		APIHost:  DefaultAPIHost,
		APIPort:  DefaultAPIPort,
		LogLevel: "info",
		CatalogStore: timebox.StoreConfig{
			Addr:         DefaultRedisEndpoint,
			Password:     "",
			DB:           DefaultRedisDB,
			Prefix:       DefaultRedisPrefix,
			WorkerCount:  DefaultSnapshotWorkers,
			MaxQueueSize: DefaultSnapshotQueueSize,
			SaveTimeout:  DefaultSnapshotSaveTimeout,
		},
		Redis: RedisConfig{
			Addr:   DefaultRedisEndpoint,
			DB:     DefaultRedisDB,
			Prefix: DefaultRedisPrefix,
		},
		StepBudget:      DefaultStepBudget,
		WorkerPool:      DefaultWorkerPool,
		FlowCacheSize:   DefaultFlowCacheSize,
		SessionTTL:      DefaultSessionTTL,
		DedupeTTL:       DefaultDedupeTTL,
		FallbackMessage: DefaultFallbackMessage,
		Retry: api.RetryConfig{
			BackoffType:  api.BackoffExponential,
			MaxRetries:   DefaultRetryMaxRetries,
			BackoffMs:    DefaultRetryInitBackoff,
			MaxBackoffMs: DefaultRetryMaxBackoff,
		},
		ShutdownTimeout: DefaultShutdownTimeout,
		HTTPTimeout:     DefaultHTTPTimeout,
		FileBucketURL:   DefaultFileBucketURL,
		WebhookBaseURL:  "http://localhost:8080",
	}
}

// LoadFromEnv populates configuration values from environment variables.
// Returns an error if any env var cannot be parsed.
func (c *Config) LoadFromEnv() error {
	LoadStoreConfigFromEnv(&c.CatalogStore, "CATALOG")

	if apiHost := os.Getenv("API_HOST"); apiHost != "" {
		c.APIHost = apiHost
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.LogLevel = logLevel
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Redis.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		c.Redis.Password = password
	}
	if prefix := os.Getenv("REDIS_PREFIX"); prefix != "" {
		c.Redis.Prefix = prefix
	}
	if fallback := os.Getenv("FALLBACK_MESSAGE"); fallback != "" {
		c.FallbackMessage = fallback
	}
	if backoffType := os.Getenv("RETRY_BACKOFF_TYPE"); backoffType != "" {
		c.Retry.BackoffType = api.BackoffType(backoffType)
	}
	if endpoint := os.Getenv("MODEL_ENDPOINT"); endpoint != "" {
		c.ModelEndpoint = endpoint
	}
	if key := os.Getenv("MODEL_API_KEY"); key != "" {
		c.ModelAPIKey = key
	}
	if bucket := os.Getenv("FILE_BUCKET_URL"); bucket != "" {
		c.FileBucketURL = bucket
	}
	if baseURL := os.Getenv("WEBHOOK_BASE_URL"); baseURL != "" {
		c.WebhookBaseURL = baseURL
	}
	if tables := os.Getenv("DB_TABLES"); tables != "" {
		c.DBTables = splitList(tables)
	}

	if err := loadEnvInt("API_PORT", &c.APIPort, 0, MaxTCPPort); err != nil {
		return err
	}
	if err := loadEnvInt("REDIS_DB", &c.Redis.DB, -1, 15); err != nil {
		return err
	}
	if err := loadEnvInt(
		"STEP_BUDGET", &c.StepBudget, 0, MaxStepBudget,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"WORKER_POOL", &c.WorkerPool, 0, MaxWorkerPool,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"FLOW_CACHE_SIZE", &c.FlowCacheSize, 0, MaxFlowCacheSize,
	); err != nil {
		return err
	}
	if err := loadEnvSeconds("SESSION_TTL", &c.SessionTTL); err != nil {
		return err
	}
	if err := loadEnvSeconds("DEDUPE_TTL", &c.DedupeTTL); err != nil {
		return err
	}
	if err := loadEnvSeconds("HTTP_TIMEOUT", &c.HTTPTimeout); err != nil {
		return err
	}

	if err := loadEnvInt(
		"RETRY_MAX_RETRIES", &c.Retry.MaxRetries, 0, MaxRetries,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"RETRY_INITIAL_BACKOFF", &c.Retry.BackoffMs, 0, MaxBackoffMs,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"RETRY_MAX_BACKOFF", &c.Retry.MaxBackoffMs, 0, MaxBackoffMs,
	); err != nil {
		return err
	}

	return nil
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.APIPort <= 0 || c.APIPort > MaxTCPPort {
		return fmt.Errorf("%w: %d", ErrInvalidAPIPort, c.APIPort)
	}

	if c.StepBudget <= 0 {
		return ErrInvalidStepBudget
	}

	if c.WorkerPool <= 0 {
		return ErrInvalidWorkerPool
	}

	if c.SessionTTL <= 0 {
		return ErrInvalidSessionTTL
	}

	if c.Retry.MaxRetries == 0 {
		return ErrInvalidMaxRetries
	}

	if c.Retry.BackoffMs <= 0 || c.Retry.MaxBackoffMs <= 0 {
		return ErrInvalidBackoff
	}

	if c.Retry.MaxBackoffMs < c.Retry.BackoffMs {
		return ErrBackoffTooSmall
	}

	if c.Retry.BackoffType != api.BackoffFixed &&
		c.Retry.BackoffType != api.BackoffLinear &&
		c.Retry.BackoffType != api.BackoffExponential {
		return fmt.Errorf("%w: %s",
			ErrInvalidBackoffType, c.Retry.BackoffType)
	}

	return nil
}

// LoadStoreConfigFromEnv loads Redis store configuration from environment
// variables with the given prefix (e.g., "CATALOG")
func LoadStoreConfigFromEnv(s *timebox.StoreConfig, prefix string) {
	if addr := os.Getenv(prefix + "_REDIS_ADDR"); addr != "" {
		s.Addr = addr
	}
	if password := os.Getenv(prefix + "_REDIS_PASSWORD"); password != "" {
		s.Password = password
	}
	if dbStr := os.Getenv(prefix + "_REDIS_DB"); dbStr != "" {
		db, err := strconv.Atoi(dbStr)
		if err == nil {
			s.DB = db
		}
	}
	if envPrefix := os.Getenv(prefix + "_REDIS_PREFIX"); envPrefix != "" {
		s.Prefix = envPrefix
	}
	if envCount := os.Getenv(prefix + "_SNAPSHOT_WORKERS"); envCount != "" {
		if wc, err := strconv.Atoi(envCount); err == nil && wc >= 0 {
			s.WorkerCount = wc
		}
	}
}

// loadEnvInt reads key from the environment, parses it as an integer, and
// sets *dst if the value is in the range (min, max). Returns an error if
// the value cannot be parsed or falls outside the valid range.
func loadEnvInt[T ~int | ~int64](key string, dst *T, min, max T) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	tv := T(v)
	if tv <= min || tv > max {
		return fmt.Errorf("invalid %s: %d out of range [%d, %d]",
			key, tv, min+1, max)
	}
	*dst = tv
	return nil
}

// splitList parses a comma-separated env value, dropping empty entries
func splitList(s string) []string {
	var res []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			res = append(res, part)
		}
	}
	return res
}

// loadEnvSeconds reads key as a whole number of seconds
func loadEnvSeconds(key string, dst *time.Duration) error {
	var secs int64
	if err := loadEnvInt(key, &secs, 0, int64(7*24*60*60)); err != nil {
		return err
	}
	if secs > 0 {
		*dst = time.Duration(secs) * time.Second
	}
	return nil
}
