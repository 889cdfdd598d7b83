package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Epistemic-Technology/docextract/internal/cost"
	"github.com/Epistemic-Technology/docextract/internal/errs"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Model      ModelConfig
	Extraction ExtractionConfig
	Pricing    PricingConfig
	Fetch      FetchConfig
	Storage    StorageConfig
	Zotero     ZoteroConfig
	S3         S3Config
	RateLimit  RateLimitConfig

	// malformed lists environment values that failed to parse
	malformed []string
}

// ModelConfig selects and parameterizes the extraction backend
type ModelConfig struct {
	Provider             string
	ID                   string
	URL                  string
	APIKey               string
	Temperature          float64
	Timeout              time.Duration
	FenceOutput          bool
	UseSchemaConstraints bool
}

// ExtractionConfig holds orchestrator defaults
type ExtractionConfig struct {
	Passes          int
	MaxCharBuffer   int
	Concurrency     int
	FailurePolicy   string
	BoundaryAware   bool
	ResolveOverlaps bool
}

// PricingConfig holds the two-tier price table
type PricingConfig struct {
	ThresholdTokens int
	BaseRate        float64
	UpperRate       float64
}

// FetchConfig holds document retrieval settings
type FetchConfig struct {
	Timeout    time.Duration
	ScratchDir string
}

// StorageConfig selects the result store
type StorageConfig struct {
	Backend string
	Path    string
}

// ZoteroConfig holds Zotero web API credentials
type ZoteroConfig struct {
	APIKey    string
	LibraryID string
}

// S3Config holds credentials for s3:// locators
type S3Config struct {
	Region    string
	AccessKey string
	SecretKey string
}

// RateLimitConfig bounds calls to hosted model backends
type RateLimitConfig struct {
	TokensPerSecond float64
	Burst           int
	MaxRetries      int
}

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	PolicyProceed = "proceed"
	PolicyAbort   = "abort"

	BackendJSONL  = "jsonl"
	BackendSQLite = "sqlite"
)

// Load reads an optional .env file and then the environment.
func Load() *Config {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds the configuration from environment variables only.
func FromEnv() *Config {
	env := &envReader{}
	provider := strings.ToLower(getEnv("MODEL_PROVIDER", ProviderOllama))
	backend := strings.ToLower(getEnv("STORAGE_BACKEND", BackendJSONL))

	cfg := &Config{
		Model: ModelConfig{
			Provider:             provider,
			ID:                   getEnv("MODEL_ID", defaultModelID(provider)),
			URL:                  getEnv("MODEL_URL", defaultModelURL(provider)),
			APIKey:               getEnv("MODEL_API_KEY", defaultAPIKey(provider)),
			Temperature:          env.getEnvAsFloat("TEMPERATURE", 0.3),
			Timeout:              env.getEnvAsDuration("MODEL_TIMEOUT", 120*time.Second),
			FenceOutput:          env.getEnvAsBool("FENCE_OUTPUT", false),
			UseSchemaConstraints: env.getEnvAsBool("USE_SCHEMA_CONSTRAINTS", false),
		},
		Extraction: ExtractionConfig{
			Passes:          env.getEnvAsInt("EXTRACTION_PASSES", 3),
			MaxCharBuffer:   env.getEnvAsInt("MAX_CHAR_BUFFER", 1000),
			Concurrency:     env.getEnvAsInt("EXTRACTION_CONCURRENCY", 4),
			FailurePolicy:   strings.ToLower(getEnv("FAILURE_POLICY", PolicyProceed)),
			BoundaryAware:   env.getEnvAsBool("BOUNDARY_AWARE", false),
			ResolveOverlaps: env.getEnvAsBool("RESOLVE_OVERLAPS", false),
		},
		Pricing: PricingConfig{
			ThresholdTokens: env.getEnvAsInt("PRICING_THRESHOLD_TOKENS", cost.DefaultThresholdTokens),
			BaseRate:        env.getEnvAsFloat("PRICING_BASE_RATE", cost.DefaultBaseRate),
			UpperRate:       env.getEnvAsFloat("PRICING_UPPER_RATE", cost.DefaultUpperRate),
		},
		Fetch: FetchConfig{
			Timeout:    env.getEnvAsDuration("FETCH_TIMEOUT", 60*time.Second),
			ScratchDir: getEnv("SCRATCH_DIR", os.TempDir()),
		},
		Storage: StorageConfig{
			Backend: backend,
			Path:    getEnv("STORAGE_PATH", defaultStoragePath(backend)),
		},
		Zotero: ZoteroConfig{
			APIKey:    getEnv("ZOTERO_API_KEY", ""),
			LibraryID: getEnv("ZOTERO_LIBRARY_ID", ""),
		},
		S3: S3Config{
			Region:    getEnv("AWS_REGION", "us-east-1"),
			AccessKey: getEnv("AWS_ACCESS_KEY", ""),
			SecretKey: getEnv("AWS_SECRET_KEY", ""),
		},
		RateLimit: RateLimitConfig{
			TokensPerSecond: env.getEnvAsFloat("RATE_LIMIT_TOKENS_PER_SECOND", 1),
			Burst:           env.getEnvAsInt("RATE_LIMIT_BURST", 4),
			MaxRetries:      env.getEnvAsInt("RATE_LIMIT_MAX_RETRIES", 5),
		},
	}
	cfg.malformed = env.malformed
	return cfg
}

func defaultModelID(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderGemini:
		return "gemini-1.5-flash"
	default:
		return "gemma2:2b"
	}
}

func defaultModelURL(provider string) string {
	if provider != ProviderOllama {
		return ""
	}
	return getEnv("OLLAMA_HOST", "http://localhost:11434")
}

func defaultAPIKey(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	case ProviderGemini:
		return os.Getenv("GEMINI_API_KEY")
	}
	return ""
}

func defaultStoragePath(backend string) string {
	if backend == BackendSQLite {
		return "extraction_results.db"
	}
	return "extraction_results.jsonl"
}

// PricingTable converts the pricing section into a cost table.
func (c *Config) PricingTable() cost.Pricing {
	return cost.TwoTier(c.Pricing.ThresholdTokens, c.Pricing.BaseRate, c.Pricing.UpperRate)
}

// Validate fails fast on settings that would otherwise surface mid-run.
func (c *Config) Validate() error {
	if len(c.malformed) > 0 {
		return errs.Configurationf("config", "malformed settings: %s", strings.Join(c.malformed, "; "))
	}
	switch c.Model.Provider {
	case ProviderOllama, ProviderOpenAI, ProviderGemini:
	default:
		return errs.Configurationf("config", "MODEL_PROVIDER %q is not one of ollama, openai, gemini", c.Model.Provider)
	}
	if c.Model.ID == "" {
		return errs.Configurationf("config", "MODEL_ID is required")
	}
	if c.Model.Timeout <= 0 {
		return errs.Configurationf("config", "MODEL_TIMEOUT must be positive")
	}
	if c.Extraction.Passes < 1 {
		return errs.Configurationf("config", "EXTRACTION_PASSES must be at least 1, got %d", c.Extraction.Passes)
	}
	if c.Extraction.MaxCharBuffer <= 0 {
		return errs.Configurationf("config", "MAX_CHAR_BUFFER must be positive, got %d", c.Extraction.MaxCharBuffer)
	}
	if c.Extraction.Concurrency < 1 {
		return errs.Configurationf("config", "EXTRACTION_CONCURRENCY must be at least 1, got %d", c.Extraction.Concurrency)
	}
	switch c.Extraction.FailurePolicy {
	case PolicyProceed, PolicyAbort:
	default:
		return errs.Configurationf("config", "FAILURE_POLICY %q is not one of proceed, abort", c.Extraction.FailurePolicy)
	}
	switch c.Storage.Backend {
	case BackendJSONL, BackendSQLite:
	default:
		return errs.Configurationf("config", "STORAGE_BACKEND %q is not one of jsonl, sqlite", c.Storage.Backend)
	}
	if c.Storage.Path == "" {
		return errs.Configurationf("config", "STORAGE_PATH is required")
	}
	if c.RateLimit.TokensPerSecond <= 0 || c.RateLimit.Burst < 1 {
		return errs.Configurationf("config", "rate limit needs positive RATE_LIMIT_TOKENS_PER_SECOND and RATE_LIMIT_BURST")
	}
	return c.PricingTable().Validate()
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envReader parses typed values and records the ones that do not parse.
// A malformed value yields the default and fails Validate.
type envReader struct {
	malformed []string
}

func (r *envReader) reject(key, value, want string) {
	r.malformed = append(r.malformed, fmt.Sprintf("%s=%q is not %s", key, value, want))
}

func (r *envReader) getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		r.reject(key, value, "an integer")
		return defaultValue
	}
	return intVal
}

func (r *envReader) getEnvAsFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		r.reject(key, value, "a number")
		return defaultValue
	}
	return floatVal
}

func (r *envReader) getEnvAsBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		r.reject(key, value, "a boolean")
		return defaultValue
	}
	return boolVal
}

func (r *envReader) getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		r.reject(key, value, "a duration")
		return defaultValue
	}
	return duration
}
