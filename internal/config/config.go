package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Session store backends accepted by SESSION_STORE.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	ApplicationName    string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// MinIOConfig holds object storage settings for MinIO.
// An empty Endpoint disables document archiving.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// RedisConfig holds settings for the redis session backend.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// ReviewConfig controls the review workflow.
type ReviewConfig struct {
	ConfidenceThreshold float64
	MaxRegenerations    int
	SessionTTL          time.Duration
	GracePeriod         time.Duration
	SweepInterval       time.Duration
	ClassifyTimeout     time.Duration
	SuggestTimeout      time.Duration
	ClassifyConcurrency int
	MaxDocumentBytes    int
}

// ClassifierConfig points at the external bias classification endpoint.
type ClassifierConfig struct {
	URL    string
	APIKey string
}

// LLMConfig points at an OpenAI-compatible chat completions endpoint used for suggestions.
type LLMConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	PromptsFile string
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	Env        string
	Port       string
	Store      string
	Review     ReviewConfig
	Database   DatabaseConfig
	MinIO      MinIOConfig
	Redis      RedisConfig
	Classifier ClassifierConfig
	LLM        LLMConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
func Load() *AppConfig {
	return &AppConfig{
		Env:   getEnv("APP_ENV", "development"),
		Port:  getEnv("PORT", "8080"),
		Store: getEnv("SESSION_STORE", StoreMemory),
		Review: ReviewConfig{
			ConfidenceThreshold: getEnvFloat("REVIEW_CONFIDENCE_THRESHOLD", 0.7),
			MaxRegenerations:    getEnvInt("REVIEW_MAX_REGENERATIONS", 5),
			SessionTTL:          getEnvDuration("REVIEW_SESSION_TTL", 24*time.Hour),
			GracePeriod:         getEnvDuration("REVIEW_GRACE_PERIOD", time.Hour),
			SweepInterval:       getEnvDuration("REVIEW_SWEEP_INTERVAL", time.Minute),
			ClassifyTimeout:     getEnvDuration("REVIEW_CLASSIFY_TIMEOUT", 10*time.Second),
			SuggestTimeout:      getEnvDuration("REVIEW_SUGGEST_TIMEOUT", 20*time.Second),
			ClassifyConcurrency: getEnvInt("REVIEW_CLASSIFY_CONCURRENCY", 8),
			MaxDocumentBytes:    getEnvInt("REVIEW_MAX_DOCUMENT_BYTES", 5<<20),
		},
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			ApplicationName:    getEnv("DB_APPLICATION_NAME", "debiasapi"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", ""),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvInt("REDIS_DB", 0),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "debias:session:"),
		},
		Classifier: ClassifierConfig{
			URL:    getEnv("CLASSIFIER_URL", ""),
			APIKey: getEnv("CLASSIFIER_API_KEY", ""),
		},
		LLM: LLMConfig{
			BaseURL:     getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
			APIKey:      getEnv("LLM_API_KEY", ""),
			Model:       getEnv("LLM_MODEL", "gpt-4o-mini"),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.7),
			PromptsFile: getEnv("LLM_PROMPTS_FILE", ""),
		},
	}
}

// Validate reports the first setting that cannot drive the service.
func (c *AppConfig) Validate() error {
	r := c.Review
	if r.ConfidenceThreshold < 0 || r.ConfidenceThreshold > 1 {
		return fmt.Errorf("REVIEW_CONFIDENCE_THRESHOLD must be within [0,1], got %v", r.ConfidenceThreshold)
	}
	if r.MaxRegenerations < 0 {
		return fmt.Errorf("REVIEW_MAX_REGENERATIONS must not be negative")
	}
	if r.SessionTTL <= 0 || r.SweepInterval <= 0 {
		return fmt.Errorf("REVIEW_SESSION_TTL and REVIEW_SWEEP_INTERVAL must be positive")
	}
	if r.GracePeriod < 0 {
		return fmt.Errorf("REVIEW_GRACE_PERIOD must not be negative")
	}
	if r.ClassifyTimeout <= 0 || r.SuggestTimeout <= 0 {
		return fmt.Errorf("REVIEW_CLASSIFY_TIMEOUT and REVIEW_SUGGEST_TIMEOUT must be positive")
	}
	if r.ClassifyConcurrency <= 0 || r.MaxDocumentBytes <= 0 {
		return fmt.Errorf("REVIEW_CLASSIFY_CONCURRENCY and REVIEW_MAX_DOCUMENT_BYTES must be positive")
	}
	switch c.Store {
	case StoreMemory, StorePostgres:
	case StoreRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR is required when SESSION_STORE=redis")
		}
	default:
		return fmt.Errorf("unknown SESSION_STORE %q", c.Store)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}
