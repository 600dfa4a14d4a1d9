package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Verifier    VerifierConfig    `yaml:"verifier"`
	Suppression SuppressionConfig `yaml:"suppression"`
	Evidence    EvidenceConfig    `yaml:"evidence"`
	Classifier  ClassifierConfig  `yaml:"classifier"`
	Log         LogConfig         `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	APIToken       string   `yaml:"api_token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxBatchSize   int      `yaml:"max_batch_size"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr returns host:port to listen on.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// DatabaseConfig holds the suppression store connection.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig enables the shared suppression cache when URL is set.
type RedisConfig struct {
	URL       string `yaml:"url"`
	KeyPrefix string `yaml:"key_prefix"`
}

// VerifierConfig holds source page fetch settings.
type VerifierConfig struct {
	TimeoutMs        int    `yaml:"timeout_ms"`
	UserAgent        string `yaml:"user_agent"`
	MaxBodyBytes     int64  `yaml:"max_body_bytes"`
	Retries          int    `yaml:"retries"`
	FetchConcurrency int    `yaml:"fetch_concurrency"`
}

// Timeout returns the page fetch timeout as a duration
func (c VerifierConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// SuppressionConfig holds the do-not-contact list settings.
type SuppressionConfig struct {
	EncryptionKey   string `yaml:"encryption_key"` // 64 hex chars; empty means hash-only
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	KeepSuppressed  bool   `yaml:"keep_suppressed"`
}

// CacheTTL returns the check cache lifetime as a duration
func (c SuppressionConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// EvidenceConfig enables archiving of verified pages when S3Bucket is set.
type EvidenceConfig struct {
	S3Bucket string `yaml:"s3_bucket"`
	Region   string `yaml:"region"`
	Prefix   string `yaml:"prefix"`
}

// ClassifierConfig points at an optional pattern table override.
type ClassifierConfig struct {
	PatternsFile string `yaml:"patterns_file"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Redact reports whether PII redaction is on. It defaults to true.
func (c LogConfig) Redact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// Load reads and parses the configuration file. An empty path yields the
// defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.MaxBatchSize == 0 {
		cfg.Server.MaxBatchSize = 500
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "suppression:check:"
	}
	if cfg.Verifier.TimeoutMs == 0 {
		cfg.Verifier.TimeoutMs = 5000
	}
	if cfg.Verifier.MaxBodyBytes == 0 {
		cfg.Verifier.MaxBodyBytes = 2 << 20
	}
	if cfg.Verifier.FetchConcurrency == 0 {
		cfg.Verifier.FetchConcurrency = 8
	}
	if cfg.Suppression.CacheTTLSeconds == 0 {
		cfg.Suppression.CacheTTLSeconds = 300
	}
	if cfg.Evidence.Region == "" {
		cfg.Evidence.Region = "us-west-2"
	}
	if cfg.Evidence.Prefix == "" {
		cfg.Evidence.Prefix = "source-pages"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS. A
// missing config file falls back to defaults.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = Load("")
	}
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("SERVER_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("SERVER_PORT: %w", err)
		}
		cfg.Server.Port = n
	}
	if v := os.Getenv("API_TOKEN"); v != "" {
		cfg.Server.APIToken = v
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("SOURCE_PAGE_VERIFY_TIMEOUT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("SOURCE_PAGE_VERIFY_TIMEOUT: want positive milliseconds, got %q", v)
		}
		cfg.Verifier.TimeoutMs = n
	}
	if v := os.Getenv("SUPPRESSION_ENCRYPTION_KEY"); v != "" {
		cfg.Suppression.EncryptionKey = v
	}
	if v := os.Getenv("SUPPRESSION_CACHE_TTL_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("SUPPRESSION_CACHE_TTL_SECONDS: want positive seconds, got %q", v)
		}
		cfg.Suppression.CacheTTLSeconds = n
	}
	if v := os.Getenv("EVIDENCE_S3_BUCKET"); v != "" {
		cfg.Evidence.S3Bucket = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Evidence.Region = v
	}
	if v := os.Getenv("CLASSIFIER_PATTERNS_FILE"); v != "" {
		cfg.Classifier.PatternsFile = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	return cfg, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
