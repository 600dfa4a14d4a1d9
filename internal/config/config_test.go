package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 9090
  host: "0.0.0.0"
  allowed_origins: ["https://app.example.org"]

database:
  url: "postgres://localhost/contacts?sslmode=disable"

redis:
  url: "redis://localhost:6379/0"

verifier:
  timeout_ms: 3000
  retries: 1

suppression:
  cache_ttl_seconds: 60
  keep_suppressed: true

evidence:
  s3_bucket: "evidence-bucket"
  region: "eu-west-2"

log:
  level: debug
  redact_pii: false
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, []string{"https://app.example.org"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "postgres://localhost/contacts?sslmode=disable", cfg.Database.URL)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, 3*time.Second, cfg.Verifier.Timeout())
	assert.Equal(t, 1, cfg.Verifier.Retries)
	assert.Equal(t, time.Minute, cfg.Suppression.CacheTTL())
	assert.True(t, cfg.Suppression.KeepSuppressed)
	assert.Equal(t, "evidence-bucket", cfg.Evidence.S3Bucket)
	assert.Equal(t, "eu-west-2", cfg.Evidence.Region)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Log.Redact())
}

func TestLoadDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// Minimal config
	err := os.WriteFile(configPath, []byte("{}"), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 500, cfg.Server.MaxBatchSize)
	assert.Equal(t, 5000*time.Millisecond, cfg.Verifier.Timeout())
	assert.Equal(t, int64(2<<20), cfg.Verifier.MaxBodyBytes)
	assert.Equal(t, 5*time.Minute, cfg.Suppression.CacheTTL())
	assert.Equal(t, "suppression:check:", cfg.Redis.KeyPrefix)
	assert.Equal(t, "source-pages", cfg.Evidence.Prefix)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Log.Redact(), "PII redaction defaults on")
}

func TestLoadErrors(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)

	tmpDir := t.TempDir()
	bad := filepath.Join(tmpDir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("server: [unclosed"), 0644))
	_, err = Load(bad)
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "7000")
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("REDIS_URL", "redis://env:6379")
	t.Setenv("SOURCE_PAGE_VERIFY_TIMEOUT", "2500")
	t.Setenv("SUPPRESSION_ENCRYPTION_KEY", "ab")
	t.Setenv("SUPPRESSION_CACHE_TTL_SECONDS", "30")
	t.Setenv("EVIDENCE_S3_BUCKET", "env-bucket")
	t.Setenv("AWS_REGION", "ap-southeast-2")
	t.Setenv("CLASSIFIER_PATTERNS_FILE", "/etc/patterns.yaml")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	// Missing file falls back to defaults plus environment.
	cfg, err := LoadFromEnv(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "postgres://env/db", cfg.Database.URL)
	assert.Equal(t, "redis://env:6379", cfg.Redis.URL)
	assert.Equal(t, 2500*time.Millisecond, cfg.Verifier.Timeout())
	assert.Equal(t, "ab", cfg.Suppression.EncryptionKey)
	assert.Equal(t, 30*time.Second, cfg.Suppression.CacheTTL())
	assert.Equal(t, "env-bucket", cfg.Evidence.S3Bucket)
	assert.Equal(t, "ap-southeast-2", cfg.Evidence.Region)
	assert.Equal(t, "/etc/patterns.yaml", cfg.Classifier.PatternsFile)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
}

func TestLoadFromEnv_InvalidNumbers(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"port", "SERVER_PORT", "eighty"},
		{"timeout", "SOURCE_PAGE_VERIFY_TIMEOUT", "-1"},
		{"ttl", "SUPPRESSION_CACHE_TTL_SECONDS", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := LoadFromEnv("")
			assert.Error(t, err)
		})
	}
}

func TestServerAddr(t *testing.T) {
	t.Setenv("ECS_CONTAINER_METADATA_URI", "")
	t.Setenv("AWS_EXECUTION_ENV", "")
	t.Setenv("SERVER_HOST", "")
	s := ServerConfig{Host: "127.0.0.1", Port: 8081}
	assert.Equal(t, "127.0.0.1:8081", s.Addr())

	t.Setenv("SERVER_HOST", "10.0.0.5")
	assert.Equal(t, "10.0.0.5:8081", s.Addr())
}
