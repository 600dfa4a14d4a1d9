package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/totalaud/contact-safety/internal/api"
	"github.com/totalaud/contact-safety/internal/classifier"
	"github.com/totalaud/contact-safety/internal/config"
	"github.com/totalaud/contact-safety/internal/discovery"
	"github.com/totalaud/contact-safety/internal/pkg/httpretry"
	"github.com/totalaud/contact-safety/internal/pkg/logger"
	"github.com/totalaud/contact-safety/internal/repository/postgres"
	"github.com/totalaud/contact-safety/internal/suppression"
	"github.com/totalaud/contact-safety/internal/verifier"
)

var log = logger.Scope("server")

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("address %s is already in use: %w", addr, err)
	}
	ln.Close()
	return nil
}

// extractHost returns the host portion of a DSN for logging without credentials.
func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

// withTimeouts appends connect and statement timeouts to a Postgres URL so a
// hung store surfaces as an error, which suppression checks then fail open on.
func withTimeouts(dbURL string) string {
	sep := "?"
	if strings.Contains(dbURL, "?") {
		sep = "&"
	}
	if !strings.Contains(dbURL, "connect_timeout") {
		dbURL += sep + "connect_timeout=5"
		sep = "&"
	}
	if !strings.Contains(dbURL, "statement_timeout") {
		dbURL += sep + "options=-c%20statement_timeout%3D5000"
	}
	return dbURL
}

func openDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	dbURL := withTimeouts(cfg.URL)
	log.Info("connecting to database", "host", extractHost(dbURL))
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(30 * time.Second)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// openRedis returns nil when Redis is unset or unreachable; the service
// then uses its in-process cache.
func openRedis(ctx context.Context, redisURL string) *redis.Client {
	if redisURL == "" {
		log.Info("redis not configured, using in-process suppression cache")
		return nil
	}
	var client *redis.Client
	if opts, err := redis.ParseURL(redisURL); err != nil {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	} else {
		client = redis.NewClient(opts)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis unreachable, using in-process suppression cache", "error", err)
		client.Close()
		return nil
	}
	log.Info("redis connected, suppression cache shared")
	return client
}

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	logger.SetRedactPII(cfg.Log.Redact())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Classifier
	table := classifier.DefaultPatternTable()
	if cfg.Classifier.PatternsFile != "" {
		table, err = classifier.LoadPatternTable(cfg.Classifier.PatternsFile)
		if err != nil {
			log.Error("failed to load classifier patterns", "file", cfg.Classifier.PatternsFile, "error", err)
			os.Exit(1)
		}
	}
	cls, err := classifier.New(table)
	if err != nil {
		log.Error("invalid classifier patterns", "error", err)
		os.Exit(1)
	}

	// Verifier
	var doer httpretry.HTTPDoer = &http.Client{}
	if cfg.Verifier.Retries > 0 {
		doer = httpretry.NewRetryClient(doer, cfg.Verifier.Retries, 0)
	}
	ver := verifier.New(verifier.Config{
		Timeout:      cfg.Verifier.Timeout(),
		UserAgent:    cfg.Verifier.UserAgent,
		MaxBodyBytes: cfg.Verifier.MaxBodyBytes,
	}, doer)

	var s3Client api.S3HeadBucketAPI
	if cfg.Evidence.S3Bucket != "" {
		store, client, err := verifier.NewS3EvidenceStoreFromEnv(ctx, cfg.Evidence.Region, cfg.Evidence.S3Bucket, cfg.Evidence.Prefix)
		if err != nil {
			log.Warn("evidence archive disabled", "error", err)
		} else {
			ver.SetEvidenceStore(store)
			s3Client = client
			log.Info("evidence archive enabled", "bucket", cfg.Evidence.S3Bucket)
		}
	}

	// Suppression
	if cfg.Database.URL == "" {
		log.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := openDB(ctx, cfg.Database)
	if err != nil {
		log.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var rdb redis.Cmdable
	var cache suppression.Cache
	if client := openRedis(ctx, cfg.Redis.URL); client != nil {
		defer client.Close()
		rdb = client
		cache = suppression.NewRedisCache(client, cfg.Suppression.CacheTTL(), cfg.Redis.KeyPrefix)
	} else {
		mem := suppression.NewMemoryCache(cfg.Suppression.CacheTTL())
		go mem.RunSweeper(ctx, time.Minute)
		cache = mem
	}

	if cfg.Suppression.EncryptionKey == "" {
		log.Warn("SUPPRESSION_ENCRYPTION_KEY not set, suppression entries stored as hashes only")
	}
	sup := suppression.NewService(postgres.NewSuppressionRepo(db), suppression.Options{
		Cache:         cache,
		EncryptionKey: cfg.Suppression.EncryptionKey,
	})

	gate := discovery.NewGate(cls, ver, sup, discovery.Options{
		KeepSuppressed:   cfg.Suppression.KeepSuppressed,
		FetchConcurrency: cfg.Verifier.FetchConcurrency,
	})

	server := api.NewServer(api.Deps{
		Classifier:  cls,
		Verifier:    ver,
		Suppression: sup,
		Gate:        gate,
		Health:      api.NewHealthChecker(db, rdb, s3Client, cfg.Evidence.S3Bucket),
	}, api.Options{
		APIToken:       cfg.Server.APIToken,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxBatchSize:   cfg.Server.MaxBatchSize,
	})

	addr := cfg.Server.Addr()
	if err := checkPortAvailable(addr); err != nil {
		log.Error("cannot listen", "error", err)
		os.Exit(1)
	}

	// Setup graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("starting server", "addr", addr, "encryption", sup.Encrypting())
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	log.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", "error", err)
	}
	log.Info("server stopped")
}
