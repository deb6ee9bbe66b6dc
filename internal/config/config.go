package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL   string // TOMBSTONE_DATABASE_URL (optional, empty = in-memory store)
	GRPCAddr      string // TOMBSTONE_GRPC_ADDR (default ":9090")
	HTTPAddr      string // TOMBSTONE_HTTP_ADDR (default ":8080")
	NATSURL       string // TOMBSTONE_NATS_URL (optional, empty = no events)
	AuthToken     string // TOMBSTONE_AUTH_TOKEN (optional, empty = auth disabled)
	Relationships string // TOMBSTONE_RELATIONSHIPS (path to a TOML registry file)

	// Cascade settings
	MaxDepth         int  // TOMBSTONE_MAX_DEPTH (default 20)
	StopOnFirstError bool // TOMBSTONE_STOP_ON_FIRST_ERROR (default true)
	ConflictRetries  int  // TOMBSTONE_CONFLICT_RETRIES (default 2)
	PageSize         int  // TOMBSTONE_PAGE_SIZE (default 100)

	// Archive settings
	ArchiveS3Bucket   string // TOMBSTONE_ARCHIVE_S3_BUCKET (enables archiving when set)
	ArchiveS3Endpoint string // TOMBSTONE_ARCHIVE_S3_ENDPOINT (custom endpoint for MinIO)
	ArchiveS3Region   string // TOMBSTONE_ARCHIVE_S3_REGION (default "us-east-1")
	ArchiveS3Prefix   string // TOMBSTONE_ARCHIVE_S3_PREFIX (default "tombstone/purged")

	// Purge settings
	Retention     time.Duration // TOMBSTONE_RETENTION (default 0 = never purge)
	PurgeInterval time.Duration // TOMBSTONE_PURGE_INTERVAL (default 1h)
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:       os.Getenv("TOMBSTONE_DATABASE_URL"),
		GRPCAddr:          envOrDefault("TOMBSTONE_GRPC_ADDR", ":9090"),
		HTTPAddr:          envOrDefault("TOMBSTONE_HTTP_ADDR", ":8080"),
		NATSURL:           os.Getenv("TOMBSTONE_NATS_URL"),
		AuthToken:         os.Getenv("TOMBSTONE_AUTH_TOKEN"),
		Relationships:     os.Getenv("TOMBSTONE_RELATIONSHIPS"),
		ArchiveS3Bucket:   os.Getenv("TOMBSTONE_ARCHIVE_S3_BUCKET"),
		ArchiveS3Endpoint: os.Getenv("TOMBSTONE_ARCHIVE_S3_ENDPOINT"),
		ArchiveS3Region:   envOrDefault("TOMBSTONE_ARCHIVE_S3_REGION", "us-east-1"),
		ArchiveS3Prefix:   envOrDefault("TOMBSTONE_ARCHIVE_S3_PREFIX", "tombstone/purged"),
	}

	var err error
	if c.MaxDepth, err = envInt("TOMBSTONE_MAX_DEPTH", 20, 1); err != nil {
		return nil, err
	}
	if c.ConflictRetries, err = envInt("TOMBSTONE_CONFLICT_RETRIES", 2, 0); err != nil {
		return nil, err
	}
	if c.PageSize, err = envInt("TOMBSTONE_PAGE_SIZE", 100, 1); err != nil {
		return nil, err
	}

	stopStr := envOrDefault("TOMBSTONE_STOP_ON_FIRST_ERROR", "true")
	if c.StopOnFirstError, err = strconv.ParseBool(stopStr); err != nil {
		return nil, fmt.Errorf("TOMBSTONE_STOP_ON_FIRST_ERROR: %w", err)
	}

	if c.Retention, err = envDuration("TOMBSTONE_RETENTION", "0s"); err != nil {
		return nil, err
	}
	if c.PurgeInterval, err = envDuration("TOMBSTONE_PURGE_INTERVAL", "1h"); err != nil {
		return nil, err
	}
	if c.Retention < 0 {
		return nil, fmt.Errorf("TOMBSTONE_RETENTION: must not be negative")
	}
	if c.Retention > 0 && c.PurgeInterval <= 0 {
		return nil, fmt.Errorf("TOMBSTONE_PURGE_INTERVAL: must be positive when TOMBSTONE_RETENTION is set")
	}

	return c, nil
}

// PurgeEnabled reports whether the background purger should run.
func (c *Config) PurgeEnabled() bool {
	return c.Retention > 0
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback, floor int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if n < floor {
		return 0, fmt.Errorf("%s: must be at least %d, got %d", key, floor, n)
	}
	return n, nil
}

func envDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
