package s3archive

import (
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/SupplierHub/internal/pkg/env"
)

// Config holds the webhook payload archive configuration
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	Enabled         bool
}

// ConfigFromEnv loads the archive configuration from environment variables
func ConfigFromEnv() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("S3_ARCHIVE_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_ARCHIVE_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_ARCHIVE_REGION", "us-east-1"),
		BucketName:      env.GetEnv("S3_ARCHIVE_BUCKET", ""),
		EndpointURL:     env.GetEnv("S3_ARCHIVE_ENDPOINT", ""),
		Enabled:         env.GetEnv("S3_ARCHIVE_ENABLED", "false") == "true",
	}

	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("S3_ARCHIVE_ACCESS_KEY_ID is required when the archive is enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("S3_ARCHIVE_SECRET_ACCESS_KEY is required when the archive is enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("S3_ARCHIVE_BUCKET is required when the archive is enabled")
		}
	}

	return config, nil
}

// IsEnabled returns true if archiving is enabled
func (c *Config) IsEnabled() bool {
	return c.Enabled
}

// ObjectKey generates the object key for a webhook payload.
// Format: webhooks/YYYY/MM/DD/<event id>.json
func ObjectKey(eventID string, receivedAt time.Time) string {
	t := receivedAt.UTC()
	return fmt.Sprintf("webhooks/%04d/%02d/%02d/%s.json", t.Year(), int(t.Month()), t.Day(), eventID)
}
