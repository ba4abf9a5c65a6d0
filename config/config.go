// Package config loads tool configuration from a .env file or the
// environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

// DefaultRegion is used when no region is configured. S3-compatible stores
// accept any region string but the SDK signer requires one.
const DefaultRegion = "us-east-1"

// Config holds the credentials and endpoint settings for the object store.
type Config struct {
	// AccessKey and SecretKey are the static credentials for the store
	AccessKey string
	SecretKey string

	// EndpointURL is the S3-compatible endpoint (e.g. https://s3.wasabisys.com)
	EndpointURL string

	// BucketName is the bucket downloads are served from
	BucketName string

	// Region is the signing region
	Region string

	// MFASerial, when set, triggers an STS session-token exchange with a
	// one-time password before the client is built
	MFASerial string

	// CABundle is an optional path to a PEM file of trusted roots for the
	// store's TLS endpoint
	CABundle string
}

// Load reads configuration from .env (if present) and the environment.
// It fails if any required key is missing, naming all missing keys at once.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Warn(".env file not found, using environment variables only")
	}

	config := &Config{
		AccessKey:   getEnv("ACCESS_KEY", ""),
		SecretKey:   getEnv("SECRET_KEY", ""),
		EndpointURL: getEnv("ENDPOINT_URL", ""),
		BucketName:  getEnv("BUCKET_NAME", ""),
		Region:      getEnv("REGION", DefaultRegion),
		MFASerial:   getEnv("MFA_SERIAL", ""),
		CABundle:    getEnv("CA_BUNDLE", ""),
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// validate checks that all required keys are present.
func (c *Config) validate() error {
	var missing []string
	for key, value := range map[string]string{
		"ACCESS_KEY":   c.AccessKey,
		"SECRET_KEY":   c.SecretKey,
		"ENDPOINT_URL": c.EndpointURL,
		"BUCKET_NAME":  c.BucketName,
	} {
		if value == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing required configuration keys: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
