package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bannerstage-labs/bannerstage-go/internal/platform/env"
)

type Config struct {
	Endpoint          string
	AccessKey         string
	SecretKey         string
	Region            string
	UseSSL            bool
	BucketBundles     string
	BucketScreenshots string
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("STAGE_MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:          env.String("STAGE_MINIO_ENDPOINT", "localhost:9000"),
		AccessKey:         env.String("STAGE_MINIO_ACCESS_KEY", "stage"),
		SecretKey:         env.String("STAGE_MINIO_SECRET_KEY", "stageminio"),
		Region:            env.String("STAGE_MINIO_REGION", "us-east-1"),
		UseSSL:            useSSL,
		BucketBundles:     env.String("STAGE_MINIO_BUCKET_BUNDLES", "bundles"),
		BucketScreenshots: env.String("STAGE_MINIO_BUCKET_SCREENSHOTS", "screenshots"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.BucketBundles) == "" {
		return errors.New("bundles bucket is required")
	}
	if strings.TrimSpace(c.BucketScreenshots) == "" {
		return errors.New("screenshots bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}
