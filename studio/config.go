package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bannerstage-labs/bannerstage-go/internal/platform/env"
)

// Config comes from an optional YAML file (STUDIO_CONFIG) with env overrides
// on top, so a bare environment still boots a working studio.
type Config struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	StorageRoot  string `yaml:"storage_root"`
	UploadMaxMiB int    `yaml:"upload_max_mib"`

	LoadTimeout    time.Duration `yaml:"load_timeout"`
	CaptureTimeout time.Duration `yaml:"capture_timeout"`

	DatabaseEnabled    bool `yaml:"database_enabled"`
	ObjectStoreEnabled bool `yaml:"object_store_enabled"`
}

func defaultConfig() Config {
	return Config{
		Addr:               ":8080",
		ShutdownTimeout:    10 * time.Second,
		StorageRoot:        "./data/creatives",
		UploadMaxMiB:       256,
		LoadTimeout:        10 * time.Second,
		CaptureTimeout:     10 * time.Second,
		DatabaseEnabled:    true,
		ObjectStoreEnabled: true,
	}
}

func loadConfig() (Config, error) {
	cfg := defaultConfig()

	if path := env.String("STUDIO_CONFIG", ""); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.Addr = env.String("STUDIO_HTTP_ADDR", cfg.Addr)
	cfg.StorageRoot = env.String("STUDIO_STORAGE_ROOT", cfg.StorageRoot)

	var err error
	if cfg.ShutdownTimeout, err = env.Duration("STUDIO_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return Config{}, err
	}
	if cfg.UploadMaxMiB, err = env.Int("STUDIO_UPLOAD_MAX_MIB", cfg.UploadMaxMiB); err != nil {
		return Config{}, err
	}
	if cfg.LoadTimeout, err = env.Duration("STUDIO_LOAD_TIMEOUT", cfg.LoadTimeout); err != nil {
		return Config{}, err
	}
	if cfg.CaptureTimeout, err = env.Duration("STUDIO_CAPTURE_TIMEOUT", cfg.CaptureTimeout); err != nil {
		return Config{}, err
	}
	if cfg.DatabaseEnabled, err = env.Bool("STUDIO_DATABASE_ENABLED", cfg.DatabaseEnabled); err != nil {
		return Config{}, err
	}
	if cfg.ObjectStoreEnabled, err = env.Bool("STUDIO_OBJECT_STORE_ENABLED", cfg.ObjectStoreEnabled); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	if c.StorageRoot == "" {
		return errors.New("storage_root is required")
	}
	if c.UploadMaxMiB < 1 {
		return errors.New("upload_max_mib must be >= 1")
	}
	if c.LoadTimeout <= 0 {
		return errors.New("load_timeout must be positive")
	}
	if c.CaptureTimeout <= 0 {
		return errors.New("capture_timeout must be positive")
	}
	return nil
}
