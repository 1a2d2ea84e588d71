// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the fabd service configuration.
//
// Sources, later ones winning:
//
//  1. DefaultConfig()
//  2. The YAML file (created with the defaults on first load)
//  3. A .env file next to the YAML file (never overrides the real environment)
//  4. NETFAB_* environment variables
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/AleutianAI/netfab/services/fabd/telemetry"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps validation failures.
var ErrInvalidConfig = errors.New("invalid fabd configuration")

// Config is the fabd configuration file.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Cache      CacheConfig      `yaml:"cache"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Watch      WatchConfig      `yaml:"watch"`
	Logging    LoggingConfig    `yaml:"logging"`
	Telemetry  telemetry.Config `yaml:"telemetry"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required,hostname_port"`

	// RateLimit is the sustained request rate per second; 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit" validate:"gte=0"`

	// RateBurst is the token bucket size.
	RateBurst int `yaml:"rate_burst" validate:"gte=0"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxBodyBytes bounds uploaded network documents and evaluation bodies.
	MaxBodyBytes int64 `yaml:"max_body_bytes" validate:"gt=0"`
}

// StorageConfig configures the badger network store.
type StorageConfig struct {
	Dir      string `yaml:"dir" validate:"required_unless=InMemory true"`
	InMemory bool   `yaml:"in_memory"`
}

// CacheConfig configures the fabricated plan cache.
type CacheConfig struct {
	Size int `yaml:"size" validate:"min=1"`
}

// EvaluationConfig configures fabrication and batch evaluation.
type EvaluationConfig struct {
	// Prune drops nodes that cannot reach an output.
	Prune bool `yaml:"prune"`

	// Concurrency bounds parallel rows in a batch; 0 means GOMAXPROCS.
	Concurrency int `yaml:"concurrency" validate:"gte=0"`

	// MaxBatchRows rejects larger batch requests.
	MaxBatchRows int `yaml:"max_batch_rows" validate:"min=1"`

	// Evaluator is "sequential" (plan order) or "staged" (stage by stage,
	// splitting wide stages across StageWorkers goroutines).
	Evaluator string `yaml:"evaluator" validate:"oneof=sequential staged"`

	// StageWorkers bounds goroutines per stage; 0 means GOMAXPROCS.
	StageWorkers int `yaml:"stage_workers" validate:"gte=0"`
}

// WatchConfig configures the network directory watcher. An empty Dir
// disables watching.
type WatchConfig struct {
	Dir      string        `yaml:"dir"`
	Debounce time.Duration `yaml:"debounce"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
	Dir   string `yaml:"dir"`
}

// DefaultConfig returns the configuration written on first load.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:            "127.0.0.1:8420",
			RateLimit:       50,
			RateBurst:       100,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    4 << 20,
		},
		Storage: StorageConfig{
			Dir: "~/.netfab/data",
		},
		Cache: CacheConfig{
			Size: 128,
		},
		Evaluation: EvaluationConfig{
			Prune:        true,
			MaxBatchRows: 10000,
			Evaluator:    "sequential",
		},
		Watch: WatchConfig{
			Debounce: 200 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: telemetry.DefaultConfig(),
	}
}

// DefaultPath returns ~/.netfab/fabd.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".netfab", "fabd.yaml"), nil
}

var configValidate = validator.New()

// Load reads the configuration at path, creating it with defaults when it
// does not exist. An empty path means DefaultPath().
//
// Outputs:
//
//	*Config - The merged, validated configuration.
//	bool - True when the file was created by this call.
//	error - Read, parse or validation failure.
func Load(path string) (*Config, bool, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, false, err
		}
		path = p
	}

	created := false
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := createDefault(path); err != nil {
			return nil, false, err
		}
		created = true
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read the config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, false, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, false, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, false, err
	}
	return &cfg, created, nil
}

// Validate checks the struct tags.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func createDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0640)
}

// loadDotEnv loads KEY=VALUE pairs into the environment. A missing file is
// not an error; variables already set are left alone.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"NETFAB_ADDR":          &c.Server.Addr,
		"NETFAB_STORAGE_DIR":   &c.Storage.Dir,
		"NETFAB_WATCH_DIR":     &c.Watch.Dir,
		"NETFAB_LOG_LEVEL":     &c.Logging.Level,
		"NETFAB_LOG_DIR":       &c.Logging.Dir,
		"NETFAB_OTLP_ENDPOINT": &c.Telemetry.OTLPEndpoint,
		"NETFAB_EVALUATOR":     &c.Evaluation.Evaluator,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"NETFAB_CACHE_SIZE":        &c.Cache.Size,
		"NETFAB_EVAL_CONCURRENCY":  &c.Evaluation.Concurrency,
		"NETFAB_EVAL_MAX_BATCH":    &c.Evaluation.MaxBatchRows,
		"NETFAB_SERVER_RATE_BURST": &c.Server.RateBurst,
	}
	for key, dst := range ints {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, key, v)
			}
			*dst = n
		}
	}

	bools := map[string]*bool{
		"NETFAB_STORAGE_IN_MEMORY": &c.Storage.InMemory,
		"NETFAB_PRUNE":             &c.Evaluation.Prune,
		"NETFAB_LOG_JSON":          &c.Logging.JSON,
	}
	for key, dst := range bools {
		if v, ok := os.LookupEnv(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidConfig, key, v)
			}
			*dst = b
		}
	}
	return nil
}
