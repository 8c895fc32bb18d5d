// Copyright (c) 2015-2021 MinIO, Inc.
//
// This file is part of MinIO Object Storage stack
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package config loads the service's runtime configuration. Structure
// follows MinIO's per-target config shape (const key names, Env*
// constants, a Validate method) seen in internal/event/target's
// RedisArgs/WebhookArgs, generalized to the whole service instead of one
// notification target.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable overrides, one per config key below.
const (
	EnvRedisAddress      = "DEVICEINT_REDIS_ADDRESS"
	EnvRedisPassword     = "DEVICEINT_REDIS_PASSWORD"
	EnvOCRServiceURL     = "DEVICEINT_OCR_SERVICE_URL"
	EnvPollIntervalMins  = "DEVICEINT_POLL_INTERVAL_MINUTES"
	EnvWorkerConcurrency = "DEVICEINT_WORKER_CONCURRENCY"
)

// RedisConfig configures the priority job queue's Redis pool.
type RedisConfig struct {
	Address     string `yaml:"address"`
	Password    string `yaml:"password"`
	MaxIdle     int    `yaml:"maxIdle"`
	IdleTimeout time.Duration `yaml:"idleTimeout"`
}

// Validate checks RedisConfig for internal consistency.
func (r RedisConfig) Validate() error {
	if r.Address == "" {
		return nil // absent Redis is a supported fallback mode, not an error
	}
	if r.MaxIdle < 0 {
		return fmt.Errorf("redis.maxIdle must be >= 0")
	}
	return nil
}

// QueueConfig configures the priority job queue's behavior.
type QueueConfig struct {
	KeyPrefix          string        `yaml:"keyPrefix"`
	WorkerConcurrency  int           `yaml:"workerConcurrency"`
	DefaultTimeoutMs   int64         `yaml:"defaultTimeoutMs"`
	DefaultRetries     int           `yaml:"defaultRetries"`
	SchedulerTick      time.Duration `yaml:"schedulerTick"`
	DeadLetterCap      int           `yaml:"deadLetterCap"`
	BackoffBaseMs      int64         `yaml:"backoffBaseMs"`
	BackoffMultiplier  float64       `yaml:"backoffMultiplier"`
}

// Validate checks QueueConfig for internal consistency.
func (q QueueConfig) Validate() error {
	if q.WorkerConcurrency <= 0 {
		return fmt.Errorf("queue.workerConcurrency must be > 0")
	}
	if q.DeadLetterCap <= 0 {
		return fmt.Errorf("queue.deadLetterCap must be > 0")
	}
	return nil
}

// DefaultQueueConfig mirrors the job queue's defaults.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		KeyPrefix:         "device_sync:",
		WorkerConcurrency: 3,
		DefaultTimeoutMs:  60_000,
		DefaultRetries:    3,
		SchedulerTick:     5 * time.Second,
		DeadLetterCap:     1000,
		BackoffBaseMs:     1000,
		BackoffMultiplier: 2,
	}
}

// SMBPoolConfig configures the connection pool's reconnect behavior.
type SMBPoolConfig struct {
	MaxReconnectAttempts int           `yaml:"maxReconnectAttempts"`
	BaseDelay            time.Duration `yaml:"baseDelay"`
	MaxDelay             time.Duration `yaml:"maxDelay"`
	BackoffMultiplier    float64       `yaml:"backoffMultiplier"`
	CacheTimeout         time.Duration `yaml:"cacheTimeout"`
	AutoReconnect        bool          `yaml:"autoReconnect"`
	// RequestsPerSecond bounds how many SMB calls (list/read/write/stat) the
	// pool issues against a single device per second; Burst allows a short
	// spike above that steady rate. Guards a single slow device's scan or
	// batch-import traffic from saturating its own SMB server.
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// DefaultSMBPoolConfig mirrors the connection pool's defaults.
func DefaultSMBPoolConfig() SMBPoolConfig {
	return SMBPoolConfig{
		MaxReconnectAttempts: 5,
		BaseDelay:            1 * time.Second,
		MaxDelay:             60 * time.Second,
		BackoffMultiplier:    2,
		CacheTimeout:         5 * time.Minute,
		AutoReconnect:        true,
		RequestsPerSecond:    20,
		Burst:                40,
	}
}

// OrchestratorConfig configures scheduled polling and the watcher.
type OrchestratorConfig struct {
	PollIntervalMinutes   int           `yaml:"pollIntervalMinutes"`
	WatchStabilizeWindow  time.Duration `yaml:"watchStabilizeWindow"`
}

// DefaultOrchestratorConfig mirrors the orchestrator's defaults.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		PollIntervalMinutes:  5,
		WatchStabilizeWindow: 2 * time.Second,
	}
}

// ProcessorConfig configures the universal file processor's OCR fallback.
type ProcessorConfig struct {
	OCRServiceURL string        `yaml:"ocrServiceURL"`
	OCRTimeout    time.Duration `yaml:"ocrTimeout"`
	UseOCR        bool          `yaml:"useOCR"`
}

// DefaultProcessorConfig mirrors the processor's default OCR timeout.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{OCRTimeout: 30 * time.Second, UseOCR: true}
}

// Config is the top-level service configuration.
type Config struct {
	Redis        RedisConfig        `yaml:"redis"`
	Queue        QueueConfig        `yaml:"queue"`
	SMBPool      SMBPoolConfig      `yaml:"smbPool"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Processor    ProcessorConfig    `yaml:"processor"`
}

// Validate validates the Redis and Queue subsections; the SMBPool,
// Orchestrator and Processor subsections are not checked.
func (c Config) Validate() error {
	if err := c.Redis.Validate(); err != nil {
		return err
	}
	if err := c.Queue.Validate(); err != nil {
		return err
	}
	return nil
}

// Default returns the service's zero-config defaults.
func Default() Config {
	return Config{
		Queue:        DefaultQueueConfig(),
		SMBPool:      DefaultSMBPoolConfig(),
		Orchestrator: DefaultOrchestratorConfig(),
		Processor:    DefaultProcessorConfig(),
	}
}

// Load reads a YAML config file and applies environment overrides, the way
// MinIO's notification targets are constructed from a config map merged with
// MINIO_NOTIFY_* environment variables.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config file: %w", err)
		}
	}
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvRedisAddress); v != "" {
		cfg.Redis.Address = v
	}
	if v := os.Getenv(EnvRedisPassword); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv(EnvOCRServiceURL); v != "" {
		cfg.Processor.OCRServiceURL = v
	}
	if v := os.Getenv(EnvPollIntervalMins); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Orchestrator.PollIntervalMinutes = n
		}
	}
	if v := os.Getenv(EnvWorkerConcurrency); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Queue.WorkerConcurrency = n
		}
	}
}
