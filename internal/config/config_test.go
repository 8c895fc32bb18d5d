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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultPassesValidate(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default() should validate cleanly: %v", err)
	}
}

func TestRedisConfigAbsentAddressIsValid(t *testing.T) {
	if err := (RedisConfig{}).Validate(); err != nil {
		t.Fatalf("an absent redis address is a supported fallback mode, got: %v", err)
	}
}

func TestRedisConfigRejectsNegativeMaxIdle(t *testing.T) {
	cfg := RedisConfig{Address: "localhost:6379", MaxIdle: -1}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected a negative maxIdle to fail validation")
	}
}

func TestQueueConfigRejectsNonPositiveFields(t *testing.T) {
	cases := []QueueConfig{
		{WorkerConcurrency: 0, DeadLetterCap: 10},
		{WorkerConcurrency: 3, DeadLetterCap: 0},
	}
	for _, c := range cases {
		if err := c.Validate(); err == nil {
			t.Errorf("expected %+v to fail validation", c)
		}
	}
}

func TestLoadWithoutPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Queue.WorkerConcurrency != DefaultQueueConfig().WorkerConcurrency {
		t.Fatalf("expected default queue config, got %+v", cfg.Queue)
	}
}

func TestLoadParsesYAMLAndAppliesEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "queue:\n  workerConcurrency: 7\n  deadLetterCap: 500\nredis:\n  address: file-address:6379\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	t.Setenv(EnvRedisAddress, "env-address:6379")
	t.Setenv(EnvWorkerConcurrency, "9")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Queue.DeadLetterCap != 500 {
		t.Fatalf("expected the YAML value to survive, got %d", cfg.Queue.DeadLetterCap)
	}
	if cfg.Redis.Address != "env-address:6379" {
		t.Fatalf("expected the env override to win over the YAML value, got %q", cfg.Redis.Address)
	}
	if cfg.Queue.WorkerConcurrency != 9 {
		t.Fatalf("expected the env override to win over the YAML value, got %d", cfg.Queue.WorkerConcurrency)
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("queue:\n  workerConcurrency: -1\n"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected an invalid worker concurrency to fail Load")
	}
}

func TestDefaultProcessorConfig(t *testing.T) {
	cfg := DefaultProcessorConfig()
	if cfg.OCRTimeout != 30*time.Second || !cfg.UseOCR {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}
