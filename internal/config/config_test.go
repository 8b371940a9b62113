// Copyright 2025 James Ross
package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("WORKER_COUNT")
	cfg, err := Load("nonexistent.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Worker.Count != 16 {
		t.Fatalf("expected default worker count 16, got %d", cfg.Worker.Count)
	}
	if cfg.Redis.Addr == "" {
		t.Fatalf("expected default redis addr")
	}
	if cfg.Sharq.KeyPrefix != "sharq" {
		t.Fatalf("expected default key prefix sharq, got %q", cfg.Sharq.KeyPrefix)
	}
}

func TestValidateFails(t *testing.T) {
	cfg := defaultConfig()
	cfg.Worker.Count = 0
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for worker.count < 1")
	}

	cfg = defaultConfig()
	cfg.Sharq.DefaultIntervalMS = cfg.Sharq.IntervalFloorMS - 1
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for default_interval_ms below floor")
	}

	cfg = defaultConfig()
	cfg.Worker.QueueTypes = nil
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for empty worker.queue_types")
	}
}
