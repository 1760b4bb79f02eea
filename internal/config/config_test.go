package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Stream.Capacity != 50 || cfg.Stream.Heartbeat != 120*time.Second {
		t.Fatalf("unexpected stream defaults: %+v", cfg.Stream)
	}
	if cfg.Pipeline.RetryAttempts != 3 || cfg.Pipeline.RetryUnit != time.Second {
		t.Fatalf("unexpected pipeline defaults: %+v", cfg.Pipeline)
	}
}

func TestFromYAMLOverlaysDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("stream:\n  heartbeat: 30s\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Stream.Heartbeat != 30*time.Second {
		t.Fatalf("heartbeat = %v", cfg.Stream.Heartbeat)
	}
	if cfg.Stream.Capacity != 50 {
		t.Fatalf("capacity default lost: %d", cfg.Stream.Capacity)
	}
}

func TestFromYAMLRejectsInvalid(t *testing.T) {
	_, err := FromYAML([]byte("pipeline:\n  retry_attempts: 0\n"))
	if err == nil || !strings.Contains(err.Error(), "retry_attempts") {
		t.Fatalf("expected retry_attempts error, got %v", err)
	}
	if _, err := FromYAML([]byte("server: [")); err == nil {
		t.Fatalf("expected yaml error")
	}
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr == "" {
		t.Fatalf("expected default addr")
	}
}

func TestLoadReadsFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("server:\n  addr: :9000\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":9000" {
		t.Fatalf("addr = %s", cfg.Server.Addr)
	}
}
