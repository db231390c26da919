package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("default http addr")
	}
	if cfg.Labeling.MaxHolders != 3 || cfg.Labeling.Quorum != 3 {
		t.Fatalf("labeling defaults")
	}
	if cfg.Labeling.LeaseTTL.Std() != 60*time.Second {
		t.Fatalf("lease ttl default")
	}
	if cfg.Labeling.ReseedInterval.Std() != 10*time.Minute {
		t.Fatalf("reseed default")
	}
	if cfg.Labeling.Affirmative != "Yes" {
		t.Fatalf("affirmative default")
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "labeld.json")
	data := []byte(`{"httpAddr":":9090","labeling":{"maxHolders":5,"leaseTTL":"30s"},"outbox":{"consensusUrl":"http://consensus:8000/v1/evaluate"}}`)
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Fatalf("expected :9090")
	}
	if cfg.Labeling.MaxHolders != 5 {
		t.Fatalf("expected 5")
	}
	if cfg.Labeling.LeaseTTL.Std() != 30*time.Second {
		t.Fatalf("expected 30s")
	}
	if cfg.Outbox.ConsensusURL != "http://consensus:8000/v1/evaluate" {
		t.Fatalf("consensus url")
	}
	// Untouched fields keep their defaults.
	if cfg.Labeling.Quorum != 3 {
		t.Fatalf("quorum should keep default")
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "labeld.yaml")
	data := []byte("httpAddr: \":7070\"\nlabeling:\n  quorum: 4\n  reseedInterval: 5m\nlog:\n  format: json\n")
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":7070" {
		t.Fatalf("expected :7070")
	}
	if cfg.Labeling.Quorum != 4 {
		t.Fatalf("expected 4")
	}
	if cfg.Labeling.ReseedInterval.Std() != 5*time.Minute {
		t.Fatalf("expected 5m")
	}
	if cfg.Log.Format != "json" {
		t.Fatalf("log format")
	}
}

func TestLoadBadDuration(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "labeld.json")
	if err := os.WriteFile(file, []byte(`{"labeling":{"leaseTTL":"soon"}}`), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(file); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestFromEnv(t *testing.T) {
	cfg := Default()
	os.Setenv("LABELD_HTTP_ADDR", ":6060")
	os.Setenv("LABELD_MAX_HOLDERS", "7")
	os.Setenv("LABELD_LEASE_TTL", "90s")
	os.Setenv("LABELD_CONSENSUS_URL", "http://eval:9000")
	t.Cleanup(func() {
		os.Unsetenv("LABELD_HTTP_ADDR")
		os.Unsetenv("LABELD_MAX_HOLDERS")
		os.Unsetenv("LABELD_LEASE_TTL")
		os.Unsetenv("LABELD_CONSENSUS_URL")
	})
	FromEnv(&cfg)
	if cfg.HTTPAddr != ":6060" {
		t.Fatalf("env override addr")
	}
	if cfg.Labeling.MaxHolders != 7 {
		t.Fatalf("env override max holders")
	}
	if cfg.Labeling.LeaseTTL.Std() != 90*time.Second {
		t.Fatalf("env override lease ttl")
	}
	if cfg.Outbox.ConsensusURL != "http://eval:9000" {
		t.Fatalf("env override consensus url")
	}
}
