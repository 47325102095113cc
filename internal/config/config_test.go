package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadYAMLAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "iva.yaml")
	content := []byte("server:\n  address: \":9000\"\nllm:\n  provider: openai\n  model: gpt-4o-mini\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":9000" {
		t.Fatalf("unexpected address: %s", cfg.Server.Address)
	}
	if cfg.LLM.Provider != "openai" || cfg.LLM.BaseURL != "" {
		t.Fatalf("unexpected llm config: %+v", cfg.LLM)
	}
	if cfg.Storage.Driver != "memory" {
		t.Fatalf("expected memory storage, got %s", cfg.Storage.Driver)
	}
	if cfg.Fraud.Threshold != 5000 {
		t.Fatalf("unexpected fraud threshold: %v", cfg.Fraud.Threshold)
	}
	if cfg.Auth.TokenTTL() != 60*time.Minute {
		t.Fatalf("unexpected token ttl: %v", cfg.Auth.TokenTTL())
	}
	if cfg.Runtime.DataDir != filepath.Join(dir, "data") {
		t.Fatalf("unexpected data dir: %s", cfg.Runtime.DataDir)
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "iva.json")
	if err := os.WriteFile(path, []byte(`{"agent":{"max_steps":3},"fraud":{"threshold":100}}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Agent.MaxSteps != 3 || cfg.Fraud.Threshold != 100 {
		t.Fatalf("unexpected config: %+v %+v", cfg.Agent, cfg.Fraud)
	}
	if cfg.LLM.Model != "llama3.2" || cfg.LLM.BaseURL != "http://localhost:11434" {
		t.Fatalf("unexpected llm defaults: %+v", cfg.LLM)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	env := map[string]string{
		"DATABASE_URL":    "sqlite:/tmp/bank.db",
		"SECRET_KEY":      "s3cret",
		"MODEL_NAME":      "qwen2.5",
		"OLLAMA_BASE_URL": "http://ollama:11434",
	}
	cfg := &Config{}
	cfg.applyEnv(func(k string) string { return env[k] })
	cfg.applyDefaults(".")

	if cfg.Storage.Driver != "sqlite" || cfg.Storage.DSN != "/tmp/bank.db" {
		t.Fatalf("unexpected storage: %+v", cfg.Storage)
	}
	if cfg.Auth.SecretKey != "s3cret" || cfg.LLM.Model != "qwen2.5" {
		t.Fatalf("env not applied: %+v %+v", cfg.Auth, cfg.LLM)
	}
	if cfg.LLM.BaseURL != "http://ollama:11434" {
		t.Fatalf("unexpected base url: %s", cfg.LLM.BaseURL)
	}
}

func TestLoadRejectsEmptyPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error")
	}
}
