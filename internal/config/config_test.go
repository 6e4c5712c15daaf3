package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Fatalf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Session.TickInterval != 100*time.Millisecond {
		t.Fatalf("tick interval = %v, want 100ms", cfg.Session.TickInterval)
	}
	if cfg.Generation.Provider != "openai" {
		t.Fatalf("provider = %q, want openai", cfg.Generation.Provider)
	}
	if cfg.Cache.Backend != "inmem" {
		t.Fatalf("cache backend = %q, want inmem", cfg.Cache.Backend)
	}
	if cfg.Content.TemplateDir == "" {
		t.Fatal("template dir should have a default")
	}
	if cfg.Tension.MinEventInterval >= cfg.Tension.MaxEventInterval {
		t.Fatal("default event intervals should be ordered")
	}
}

func TestLoad_ReadsFile(t *testing.T) {
	dir := t.TempDir()
	body := `
server:
  port: 9999
session:
  tick_interval: 50ms
generation:
  provider: gemini
  model: gemini-2.0-flash
cache:
  backend: redis
  redis_addr: redis:6379
  ttl: 2m
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Fatalf("port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Session.TickInterval != 50*time.Millisecond {
		t.Fatalf("tick interval = %v, want 50ms", cfg.Session.TickInterval)
	}
	if cfg.Generation.Provider != "gemini" {
		t.Fatalf("provider = %q, want gemini", cfg.Generation.Provider)
	}
	if cfg.Cache.TTL != 2*time.Minute {
		t.Fatalf("ttl = %v, want 2m", cfg.Cache.TTL)
	}
	if cfg.Generation.MaxTokens != 300 {
		t.Fatalf("max tokens = %d, want the default to survive a partial file", cfg.Generation.MaxTokens)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("ECHO_MANOR_SERVER_PORT", "7777")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7777 {
		t.Fatalf("port = %d, want the environment override 7777", cfg.Server.Port)
	}
}

func TestLoad_OpenAIKeyFallback(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Generation.APIKey != "sk-test" {
		t.Fatalf("api key = %q, want the OPENAI_API_KEY fallback", cfg.Generation.APIKey)
	}
}

func TestLoad_GeminiKeyFallback(t *testing.T) {
	t.Setenv("ECHO_MANOR_GENERATION_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "g-test")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Generation.APIKey != "g-test" {
		t.Fatalf("api key = %q, want the GEMINI_API_KEY fallback", cfg.Generation.APIKey)
	}
}

func TestLoad_RejectsUnknownProvider(t *testing.T) {
	t.Setenv("ECHO_MANOR_GENERATION_PROVIDER", "banana")

	if _, err := Load(t.TempDir()); err == nil {
		t.Fatal("unknown provider should fail validation")
	}
}

func TestLoad_RejectsBrokenFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(":::"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Load(dir); err == nil {
		t.Fatal("unparseable file should be an error, not silently ignored")
	}
}

func TestConfig_Addr(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Host: "127.0.0.1", Port: 9090}}
	if got := cfg.Addr(); got != "127.0.0.1:9090" {
		t.Fatalf("Addr = %q", got)
	}
}
