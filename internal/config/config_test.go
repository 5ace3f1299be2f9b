package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("expected default addr :8080, got %q", cfg.Addr)
	}
	if cfg.TokenTTL != 24*time.Hour {
		t.Errorf("expected default token ttl 24h, got %v", cfg.TokenTTL)
	}
	if cfg.IsProduction() {
		t.Error("expected development by default")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ARSENAL_ENV", "production")
	t.Setenv("ARSENAL_TOKEN_TTL", "2h")
	t.Setenv("ARSENAL_CORS_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.IsProduction() {
		t.Error("expected production")
	}
	if cfg.TokenTTL != 2*time.Hour {
		t.Errorf("expected token ttl 2h, got %v", cfg.TokenTTL)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Errorf("expected 2 origins, got %v", cfg.CORSOrigins)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("ARSENAL_AUTH_RATE_LIMIT", "0")

	if _, err := Load(); err == nil {
		t.Error("expected error for zero rate limit")
	}
}
