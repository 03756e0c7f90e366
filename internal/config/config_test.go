package config

import (
	"testing"
	"time"
)

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatal("Load should fail without JWT_SECRET")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PORT", "")
	t.Setenv("TOKEN_TTL", "")
	t.Setenv("MESSAGE_SIZE_LIMIT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8083" {
		t.Errorf("Expected default port 8083, got %s", cfg.Port)
	}
	if cfg.Auth.TokenTTL != time.Hour {
		t.Errorf("Expected default token TTL 1h, got %v", cfg.Auth.TokenTTL)
	}
	if cfg.Delivery.SizeLimit != 100000 {
		t.Errorf("Expected default size limit 100000, got %d", cfg.Delivery.SizeLimit)
	}
}

func TestDurationEnv(t *testing.T) {
	t.Setenv("TEST_DURATION", "90s")
	if d := getDurationEnv("TEST_DURATION", time.Second); d != 90*time.Second {
		t.Errorf("Expected 90s, got %v", d)
	}

	t.Setenv("TEST_DURATION", "30")
	if d := getDurationEnv("TEST_DURATION", time.Second); d != 30*time.Second {
		t.Errorf("Expected 30s from plain seconds, got %v", d)
	}

	t.Setenv("TEST_DURATION", "garbage")
	if d := getDurationEnv("TEST_DURATION", time.Minute); d != time.Minute {
		t.Errorf("Expected fallback to default, got %v", d)
	}
}

func TestListEnv(t *testing.T) {
	t.Setenv("CORS_ORIGINS", " https://a.example, ,https://b.example")
	got := getListEnv("CORS_ORIGINS")
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Errorf("unexpected origins %q", got)
	}

	t.Setenv("CORS_ORIGINS", "")
	if got := getListEnv("CORS_ORIGINS"); got != nil {
		t.Errorf("Expected nil, got %q", got)
	}
}
