package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("CACHE_TTL", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.CacheTTL != 45*time.Second {
		t.Fatalf("expected default cache ttl, got %s", cfg.CacheTTL)
	}
	if cfg.AutoChatMaxMessages != 10 {
		t.Fatalf("expected default auto chat ceiling, got %d", cfg.AutoChatMaxMessages)
	}
	if cfg.CORSAllowedOrigins != nil {
		t.Fatalf("expected no CORS origins by default, got %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CACHE_TTL", "2m")
	t.Setenv("AUTO_CHAT_MAX_MESSAGES", "5")
	t.Setenv("CONVERSATION_PAGE_SIZE", "50")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com, https://admin.example.com")

	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected overridden port, got %s", cfg.Port)
	}
	if cfg.CacheTTL != 2*time.Minute {
		t.Fatalf("expected overridden cache ttl, got %s", cfg.CacheTTL)
	}
	if cfg.AutoChatMaxMessages != 5 {
		t.Fatalf("expected overridden ceiling, got %d", cfg.AutoChatMaxMessages)
	}
	if cfg.ConversationPageSize != 50 {
		t.Fatalf("expected overridden page size, got %d", cfg.ConversationPageSize)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://admin.example.com" {
		t.Fatalf("expected parsed CORS origins, got %v", cfg.CORSAllowedOrigins)
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("CACHE_TTL", "not-a-duration")
	t.Setenv("AUTO_CHAT_MAX_MESSAGES", "many")
	t.Setenv("REDIS_TLS", "yes-please")

	cfg := Load()
	if cfg.CacheTTL != 45*time.Second {
		t.Fatalf("expected fallback cache ttl, got %s", cfg.CacheTTL)
	}
	if cfg.AutoChatMaxMessages != 10 {
		t.Fatalf("expected fallback ceiling, got %d", cfg.AutoChatMaxMessages)
	}
	if cfg.RedisTLS {
		t.Fatalf("expected redis TLS fallback false")
	}
}
