package config

import (
	"testing"
	"time"

	"polisdesk/backend/internal/domain"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("MANAGER_PIN", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.ManagerPIN != "" {
		t.Fatalf("expected empty MANAGER_PIN when unset, got %q", cfg.ManagerPIN)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DEFAULT_STORE_ID", "")
	t.Setenv("ROUNDING_STEP", "")
	t.Setenv("REPORT_TTL", "")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "")

	cfg := Load()
	if cfg.StoreID != "main-office" {
		t.Fatalf("expected default store main-office, got %q", cfg.StoreID)
	}
	if cfg.RoundingStep != 100 {
		t.Fatalf("expected rounding step 100, got %d", cfg.RoundingStep)
	}
	if cfg.ReportTTL != 30*24*time.Hour {
		t.Fatalf("expected 30 day report ttl, got %s", cfg.ReportTTL)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected 480 minute token ttl, got %d", cfg.AccessTokenTTLMinutes)
	}
}

func TestLoadReadsRelayEndpoints(t *testing.T) {
	t.Setenv("RELAY_TELEGRAM_URL", "https://relay.example/telegram")
	t.Setenv("RELAY_TELEGRAM_BOT_TOKEN", "bot-token")
	t.Setenv("RELAY_SMS_URL", "")
	t.Setenv("RELAY_TIMEOUT", "3s")

	cfg := Load()
	ep, ok := cfg.Relay.Endpoints[domain.ChannelTelegram]
	if !ok {
		t.Fatalf("expected telegram endpoint, got %+v", cfg.Relay.Endpoints)
	}
	if ep.URL != "https://relay.example/telegram" || ep.BotToken != "bot-token" {
		t.Fatalf("unexpected endpoint %+v", ep)
	}
	if _, ok := cfg.Relay.Endpoints[domain.ChannelSMS]; ok {
		t.Fatalf("expected no sms endpoint without url")
	}
	if cfg.Relay.Timeout != 3*time.Second {
		t.Fatalf("expected 3s relay timeout, got %s", cfg.Relay.Timeout)
	}
}
