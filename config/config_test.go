package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "MySQL")
	t.Setenv("CURRENCY", "usd")
	t.Setenv("TOPUP_ORDER_TTL", "90")
	t.Setenv("SETTLE_INTERVAL", "2m")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example , https://b.example")

	cfg := Load()
	if cfg.DB.Driver != "mysql" {
		t.Fatalf("driver: %s", cfg.DB.Driver)
	}
	if cfg.Ledger.Currency != "USD" {
		t.Fatalf("currency: %s", cfg.Ledger.Currency)
	}
	if cfg.Ledger.TopupOrderTTL != 90*time.Second {
		t.Fatalf("ttl: %s", cfg.Ledger.TopupOrderTTL)
	}
	if cfg.Gateway.SettleInterval != 2*time.Minute {
		t.Fatalf("settle interval: %s", cfg.Gateway.SettleInterval)
	}
	if cfg.App.AllowedOrigins != "https://a.example,https://b.example" {
		t.Fatalf("origins: %q", cfg.App.AllowedOrigins)
	}
	if cfg.R2.Enabled() {
		t.Fatal("R2 should be off without credentials")
	}
}

func TestGetEnvFallbacks(t *testing.T) {
	t.Setenv("DISPATCH_WORKERS", "many")
	if got := getEnvAsInt("DISPATCH_WORKERS", 4); got != 4 {
		t.Fatalf("bad int should fall back, got %d", got)
	}
	t.Setenv("DB_CONN_MAX_IDLE_TIME", "soon")
	if got := getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", time.Minute); got != time.Minute {
		t.Fatalf("bad duration should fall back, got %s", got)
	}
}
