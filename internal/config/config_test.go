package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.PositionBackend != DatabaseSQLite {
		t.Fatalf("expected sqlite default backend, got %q", cfg.PositionBackend)
	}
	if cfg.MetricsBind == "" {
		t.Fatal("expected a default metrics bind address")
	}
}

func TestLoadRejectsUnknownPositionBackend(t *testing.T) {
	t.Setenv("MEDIAFOX_POSITION_BACKEND", "oracle")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unsupported position backend")
	}
}

func TestLoadReportsLegacyEnvWarnings(t *testing.T) {
	t.Setenv("OTLP_ENDPOINT", "legacy:4317")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.LegacyEnvWarnings) == 0 {
		t.Fatal("expected legacy env warnings")
	}
}
