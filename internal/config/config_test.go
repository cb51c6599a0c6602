package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("NATS_URL", "")
	t.Setenv("LITELLM_URL", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("CODEFORGE_WORKER_LOG_LEVEL", "")
	t.Setenv("CODEFORGE_WORKER_LOG_SERVICE", "")
	t.Setenv("CODEFORGE_WORKER_HEALTH_PORT", "")
	t.Setenv("APP_ENV", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Bus.URL != "nats://localhost:4222" {
		t.Errorf("Bus.URL = %q", cfg.Bus.URL)
	}
	if cfg.Health.Port != 8090 {
		t.Errorf("Health.Port = %d, want 8090", cfg.Health.Port)
	}
	if cfg.IsDev() {
		t.Errorf("IsDev() = true, want false by default")
	}
}

func TestLoadHealthPortOverride(t *testing.T) {
	t.Setenv("CODEFORGE_WORKER_HEALTH_PORT", "9191")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Health.Port != 9191 {
		t.Errorf("Health.Port = %d, want 9191", cfg.Health.Port)
	}
}

func TestLoadInvalidHealthPort(t *testing.T) {
	t.Setenv("CODEFORGE_WORKER_HEALTH_PORT", "not-a-number")
	if _, err := Load(); err == nil {
		t.Error("expected error for invalid health port")
	}
}
