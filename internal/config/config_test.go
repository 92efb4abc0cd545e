package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.Port == "" {
		t.Fatalf("expected default port")
	}
	if cfg.Address() != ":"+cfg.Port {
		t.Fatalf("unexpected address %s", cfg.Address())
	}
	if cfg.EstimateTTLSeconds < 1 {
		t.Fatalf("estimate ttl must be positive")
	}
	if cfg.BackupDir == "" || cfg.UploadDir == "" {
		t.Fatalf("expected default backup and upload dirs")
	}
}
