package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"intentrun/internal/policy"
	"intentrun/internal/provider"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Tier(provider.DomainHostCommand); got != policy.TierConstrained {
		t.Errorf("default host tier = %s, want constrained", got)
	}
	if cfg.Resolver.Threshold != 0.75 {
		t.Errorf("default threshold = %v, want 0.75", cfg.Resolver.Threshold)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
tiers:
  host_command: strict
  structured_query: readonly
resolver:
  threshold: 0.8
limits:
  wall_clock: 5s
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Tier(provider.DomainHostCommand); got != policy.TierStrict {
		t.Errorf("host tier = %s, want strict", got)
	}
	if got := cfg.Tier(provider.DomainStructuredQuery); got != policy.TierReadOnly {
		t.Errorf("query tier = %s, want readonly", got)
	}
	if got := cfg.SandboxLimits().WallClock; got != 5*time.Second {
		t.Errorf("wall clock = %s, want 5s", got)
	}
	// Sections absent from the file keep their defaults.
	if cfg.Resolver.CacheSize == 0 {
		t.Error("cache size default was lost on load")
	}
}

func TestLoadRejectsBadTier(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("tiers:\n  host_command: yolo\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an unknown tier name")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("INTENTRUN_TIER", "strict")
	t.Setenv("INTENTRUN_DB", "/tmp/override.db")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Tier(provider.DomainHostCommand); got != policy.TierStrict {
		t.Errorf("host tier = %s, want strict from env", got)
	}
	if cfg.Database.Path != "/tmp/override.db" {
		t.Errorf("database path = %q, want env override", cfg.Database.Path)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := DefaultConfig()
	cfg.Tiers.HostCommand = "readonly"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := loaded.Tier(provider.DomainHostCommand); got != policy.TierReadOnly {
		t.Errorf("round-tripped host tier = %s, want readonly", got)
	}
}

func TestValidateBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resolver.Threshold = 1.5
	if err := cfg.Validate(); err == nil {
		t.Error("threshold above 1 should fail validation")
	}

	cfg = DefaultConfig()
	cfg.Limits.WallClock = "banana"
	if err := cfg.Validate(); err == nil {
		t.Error("unparseable wall clock should fail validation")
	}
}
