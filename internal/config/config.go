// Package config loads the runtime configuration from YAML, with
// environment overrides and sane defaults when no file exists.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"intentrun/internal/policy"
	"intentrun/internal/provider"
	"intentrun/internal/resolve"
	"intentrun/internal/sandbox"
)

// Config holds all intentrun configuration.
type Config struct {
	// Tiers sets the security tier per instruction domain.
	Tiers TiersConfig `yaml:"tiers"`

	// Resolver tunes the fuzzy verb resolver.
	Resolver ResolverConfig `yaml:"resolver"`

	// Limits are the sandbox resource ceilings.
	Limits LimitsConfig `yaml:"limits"`

	// Database is the sqlite file structured queries run against.
	Database DatabaseConfig `yaml:"database"`

	// Audit configures the attempt log.
	Audit AuditConfig `yaml:"audit"`

	// Logging configures diagnostic output.
	Logging LoggingConfig `yaml:"logging"`
}

// TiersConfig names the active tier for each domain.
type TiersConfig struct {
	HostCommand     string `yaml:"host_command"`
	StructuredQuery string `yaml:"structured_query"`
}

// ResolverConfig tunes verb resolution.
type ResolverConfig struct {
	// Threshold is the minimum normalized similarity for a fuzzy match.
	Threshold float64 `yaml:"threshold"`

	// MaxCandidates bounds how many fuzzy candidates are considered.
	MaxCandidates int `yaml:"max_candidates"`

	// CacheSize is the LRU resolution cache capacity.
	CacheSize int `yaml:"cache_size"`
}

// LimitsConfig holds the sandbox ceilings in config-friendly units.
type LimitsConfig struct {
	MaxCPUTime     string `yaml:"max_cpu_time"`
	MaxMemoryBytes int64  `yaml:"max_memory_bytes"`
	MaxProcesses   int    `yaml:"max_processes"`
	WallClock      string `yaml:"wall_clock"`
	MaxOutputBytes int64  `yaml:"max_output_bytes"`
}

// DatabaseConfig locates the query database.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuditConfig locates the audit database.
type AuditConfig struct {
	Dir string `yaml:"dir"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Debug bool `yaml:"debug"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	stock := sandbox.DefaultLimits()
	return &Config{
		Tiers: TiersConfig{
			HostCommand:     "constrained",
			StructuredQuery: "constrained",
		},
		Resolver: ResolverConfig{
			Threshold:     resolve.DefaultThreshold,
			MaxCandidates: resolve.DefaultMaxCandidates,
			CacheSize:     resolve.DefaultCacheSize,
		},
		Limits: LimitsConfig{
			MaxCPUTime:     stock.MaxCPUTime.String(),
			MaxMemoryBytes: stock.MaxMemoryBytes,
			MaxProcesses:   stock.MaxProcesses,
			WallClock:      stock.WallClock.String(),
			MaxOutputBytes: stock.MaxOutputBytes,
		},
		Database: DatabaseConfig{Path: "data/intentrun.db"},
		Audit:    AuditConfig{Dir: "data"},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("INTENTRUN_DB"); path != "" {
		c.Database.Path = path
	}
	if dir := os.Getenv("INTENTRUN_AUDIT_DIR"); dir != "" {
		c.Audit.Dir = dir
	}
	if tier := os.Getenv("INTENTRUN_TIER"); tier != "" {
		c.Tiers.HostCommand = tier
		c.Tiers.StructuredQuery = tier
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if _, err := policy.ParseTier(c.Tiers.HostCommand); err != nil {
		return fmt.Errorf("tiers.host_command: %w", err)
	}
	if _, err := policy.ParseTier(c.Tiers.StructuredQuery); err != nil {
		return fmt.Errorf("tiers.structured_query: %w", err)
	}
	if c.Resolver.Threshold < 0 || c.Resolver.Threshold > 1 {
		return fmt.Errorf("resolver.threshold must be in [0, 1], got %v", c.Resolver.Threshold)
	}
	if c.Resolver.MaxCandidates < 0 {
		return fmt.Errorf("resolver.max_candidates must not be negative")
	}
	if c.Resolver.CacheSize < 0 {
		return fmt.Errorf("resolver.cache_size must not be negative")
	}
	if c.Limits.MaxCPUTime != "" {
		if _, err := time.ParseDuration(c.Limits.MaxCPUTime); err != nil {
			return fmt.Errorf("limits.max_cpu_time: %w", err)
		}
	}
	if c.Limits.WallClock != "" {
		if _, err := time.ParseDuration(c.Limits.WallClock); err != nil {
			return fmt.Errorf("limits.wall_clock: %w", err)
		}
	}
	return nil
}

// Tier returns the configured tier for a domain. Unknown names fall back
// to the strict tier.
func (c *Config) Tier(d provider.Domain) policy.Tier {
	var name string
	switch d {
	case provider.DomainHostCommand:
		name = c.Tiers.HostCommand
	case provider.DomainStructuredQuery:
		name = c.Tiers.StructuredQuery
	}
	tier, err := policy.ParseTier(name)
	if err != nil {
		return policy.TierStrict
	}
	return tier
}

// ResolveOptions converts the resolver section to resolver options.
func (c *Config) ResolveOptions() resolve.Options {
	return resolve.Options{
		Threshold:     c.Resolver.Threshold,
		MaxCandidates: c.Resolver.MaxCandidates,
		CacheSize:     c.Resolver.CacheSize,
	}
}

// SandboxLimits converts the limits section to sandbox ceilings.
func (c *Config) SandboxLimits() sandbox.Limits {
	stock := sandbox.DefaultLimits()
	l := sandbox.Limits{
		MaxMemoryBytes: c.Limits.MaxMemoryBytes,
		MaxProcesses:   c.Limits.MaxProcesses,
		MaxOutputBytes: c.Limits.MaxOutputBytes,
		MaxCPUTime:     stock.MaxCPUTime,
		WallClock:      stock.WallClock,
	}
	if d, err := time.ParseDuration(c.Limits.MaxCPUTime); err == nil && d > 0 {
		l.MaxCPUTime = d
	}
	if d, err := time.ParseDuration(c.Limits.WallClock); err == nil && d > 0 {
		l.WallClock = d
	}
	return l
}
