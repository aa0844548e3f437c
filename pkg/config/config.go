// Package config loads the site configuration: a YAML file overridden by
// EDGEBILL_* environment variables. Per-command flags override both.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings in Go
// duration syntax ("10s", "2m").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	dur, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("config: bad duration %q: %w", node.Value, err)
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) String() string { return time.Duration(d).String() }

// Config is the full site configuration.
type Config struct {
	// DBPath is the site SQLite database. Env: EDGEBILL_DB.
	DBPath string `yaml:"db_path"`
	// ReplicaID identifies this site in CRDT balance states. Must stay
	// stable for the life of the site. Env: EDGEBILL_REPLICA.
	ReplicaID string `yaml:"replica_id"`

	Dedup DedupConfig `yaml:"dedup"`
	Sync  SyncConfig  `yaml:"sync"`
	Lease LeaseConfig `yaml:"lease"`
}

// DedupConfig bounds the inbound-message idempotency window.
type DedupConfig struct {
	// MaxLen is the number of recent identifiers retained.
	MaxLen int `yaml:"max_len"`
	// Policy is "fail-open" or "fail-closed": the answer Seen gives when
	// the existence check itself fails.
	Policy string `yaml:"policy"`
}

// SyncConfig drives the edge -> cloud shipping loop.
type SyncConfig struct {
	// Endpoint is the cloud ledger ingestion URL. Env: EDGEBILL_SYNC_URL.
	Endpoint string `yaml:"endpoint"`
	// BatchSize caps events per shipped batch.
	BatchSize int `yaml:"batch_size"`
	// Interval is the pause between batches under --watch.
	Interval Duration `yaml:"interval"`
	// MetricsPort serves the Prometheus exporter under --watch; 0 disables.
	MetricsPort int `yaml:"metrics_port"`
}

// LeaseConfig holds lease-lock defaults.
type LeaseConfig struct {
	// TTL is the default lease lifetime when a command passes none.
	TTL Duration `yaml:"ttl"`
}

// Default returns the configuration an unconfigured site runs with.
func Default() *Config {
	return &Config{
		DBPath:    "edgebill.db",
		ReplicaID: "",
		Dedup:     DedupConfig{MaxLen: 5000, Policy: "fail-open"},
		Sync: SyncConfig{
			BatchSize:   100,
			Interval:    Duration(10 * time.Second),
			MetricsPort: 0,
		},
		Lease: LeaseConfig{TTL: Duration(60 * time.Second)},
	}
}

// Load reads path over the defaults; a missing file is fine (defaults and
// environment only). Environment overrides apply last.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// No file: run on defaults + env.
		case err != nil:
			return nil, fmt.Errorf("read config %q: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %q: %w", path, err)
			}
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("EDGEBILL_DB"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("EDGEBILL_REPLICA"); v != "" {
		c.ReplicaID = v
	}
	if v := os.Getenv("EDGEBILL_SYNC_URL"); v != "" {
		c.Sync.Endpoint = v
	}
}

func (c *Config) validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("config: db_path must not be empty")
	}
	if c.Dedup.MaxLen < 0 {
		return fmt.Errorf("config: dedup.max_len must not be negative")
	}
	if c.Sync.BatchSize <= 0 {
		return fmt.Errorf("config: sync.batch_size must be positive")
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("config: sync.interval must be positive")
	}
	if c.Lease.TTL <= 0 {
		return fmt.Errorf("config: lease.ttl must be positive")
	}
	return nil
}
