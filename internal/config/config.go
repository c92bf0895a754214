package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the performance tracker service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Warehouse WarehouseConfig `yaml:"warehouse"`
	Redis     RedisConfig     `yaml:"redis"`
	Lookup    LookupConfig    `yaml:"lookup"`
	Tracker   TrackerConfig   `yaml:"tracker"`
	Auth      AuthConfig      `yaml:"auth"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection.
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	// Allow override via environment
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// WarehouseConfig holds Snowflake configuration for the ad-revenue warehouse.
type WarehouseConfig struct {
	ConnectionString string `yaml:"connection_string"`
	Account          string `yaml:"account"`
	User             string `yaml:"user"`
	Password         string `yaml:"password"`
	Database         string `yaml:"database"`
	Schema           string `yaml:"schema"`
	Warehouse        string `yaml:"warehouse"`
	Table            string `yaml:"table"`
	TimeoutSeconds   int    `yaml:"timeout_seconds"`
	Enabled          bool   `yaml:"enabled"`
}

// Timeout returns the configured query timeout as a duration.
func (c WarehouseConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RedisConfig holds the Redis connection used for lookup caching and
// shared deep-dive snapshots. Optional: the service degrades to direct
// warehouse reads when disabled.
type RedisConfig struct {
	URL     string `yaml:"url"`
	Addr    string `yaml:"addr"`
	Enabled bool   `yaml:"enabled"`
}

// LookupConfig governs the dropdown-lookup cache (distinct products,
// PICs, zones). Never consulted by the tiering path.
type LookupConfig struct {
	TTLMinutes int `yaml:"ttl_minutes"`
}

// TTL returns the lookup cache TTL as a duration.
func (c LookupConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// TrackerConfig holds deep-dive specific knobs.
type TrackerConfig struct {
	SnapshotTTLHours int `yaml:"snapshot_ttl_hours"`
	MaxResultRows    int `yaml:"max_result_rows"`
}

// SnapshotTTL returns how long shared deep-dive snapshots live in Redis.
func (c TrackerConfig) SnapshotTTL() time.Duration {
	return time.Duration(c.SnapshotTTLHours) * time.Hour
}

// AuthConfig holds the shared-token gate for standalone deployments.
// Real authentication (sessions, RBAC) belongs to the surrounding app.
type AuthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Warehouse.Database == "" {
		cfg.Warehouse.Database = "ADPULSE_DATA_LAKE"
	}
	if cfg.Warehouse.Schema == "" {
		cfg.Warehouse.Schema = "ADREVENUE"
	}
	if cfg.Warehouse.Table == "" {
		cfg.Warehouse.Table = "AD_REVENUE_DAILY"
	}
	if cfg.Warehouse.TimeoutSeconds == 0 {
		cfg.Warehouse.TimeoutSeconds = 60
	}
	if cfg.Lookup.TTLMinutes == 0 {
		cfg.Lookup.TTLMinutes = 10
	}
	if cfg.Tracker.SnapshotTTLHours == 0 {
		cfg.Tracker.SnapshotTTLHours = 72
	}
	if cfg.Tracker.MaxResultRows == 0 {
		cfg.Tracker.MaxResultRows = 5000
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables if present
	if v := os.Getenv("WAREHOUSE_CONNECTION_STRING"); v != "" {
		cfg.Warehouse.ConnectionString = v
		cfg.Warehouse.Enabled = true
	}
	if v := os.Getenv("WAREHOUSE_ACCOUNT"); v != "" {
		cfg.Warehouse.Account = v
	}
	if v := os.Getenv("WAREHOUSE_USER"); v != "" {
		cfg.Warehouse.User = v
	}
	if v := os.Getenv("WAREHOUSE_PASSWORD"); v != "" {
		cfg.Warehouse.Password = v
	}
	if v := os.Getenv("WAREHOUSE_DATABASE"); v != "" {
		cfg.Warehouse.Database = v
	}
	if v := os.Getenv("WAREHOUSE_SCHEMA"); v != "" {
		cfg.Warehouse.Schema = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("API_TOKEN"); v != "" {
		cfg.Auth.Token = v
		cfg.Auth.Enabled = true
	}

	return cfg, nil
}
