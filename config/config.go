package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"webpush-demo-backend/internal/store"
	"webpush-demo-backend/internal/vapid"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Registry   RegistryConfig   `yaml:"registry"`
	Database   DatabaseConfig   `yaml:"database"`
	Agent      AgentConfig      `yaml:"agent"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size               int           `yaml:"size"`
	SendTimeoutSeconds int           `yaml:"send_timeout_seconds"`
	SendTimeout        time.Duration `yaml:"-"`
}

// PushConfig holds the VAPID keys and the demonstration broadcast payload.
type PushConfig struct {
	vapid.KeyPair  `yaml:",inline"`
	Subject        string `yaml:"subject"`
	TTL            int    `yaml:"ttl"`
	BroadcastTitle string `yaml:"broadcast_title"`
	BroadcastBody  string `yaml:"broadcast_body"`
	Icon           string `yaml:"icon"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
	// AdminJWTSecret protects broadcast and inspection routes when set.
	AdminJWTSecret string `yaml:"admin_jwt_secret"`
}

// RegistryConfig selects the subscription registry backend.
type RegistryConfig struct {
	Driver      string `yaml:"driver"` // memory, sqlite or postgres
	OnDuplicate string `yaml:"on_duplicate"`
	// SweepIntervalSeconds enables periodic removal of subscriptions whose
	// expirationTime has passed. Zero disables the sweeper.
	SweepIntervalSeconds int           `yaml:"sweep_interval_seconds"`
	SweepInterval        time.Duration `yaml:"-"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// AgentConfig holds the timeouts used by the client agent.
type AgentConfig struct {
	ServerURL                string `yaml:"server_url"`
	PermissionTimeoutSeconds int    `yaml:"permission_timeout_seconds"`
	ForwardTimeoutSeconds    int    `yaml:"forward_timeout_seconds"`
	ForwardRetries           int    `yaml:"forward_retries"`
}

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 300
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}
	if cfg.Push.BroadcastTitle == "" {
		cfg.Push.BroadcastTitle = "Hello World"
	}
	if cfg.Push.BroadcastBody == "" {
		cfg.Push.BroadcastBody = "This is a push notification from the server."
	}
	if cfg.Push.Icon == "" {
		cfg.Push.Icon = "/icons/icon-192.png"
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
	if cfg.WorkerPool.SendTimeoutSeconds <= 0 {
		cfg.WorkerPool.SendTimeoutSeconds = 30
	}
	cfg.WorkerPool.SendTimeout = time.Duration(cfg.WorkerPool.SendTimeoutSeconds) * time.Second

	if cfg.Registry.Driver == "" {
		cfg.Registry.Driver = DriverMemory
	}
	if cfg.Registry.OnDuplicate == "" {
		cfg.Registry.OnDuplicate = string(store.PolicyReplace)
	}
	if cfg.Registry.SweepIntervalSeconds < 0 {
		cfg.Registry.SweepIntervalSeconds = 0
	}
	cfg.Registry.SweepInterval = time.Duration(cfg.Registry.SweepIntervalSeconds) * time.Second

	if cfg.Agent.ServerURL == "" {
		cfg.Agent.ServerURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	if cfg.Agent.PermissionTimeoutSeconds <= 0 {
		cfg.Agent.PermissionTimeoutSeconds = 60
	}
	if cfg.Agent.ForwardTimeoutSeconds <= 0 {
		cfg.Agent.ForwardTimeoutSeconds = 10
	}
	if cfg.Agent.ForwardRetries < 0 {
		cfg.Agent.ForwardRetries = 0
	}
}

// Validate checks the settings the server cannot start without.
func (cfg *Config) Validate() error {
	if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
		return fmt.Errorf("VAPID keys must be configured; generate them with `pushd keys`")
	}
	if err := vapid.ValidatePublicKey(cfg.Push.PublicKey); err != nil {
		return fmt.Errorf("push.vapid_public_key: %w", err)
	}
	if err := vapid.ValidatePrivateKey(cfg.Push.PrivateKey); err != nil {
		return fmt.Errorf("push.vapid_private_key: %w", err)
	}
	if cfg.Push.Subject == "" {
		return fmt.Errorf("push.subject must be a contact URI such as mailto:admin@example.com")
	}

	switch cfg.Registry.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if cfg.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for registry driver %q", cfg.Registry.Driver)
		}
	default:
		return fmt.Errorf("unknown registry driver %q", cfg.Registry.Driver)
	}

	if _, err := store.ParseDuplicatePolicy(cfg.Registry.OnDuplicate); err != nil {
		return fmt.Errorf("registry.on_duplicate: %w", err)
	}
	return nil
}

// PermissionTimeout bounds the notification permission prompt.
func (a AgentConfig) PermissionTimeout() time.Duration {
	return time.Duration(a.PermissionTimeoutSeconds) * time.Second
}

// ForwardTimeout bounds each subscription POST.
func (a AgentConfig) ForwardTimeout() time.Duration {
	return time.Duration(a.ForwardTimeoutSeconds) * time.Second
}
