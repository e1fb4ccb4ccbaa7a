package config

// Config is the service-level configuration, loaded from environment
// variables, an optional config.yaml and defaults, in that priority
// order.
type Config struct {
	Environment string `mapstructure:"environment" yaml:"environment"`
	Port        int    `mapstructure:"port" yaml:"port"`
	LogLevel    string `mapstructure:"log_level" yaml:"log_level"`

	Cache  CacheConfig  `mapstructure:"cache" yaml:"cache"`
	Agents AgentsConfig `mapstructure:"agents" yaml:"agents"`
	Audit  AuditConfig  `mapstructure:"audit" yaml:"audit"`
}

// CacheConfig points at the Redis/Valkey instance backing the
// configuration store and the audit trail. When disabled, both fall
// back to in-process implementations.
type CacheConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	TTL      int    `mapstructure:"ttl" yaml:"ttl"` // seconds
}

// AgentsConfig controls agent bootstrap.
type AgentsConfig struct {
	// File seeds the static configuration store when the cache-backed
	// store is disabled.
	File string `mapstructure:"file" yaml:"file"`
	// HealthCheckInterval is in seconds.
	HealthCheckInterval int `mapstructure:"health_check_interval" yaml:"health_check_interval"`
}

// AuditConfig selects the audit sink.
type AuditConfig struct {
	// Backend is "log" or "redis".
	Backend string `mapstructure:"backend" yaml:"backend"`
}
