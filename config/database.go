package config

import "time"

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"repolens"`
	Password string `env:"PASSWORD" envDefault:"repolens"`
	Name     string `env:"NAME"     envDefault:"repolens"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig contains Redis configuration for the digest cache.
type RedisConfig struct {
	Addr     string `env:"ADDR"     envDefault:"localhost:6379"`
	Password string `env:"PASSWORD" envDefault:""`
	DB       int    `env:"DB"       envDefault:"0"`
}

// CacheConfig contains cache configuration (Redis-based).
type CacheConfig struct {
	// DigestTTL is the TTL for cached repository digests. A resubmission for
	// the same repository inside this window skips the network fetch.
	DigestTTL time.Duration `env:"CACHE_DIGEST_TTL" envDefault:"30m"`

	// Enabled controls whether the digest cache is consulted at all.
	Enabled bool `env:"CACHE_ENABLED" envDefault:"true"`
}
