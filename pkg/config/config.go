// Package config holds environment-driven configuration shared by the
// service binaries. Structs are tagged for cleanenv.
package config

import (
	"fmt"
	"time"
)

// DatabaseConfig holds PostgreSQL database configuration
type DatabaseConfig struct {
	Host     string `env:"CARELOG_PG_HOST" env-default:"localhost"`
	Port     uint16 `env:"CARELOG_PG_PORT" env-default:"5432"`
	Database string `env:"CARELOG_PG_DATABASE" env-default:"carelog_db"`
	User     string `env:"CARELOG_PG_USER" env-default:"carelog"`
	Password string `env:"CARELOG_PG_PASSWORD" env-default:"pwd"`
	Schema   string `env:"CARELOG_PG_SCHEMA" env-default:"public"`
}

// URL renders the pgx connection string
func (c DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&search_path=%s,public",
		c.User, c.Password, c.Host, c.Port, c.Database, c.Schema)
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port uint16 `env:"CARELOG_PORT" env-default:"4000"`
}

// AuthConfig holds admin credential verification configuration
type AuthConfig struct {
	// JwtSecret signs the admin bearer tokens issued by the platform's
	// authentication provider
	JwtSecret string `env:"CARELOG_JWT_SECRET" env-default:"very-secure-jwt-secret"`
}

// SweeperConfig holds expiration sweeper configuration
type SweeperConfig struct {
	CleanupInterval time.Duration `env:"CARELOG_CLEANUP_INTERVAL" env-default:"5m"`
}

// AppConfig aggregates all service configuration
type AppConfig struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Sweeper  SweeperConfig
}
