// Package config centralises the environment-variable-driven configuration
// of spec section 6, bound through viper the way
// cmd/thalassa-csi-plugin/cmd/plugin.go binds cobra flags to viper keys.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DatabaseKind selects the storage driver (spec 4.A: "must run on both a
// server-grade SQL engine ... and an embedded single-file SQL engine").
type DatabaseKind string

const (
	DatabaseEmbedded DatabaseKind = "embedded"
	DatabaseServer   DatabaseKind = "server"
)

// Config is the fully-resolved, validated process configuration.
type Config struct {
	DatabaseKind       DatabaseKind
	DatabaseURL        string
	DatabasePoolMin    int
	DatabasePoolMax    int

	ServerHost string
	ServerPort int

	AuthTokenSigningSecret string
	TokenTTL               time.Duration
	AdminTokens            []string

	HeartbeatOfflineThreshold time.Duration

	ShutdownGracefulTimeout time.Duration

	SnapshotsRetainPerEndpoint int

	CORSAllowedOrigins []string

	LoggingLevel      string
	LoggingStructured bool
}

// SetDefaults registers every default from spec section 6 on v. Called
// before flags are bound so CLI/env values always take precedence.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.kind", string(DatabaseEmbedded))
	v.SetDefault("database.url", "")
	v.SetDefault("database.pool_min_size", 2)
	v.SetDefault("database.pool_max_size", 10)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("security.auth_token_signing_secret", "")
	v.SetDefault("security.token_ttl_hours", 24)
	v.SetDefault("security.admin_tokens", []string{})

	v.SetDefault("heartbeat.offline_threshold_seconds", 300)

	v.SetDefault("shutdown.graceful_timeout_seconds", 30)

	v.SetDefault("snapshots.retain_per_endpoint", 10)

	v.SetDefault("cors.allowed_origins", []string{})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.structured", true)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads v into a validated Config.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		DatabaseKind:               DatabaseKind(v.GetString("database.kind")),
		DatabaseURL:                v.GetString("database.url"),
		DatabasePoolMin:            v.GetInt("database.pool_min_size"),
		DatabasePoolMax:            v.GetInt("database.pool_max_size"),
		ServerHost:                 v.GetString("server.host"),
		ServerPort:                 v.GetInt("server.port"),
		AuthTokenSigningSecret:     v.GetString("security.auth_token_signing_secret"),
		TokenTTL:                   time.Duration(v.GetInt64("security.token_ttl_hours")) * time.Hour,
		AdminTokens:                v.GetStringSlice("security.admin_tokens"),
		HeartbeatOfflineThreshold:  time.Duration(v.GetInt64("heartbeat.offline_threshold_seconds")) * time.Second,
		ShutdownGracefulTimeout:    time.Duration(v.GetInt64("shutdown.graceful_timeout_seconds")) * time.Second,
		SnapshotsRetainPerEndpoint: v.GetInt("snapshots.retain_per_endpoint"),
		CORSAllowedOrigins:         v.GetStringSlice("cors.allowed_origins"),
		LoggingLevel:               v.GetString("logging.level"),
		LoggingStructured:          v.GetBool("logging.structured"),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.DatabaseKind {
	case DatabaseEmbedded, DatabaseServer:
	default:
		return fmt.Errorf("config: database.kind must be %q or %q, got %q", DatabaseEmbedded, DatabaseServer, c.DatabaseKind)
	}
	if c.DatabaseKind == DatabaseServer && c.DatabaseURL == "" {
		return fmt.Errorf("config: database.url is required when database.kind=server")
	}
	if c.DatabasePoolMin < 0 || c.DatabasePoolMax < c.DatabasePoolMin {
		return fmt.Errorf("config: database.pool_min_size/pool_max_size are inconsistent (%d/%d)", c.DatabasePoolMin, c.DatabasePoolMax)
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("config: server.port out of range: %d", c.ServerPort)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("config: security.token_ttl_hours must be positive")
	}
	return nil
}

// Addr is the host:port the HTTP surface should listen on.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}
