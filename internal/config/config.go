// Package config reads process configuration from the environment. All
// values have working defaults so a bare `analytics-server` starts with
// in-memory stores and the built-in models.
package config

import "os"

// Config holds the server's process-scoped settings.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string
	// AuditDSN is the MySQL DSN for the audit log. Empty selects the
	// in-memory store.
	AuditDSN string
	// RedisAddr selects the Redis dataset store when non-empty.
	RedisAddr     string
	RedisPassword string
	// ModelPath points at a JSON model file. Empty selects the built-in
	// models.
	ModelPath string
	// CertFile/KeyFile enable TLS when both files exist.
	CertFile string
	KeyFile  string
}

// FromEnv builds the configuration from environment variables.
func FromEnv() Config {
	return Config{
		Addr:          envOr("ANALYTICS_ADDR", ":8080"),
		AuditDSN:      os.Getenv("ANALYTICS_AUDIT_DSN"),
		RedisAddr:     os.Getenv("ANALYTICS_REDIS_ADDR"),
		RedisPassword: os.Getenv("ANALYTICS_REDIS_PASSWORD"),
		ModelPath:     os.Getenv("ANALYTICS_MODEL_PATH"),
		CertFile:      envOr("ANALYTICS_TLS_CERT", "server.crt"),
		KeyFile:       envOr("ANALYTICS_TLS_KEY", "server.key"),
	}
}

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}
