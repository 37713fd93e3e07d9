package authcore

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ConfigFromEnv builds a Config from environment variables, loading a .env
// file first when one exists in the working directory. Unset variables keep
// their defaults.
//
// Recognized variables:
//
//	AUTHCORE_JWT_SECRET          signing secret (required for Build)
//	AUTHCORE_JWT_ISSUER          iss claim
//	AUTHCORE_JWT_AUDIENCE        aud claim
//	AUTHCORE_ACCESS_TTL          e.g. "15m"
//	AUTHCORE_REFRESH_TTL         e.g. "720h"
//	AUTHCORE_RATE_LIMIT_ENABLED  "true"/"false"
//	AUTHCORE_BLACKLIST_TTL       "0" for permanent
//	AUTHCORE_AUDIT_ENABLED       "true"/"false"
//	AUTHCORE_AUDIT_RETENTION     e.g. "8760h"
//	AUTHCORE_METRICS_ENABLED     "true"/"false"
func ConfigFromEnv() (Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()

	if v := os.Getenv("AUTHCORE_JWT_SECRET"); v != "" {
		cfg.JWT.Secret = []byte(v)
	}
	if v := os.Getenv("AUTHCORE_JWT_ISSUER"); v != "" {
		cfg.JWT.Issuer = v
	}
	if v := os.Getenv("AUTHCORE_JWT_AUDIENCE"); v != "" {
		cfg.JWT.Audience = v
	}

	var err error
	if cfg.JWT.AccessTTL, err = envDuration("AUTHCORE_ACCESS_TTL", cfg.JWT.AccessTTL); err != nil {
		return Config{}, err
	}
	if cfg.Token.RefreshTTL, err = envDuration("AUTHCORE_REFRESH_TTL", cfg.Token.RefreshTTL); err != nil {
		return Config{}, err
	}
	if cfg.RateLimit.Enabled, err = envBool("AUTHCORE_RATE_LIMIT_ENABLED", cfg.RateLimit.Enabled); err != nil {
		return Config{}, err
	}
	if cfg.RateLimit.BlacklistTTL, err = envDuration("AUTHCORE_BLACKLIST_TTL", cfg.RateLimit.BlacklistTTL); err != nil {
		return Config{}, err
	}
	if cfg.Audit.Enabled, err = envBool("AUTHCORE_AUDIT_ENABLED", cfg.Audit.Enabled); err != nil {
		return Config{}, err
	}
	if cfg.Audit.Retention, err = envDuration("AUTHCORE_AUDIT_RETENTION", cfg.Audit.Retention); err != nil {
		return Config{}, err
	}
	if cfg.Metrics.Enabled, err = envBool("AUTHCORE_METRICS_ENABLED", cfg.Metrics.Enabled); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func envDuration(name string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	if v == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %v", name, err)
	}
	return d, nil
}

func envBool(name string, fallback bool) (bool, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %v", name, err)
	}
	return b, nil
}
