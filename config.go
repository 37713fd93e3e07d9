package authcore

import (
	"errors"
	"time"
)

// Config holds every tunable of the engine. Instances are configured during
// initialization and treated as immutable afterwards.
type Config struct {
	JWT         JWTConfig
	Token       TokenConfig
	RateLimit   RateLimitConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
	Maintenance MaintenanceConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures access-token issuance and verification. Secret is
// strength-validated at Build time; a weak secret refuses to boot.
type JWTConfig struct {
	AccessTTL time.Duration
	Secret    []byte
	Issuer    string
	Audience  string
	Leeway    time.Duration
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig configures the refresh-token ledger.
type TokenConfig struct {
	RefreshTTL  time.Duration
	RedisPrefix string
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig configures the adaptive limiter. Rules overrides the
// built-in category budgets; nil keeps the defaults. BlacklistTTL zero means
// permanent.
type RateLimitConfig struct {
	Enabled                bool
	Rules                  map[RateCategory]RateLimitRule
	BaseBlockDuration      time.Duration
	MaxBlockDuration       time.Duration
	ViolationTTL           time.Duration
	AutoBlacklistThreshold int
	BlacklistTTL           time.Duration
	Whitelist              []string
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig configures the async audit dispatcher and the optional Redis
// ledger. When Persist is true, events are appended to the ledger in
// addition to any sink supplied through the builder.
type AuditConfig struct {
	Enabled     bool
	BufferSize  int
	DropIfFull  bool
	Persist     bool
	RedisPrefix string
	Retention   time.Duration
}

// MetricsConfig configures the in-process metrics system.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// MaintenanceConfig configures the background sweep loop that prunes expired
// audit index entries and TTL-less rate-limit keys. Redis TTLs do the bulk of
// the cleanup; the sweeps bound the leftovers.
type MaintenanceConfig struct {
	Enabled  bool
	Interval time.Duration
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL: 15 * time.Minute,
		},
		Token: TokenConfig{
			RefreshTTL:  30 * 24 * time.Hour,
			RedisPrefix: "rt",
		},
		RateLimit: RateLimitConfig{
			Enabled:                true,
			BaseBlockDuration:      30 * time.Minute,
			MaxBlockDuration:       24 * time.Hour,
			ViolationTTL:           24 * time.Hour,
			AutoBlacklistThreshold: 5,
			BlacklistTTL:           24 * time.Hour,
		},
		Audit: AuditConfig{
			Enabled:     true,
			BufferSize:  1024,
			DropIfFull:  true,
			Persist:     true,
			RedisPrefix: "aud",
			Retention:   365 * 24 * time.Hour,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
		Maintenance: MaintenanceConfig{
			Enabled:  false,
			Interval: time.Hour,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	if cfg.RateLimit.Rules != nil {
		out.RateLimit.Rules = make(map[RateCategory]RateLimitRule, len(cfg.RateLimit.Rules))
		for cat, rule := range cfg.RateLimit.Rules {
			out.RateLimit.Rules[cat] = rule
		}
	}
	if cfg.RateLimit.Whitelist != nil {
		out.RateLimit.Whitelist = append([]string(nil), cfg.RateLimit.Whitelist...)
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks structural consistency. Secret strength is checked
// separately at Build time so callers get the full strength report.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if len(c.JWT.Secret) == 0 {
		return errors.New("JWT Secret is required")
	}
	if c.JWT.Leeway < 0 {
		return errors.New("JWT Leeway must be >= 0")
	}

	// Token
	if c.Token.RefreshTTL <= 0 {
		return errors.New("Token RefreshTTL must be > 0")
	}
	if c.Token.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("Token RefreshTTL must exceed JWT AccessTTL")
	}

	// Rate limiting
	if c.RateLimit.Enabled {
		for cat, rule := range c.RateLimit.Rules {
			if rule.Max <= 0 {
				return errors.New("RateLimit rule for " + string(cat) + " must allow at least one request")
			}
			if rule.Window <= 0 {
				return errors.New("RateLimit rule for " + string(cat) + " must have a positive window")
			}
		}
		if c.RateLimit.BaseBlockDuration < 0 {
			return errors.New("RateLimit BaseBlockDuration must be >= 0")
		}
		if c.RateLimit.MaxBlockDuration > 0 && c.RateLimit.MaxBlockDuration < c.RateLimit.BaseBlockDuration {
			return errors.New("RateLimit MaxBlockDuration must be >= BaseBlockDuration")
		}
		if c.RateLimit.AutoBlacklistThreshold < 0 {
			return errors.New("RateLimit AutoBlacklistThreshold must be >= 0")
		}
		if c.RateLimit.BlacklistTTL < 0 {
			return errors.New("RateLimit BlacklistTTL must be >= 0")
		}
	}

	// Audit
	if c.Audit.Enabled {
		if c.Audit.BufferSize <= 0 {
			return errors.New("Audit BufferSize must be > 0")
		}
		if c.Audit.Persist && c.Audit.Retention <= 0 {
			return errors.New("Audit Retention must be > 0 when Persist is enabled")
		}
	}

	// Maintenance
	if c.Maintenance.Enabled && c.Maintenance.Interval <= 0 {
		return errors.New("Maintenance Interval must be > 0 when enabled")
	}

	return nil
}
