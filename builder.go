package authcore

import (
	"errors"
	"strings"

	internalaudit "github.com/lexiconary/authcore/internal/audit"
	"github.com/lexiconary/authcore/internal/ratelimit"
	"github.com/lexiconary/authcore/jwt"
	"github.com/lexiconary/authcore/secret"
	"github.com/lexiconary/authcore/token"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. A Builder is single-use: Build succeeds at
// most once.
type Builder struct {
	config Config
	redis  *redis.Client

	accounts  AccountProvider
	auditSink AuditSink

	built bool
}

// New starts a Builder with default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing the token ledger, rate limiter,
// and audit ledger. Required.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithAccountProvider sets the account lookup used by token refresh and
// authorization. Required.
func (b *Builder) WithAccountProvider(provider AccountProvider) *Builder {
	b.accounts = provider
	return b
}

// WithAuditSink adds a caller-supplied sink alongside the built-in Redis
// ledger sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the validation latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, gates on signing-secret strength, and
// wires the engine. A weak secret returns [ErrSecretValidationFailed]; the
// engine never boots with one.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.accounts == nil {
		return nil, errors.New("account provider required")
	}

	// -------- SECRET STRENGTH GATE --------
	report := secret.Validate(string(cfg.JWT.Secret))
	if !report.IsValid {
		return nil, &secretValidationError{report: report}
	}

	engine := &Engine{
		config:   cfg,
		accounts: b.accounts,
	}

	// -------- TOKEN LEDGER --------
	engine.tokens = token.NewStore(b.redis, cfg.Token.RedisPrefix)

	// -------- RATE LIMITER --------
	if cfg.RateLimit.Enabled {
		engine.limiter = ratelimit.New(b.redis, ratelimit.Config{
			Rules:                  cfg.RateLimit.Rules,
			BaseBlockDuration:      cfg.RateLimit.BaseBlockDuration,
			MaxBlockDuration:       cfg.RateLimit.MaxBlockDuration,
			ViolationTTL:           cfg.RateLimit.ViolationTTL,
			AutoBlacklistThreshold: cfg.RateLimit.AutoBlacklistThreshold,
			BlacklistTTL:           cfg.RateLimit.BlacklistTTL,
			Whitelist:              cfg.RateLimit.Whitelist,
		})
	}

	// -------- AUDIT PIPELINE --------
	if cfg.Audit.Enabled {
		sinks := make([]internalaudit.Sink, 0, 2)
		if cfg.Audit.Persist {
			engine.ledger = internalaudit.NewStore(b.redis, cfg.Audit.RedisPrefix, cfg.Audit.Retention)
			sinks = append(sinks, internalaudit.NewRedisSink(engine.ledger))
		}
		if b.auditSink != nil {
			sinks = append(sinks, b.auditSink)
		}

		var sink internalaudit.Sink
		switch len(sinks) {
		case 0:
			sink = internalaudit.NoOpSink{}
		case 1:
			sink = sinks[0]
		default:
			sink = internalaudit.NewFanOutSink(sinks...)
		}

		engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    true,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, sink)
	}

	engine.metrics = NewMetrics(cfg.Metrics)

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL: cfg.JWT.AccessTTL,
		Secret:    cloneBytes(cfg.JWT.Secret),
		Issuer:    cfg.JWT.Issuer,
		Audience:  cfg.JWT.Audience,
		Leeway:    cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}
	engine.jwt = jm

	if cfg.Maintenance.Enabled {
		engine.startMaintenance(cfg.Maintenance.Interval)
	}

	b.built = true

	return engine, nil
}

// secretValidationError carries the full strength [secret.Report] so boot
// failures can explain exactly what was wrong.
type secretValidationError struct {
	report secret.Report
}

func (e *secretValidationError) Error() string {
	return ErrSecretValidationFailed.Error() + ": " + strings.Join(e.report.Errors, "; ")
}

func (e *secretValidationError) Unwrap() error {
	return ErrSecretValidationFailed
}

// Report exposes the underlying strength report.
func (e *secretValidationError) Report() secret.Report {
	return e.report
}
