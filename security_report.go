package authcore

import (
	"time"

	"github.com/lexiconary/authcore/secret"
)

// SecurityReport is a read-only snapshot of the engine's security posture,
// returned by [Engine.SecurityReport]. SecretStrength reports the signing
// secret's rating without exposing the secret itself.
type SecurityReport struct {
	AccessTTL             time.Duration
	RefreshTTL            time.Duration
	SecretStrength        secret.Strength
	SecretScore           int
	RotationEnabled       bool
	ReuseDetectionEnabled bool
	RateLimitingActive    bool
	AutoBlacklistActive   bool
	AuditEnabled          bool
	AuditPersisted        bool
	AuditRetention        time.Duration
	MetricsEnabled        bool
}

// SecurityReport re-validates the signing secret at call time so the rating
// reflects the current policy, not the one active at boot.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	strength := secret.Validate(string(e.config.JWT.Secret))

	return SecurityReport{
		AccessTTL:             e.config.JWT.AccessTTL,
		RefreshTTL:            e.config.Token.RefreshTTL,
		SecretStrength:        strength.Strength,
		SecretScore:           strength.Score,
		RotationEnabled:       true,
		ReuseDetectionEnabled: true,
		RateLimitingActive:    e.limiter != nil,
		AutoBlacklistActive:   e.limiter != nil && e.config.RateLimit.AutoBlacklistThreshold > 0,
		AuditEnabled:          e.audit != nil,
		AuditPersisted:        e.ledger != nil,
		AuditRetention:        e.config.Audit.Retention,
		MetricsEnabled:        e.metrics.Enabled(),
	}
}
