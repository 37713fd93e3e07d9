package authcore

import (
	"context"
	"fmt"
)

// CheckRateLimit consumes one request from the identifier's budget for the
// given category. When the budget is exhausted it returns [ErrRateLimited]
// together with the result carrying RetryAfter and the violation count.
//
// Identifiers follow the "kind:value" convention ("ip:203.0.113.7",
// "user:42"). Only "ip:" identifiers are ever auto-blacklisted.
func (e *Engine) CheckRateLimit(ctx context.Context, identifier string, category RateCategory) (RateLimitResult, error) {
	if e == nil || e.limiter == nil {
		return RateLimitResult{}, ErrEngineNotReady
	}

	result, err := e.limiter.Check(ctx, identifier, category)
	if err != nil {
		return RateLimitResult{}, wrapStore(err)
	}
	if !result.Allowed {
		e.emitRateLimit(ctx, category, identifier, result)
		if result.Violations >= e.config.RateLimit.AutoBlacklistThreshold && e.config.RateLimit.AutoBlacklistThreshold > 0 {
			e.noteAutoBlacklist(ctx, identifier, result)
		}
		return result, fmt.Errorf("%w: retry after %s", ErrRateLimited, result.RetryAfter)
	}
	return result, nil
}

// noteAutoBlacklist records the limiter's auto-blacklist decision. The
// limiter itself performs the blacklisting; this only observes it.
func (e *Engine) noteAutoBlacklist(ctx context.Context, identifier string, result RateLimitResult) {
	blacklisted, err := e.limiter.IsBlacklisted(ctx, identifier)
	if err != nil || !blacklisted {
		return
	}
	e.metricInc(MetricAutoBlacklist)
	e.emitAudit(ctx, auditEventAutoBlacklist, false, "", "", ErrRateLimited, func() map[string]string {
		return map[string]string{
			"identifier": identifier,
			"violations": fmt.Sprintf("%d", result.Violations),
		}
	})
}

// Blacklist denies all requests from an identifier for the configured
// blacklist TTL (permanently when the TTL is zero).
func (e *Engine) Blacklist(ctx context.Context, identifier string) error {
	if e == nil || e.limiter == nil {
		return ErrEngineNotReady
	}
	if err := e.limiter.Blacklist(ctx, identifier); err != nil {
		return wrapStore(err)
	}
	return nil
}

// Unblacklist removes an identifier's blacklist entry along with its block
// marker and violation counter, giving it a clean slate.
func (e *Engine) Unblacklist(ctx context.Context, identifier string) error {
	if e == nil || e.limiter == nil {
		return ErrEngineNotReady
	}
	if err := e.limiter.Unblacklist(ctx, identifier); err != nil {
		return wrapStore(err)
	}
	return nil
}

// IsBlacklisted reports whether an identifier is currently blacklisted.
func (e *Engine) IsBlacklisted(ctx context.Context, identifier string) (bool, error) {
	if e == nil || e.limiter == nil {
		return false, ErrEngineNotReady
	}
	blacklisted, err := e.limiter.IsBlacklisted(ctx, identifier)
	if err != nil {
		return false, wrapStore(err)
	}
	return blacklisted, nil
}

// RateLimitViolations returns the identifier's current violation count.
func (e *Engine) RateLimitViolations(ctx context.Context, identifier string) (int, error) {
	if e == nil || e.limiter == nil {
		return 0, ErrEngineNotReady
	}
	count, err := e.limiter.Violations(ctx, identifier)
	if err != nil {
		return 0, wrapStore(err)
	}
	return count, nil
}

// ResetRateLimit clears the identifier's window counter for one category.
// Blocks, violations, and blacklist entries are untouched.
func (e *Engine) ResetRateLimit(ctx context.Context, identifier string, category RateCategory) error {
	if e == nil || e.limiter == nil {
		return ErrEngineNotReady
	}
	if err := e.limiter.Reset(ctx, identifier, category); err != nil {
		return wrapStore(err)
	}
	return nil
}
