package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lexiconary/authcore/internal"
	internalaudit "github.com/lexiconary/authcore/internal/audit"
	"github.com/lexiconary/authcore/internal/ratelimit"
	"github.com/lexiconary/authcore/jwt"
	"github.com/lexiconary/authcore/token"
)

// Engine is the security core. It owns the refresh-token ledger, the access
// token signer, the adaptive rate limiter, the audit pipeline, and the
// authorization guard. Construct it through [New] and [Builder.Build]; the
// zero value is not usable.
//
// All methods are safe for concurrent use.
type Engine struct {
	config   Config
	accounts AccountProvider

	tokens  *token.Store
	limiter *ratelimit.Limiter
	ledger  *internalaudit.Store

	audit   *internalaudit.Dispatcher
	metrics *Metrics
	jwt     *jwt.Manager

	maintStop chan struct{}
	maintDone chan struct{}
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	if e == nil {
		return
	}
	e.metrics.Observe(id, d)
}

func wrapStore(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

/*
====================================
TOKEN PAIR LIFECYCLE
====================================
*/

// GenerateTokenPair mints an access token and a fresh refresh token for an
// authenticated user. The caller is responsible for having verified the
// user's credentials; role is stamped into the access token and recorded on
// the audit trail.
func (e *Engine) GenerateTokenPair(ctx context.Context, userID, role string) (*TokenPair, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	access, err := e.jwt.CreateAccess(userID, role)
	if err != nil {
		return nil, err
	}

	raw, rec, err := e.tokens.Create(ctx, token.CreateParams{
		UserID:    userID,
		TTL:       e.config.Token.RefreshTTL,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
	})
	if err != nil {
		if errors.Is(err, token.ErrRedisUnavailable) {
			return nil, wrapStore(err)
		}
		return nil, err
	}

	e.metricInc(MetricTokenIssued)
	e.emitAudit(ctx, auditEventTokenIssued, true, userID, role, nil, func() map[string]string {
		return map[string]string{"token_id": rec.ID}
	})

	now := time.Now()
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     raw,
		RefreshTokenID:   rec.ID,
		AccessExpiresAt:  now.Add(e.jwt.AccessTTL()),
		RefreshExpiresAt: time.Unix(rec.ExpiresAt, 0),
	}, nil
}

// RefreshTokens exchanges a valid refresh token for a new token pair,
// rotating the refresh token in the process. The old token is revoked and
// linked to its successor; presenting it again triggers the reuse cascade.
//
// The account is re-fetched so the new access token always carries the
// current role, not the role at issuance time.
func (e *Engine) RefreshTokens(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	if e.limiter != nil {
		if ip := clientIPFromContext(ctx); ip != "" {
			identifier := "ip:" + ip
			result, err := e.limiter.Check(ctx, identifier, ratelimit.CategoryAuth)
			if err != nil {
				return nil, wrapStore(err)
			}
			if !result.Allowed {
				e.metricInc(MetricRefreshRateLimited)
				e.emitRateLimit(ctx, RateAuth, identifier, result)
				return nil, fmt.Errorf("%w: retry after %s", ErrRateLimited, result.RetryAfter)
			}
		}
	}

	rec, err := e.tokens.FindByHash(ctx, internal.HashRefreshSecret(refreshToken))
	if err != nil {
		if errors.Is(err, token.ErrTokenNotFound) {
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", ErrInvalidToken, nil)
			return nil, ErrInvalidToken
		}
		return nil, wrapStore(err)
	}

	if rec.Revoked {
		switch rec.RevokedReason {
		case token.ReasonRotated, token.ReasonReuseDetected:
			return nil, e.handleReuse(ctx, rec)
		default:
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, rec.UserID, "", ErrInvalidToken, func() map[string]string {
				return map[string]string{"token_id": rec.ID, "revoked_reason": rec.RevokedReason}
			})
			return nil, ErrInvalidToken
		}
	}

	if rec.Expired(time.Now()) {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, rec.UserID, "", ErrInvalidToken, func() map[string]string {
			return map[string]string{"token_id": rec.ID, "reason": "expired"}
		})
		return nil, ErrInvalidToken
	}

	account, err := e.accounts.GetAccountByID(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, rec.UserID, "", ErrAccountNotFound, nil)
			return nil, ErrInvalidToken
		}
		e.emitAudit(ctx, auditEventAuthDatabaseError, false, rec.UserID, "", ErrStoreUnavailable, nil)
		return nil, wrapStore(err)
	}
	if !account.Active {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventInactiveAccess, false, rec.UserID, account.Role, ErrInvalidToken, nil)
		return nil, ErrInvalidToken
	}

	nextRaw, next, err := e.tokens.Rotate(ctx, rec, token.CreateParams{
		UserID:    rec.UserID,
		TTL:       e.config.Token.RefreshTTL,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
	})
	if err != nil {
		if errors.Is(err, token.ErrRotateConflict) {
			// Lost a concurrent rotation race: the record was rotated under
			// us, which is indistinguishable from replay. Re-read and run
			// the reuse cascade.
			current, readErr := e.tokens.FindByID(ctx, rec.ID)
			if readErr == nil && current.Revoked {
				return nil, e.handleReuse(ctx, current)
			}
			e.metricInc(MetricRefreshFailure)
			return nil, ErrInvalidToken
		}
		if errors.Is(err, token.ErrTokenNotFound) || errors.Is(err, token.ErrTokenExpired) {
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, rec.UserID, "", ErrInvalidToken, nil)
			return nil, ErrInvalidToken
		}
		return nil, wrapStore(err)
	}

	access, err := e.jwt.CreateAccess(account.UserID, account.Role)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventTokenRefresh, true, account.UserID, account.Role, nil, func() map[string]string {
		return map[string]string{
			"old_token_id": rec.ID,
			"new_token_id": next.ID,
		}
	})

	now := time.Now()
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     nextRaw,
		RefreshTokenID:   next.ID,
		AccessExpiresAt:  now.Add(e.jwt.AccessTTL()),
		RefreshExpiresAt: time.Unix(next.ExpiresAt, 0),
	}, nil
}

// handleReuse is the theft-response cascade: a rotated token came back, so
// every token in its rotation chain is revoked and a critical event is
// recorded. Always returns [ErrTokenReuseDetected].
func (e *Engine) handleReuse(ctx context.Context, rec *token.RefreshToken) error {
	chain, err := e.tokens.ChainIDs(ctx, rec.ID)
	if err != nil {
		chain = []string{rec.ID}
	}

	revoked := 0
	for _, id := range chain {
		if err := e.tokens.RevokeByID(ctx, id, token.ReasonReuseDetected); err == nil {
			revoked++
		}
	}

	e.metricInc(MetricReuseDetected)
	e.emitAudit(ctx, auditEventTokenReuseDetected, false, rec.UserID, "", ErrTokenReuseDetected, func() map[string]string {
		return map[string]string{
			"token_id":       rec.ID,
			"chain_length":   fmt.Sprintf("%d", len(chain)),
			"revoked_count":  fmt.Sprintf("%d", revoked),
			"revoked_reason": rec.RevokedReason,
		}
	})

	return ErrTokenReuseDetected
}

/*
====================================
ACCESS TOKEN VALIDATION
====================================
*/

// ValidateAccess verifies an access token's signature and claims and returns
// the embedded identity. It never touches Redis.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*AuthResult, error) {
	if e == nil || e.jwt == nil {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	claims, err := e.jwt.ParseAccess(accessToken)
	e.metricObserve(MetricValidateLatency, time.Since(start))

	if err != nil {
		e.metricInc(MetricValidateFailure)
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	e.metricInc(MetricValidateSuccess)
	return &AuthResult{
		UserID: claims.Subject,
		Role:   claims.Role,
	}, nil
}

/*
====================================
REVOCATION
====================================
*/

// Logout revokes the presented refresh token. Unknown tokens are reported
// as [ErrInvalidToken]; revoking an already-revoked token is a no-op.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil || e.tokens == nil {
		return ErrEngineNotReady
	}

	rec, err := e.tokens.FindByHash(ctx, internal.HashRefreshSecret(refreshToken))
	if err != nil {
		if errors.Is(err, token.ErrTokenNotFound) {
			return ErrInvalidToken
		}
		return wrapStore(err)
	}

	if err := e.tokens.RevokeByID(ctx, rec.ID, token.ReasonLogout); err != nil {
		return wrapStore(err)
	}

	e.metricInc(MetricTokenRevoked)
	e.emitAudit(ctx, auditEventLogout, true, rec.UserID, "", nil, func() map[string]string {
		return map[string]string{"token_id": rec.ID}
	})
	return nil
}

// RevokeTokenByID revokes a single refresh token by ledger ID, for admin
// tooling. The operation is idempotent.
func (e *Engine) RevokeTokenByID(ctx context.Context, tokenID string) error {
	if e == nil || e.tokens == nil {
		return ErrEngineNotReady
	}

	if err := e.tokens.RevokeByID(ctx, tokenID, token.ReasonAdminRevoked); err != nil {
		if errors.Is(err, token.ErrTokenNotFound) {
			return ErrInvalidToken
		}
		return wrapStore(err)
	}

	e.metricInc(MetricTokenRevoked)
	e.emitAudit(ctx, auditEventTokenRevoked, true, "", "", nil, func() map[string]string {
		return map[string]string{"token_id": tokenID}
	})
	return nil
}

// RevokeAllForUser revokes every live refresh token belonging to a user and
// returns how many were revoked.
func (e *Engine) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	if e == nil || e.tokens == nil {
		return 0, ErrEngineNotReady
	}

	count, err := e.tokens.RevokeAllForUser(ctx, userID, token.ReasonAdminRevoked)
	if err != nil {
		return 0, wrapStore(err)
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, "", nil, func() map[string]string {
		return map[string]string{"revoked_count": fmt.Sprintf("%d", count)}
	})
	return count, nil
}

/*
====================================
AUDIT LEDGER ACCESS
====================================
*/

// QueryAudit reads the persisted audit ledger. It returns matching events
// newest-first plus the total match count before pagination. Requires
// Audit.Persist; otherwise [ErrEngineNotReady].
func (e *Engine) QueryAudit(ctx context.Context, filter AuditFilter) ([]AuditEvent, int, error) {
	if e == nil || e.ledger == nil {
		return nil, 0, ErrEngineNotReady
	}
	return e.ledger.Query(ctx, filter)
}

// AuditTotals returns lifetime per-action and per-severity counts. The
// aggregates survive event retention expiry.
func (e *Engine) AuditTotals(ctx context.Context) (AuditCounts, error) {
	if e == nil || e.ledger == nil {
		return AuditCounts{}, ErrEngineNotReady
	}
	return e.ledger.TotalCounts(ctx)
}

/*
====================================
MAINTENANCE
====================================
*/

// CleanupExpiredTokens prunes stale ledger index entries for one user.
func (e *Engine) CleanupExpiredTokens(ctx context.Context, userID string) (int, error) {
	if e == nil || e.tokens == nil {
		return 0, ErrEngineNotReady
	}
	n, err := e.tokens.CleanupExpired(ctx, userID)
	if err != nil {
		return 0, wrapStore(err)
	}
	return n, nil
}

// CleanupAuditIndex prunes audit index entries whose events have aged out.
func (e *Engine) CleanupAuditIndex(ctx context.Context) (int, error) {
	if e == nil || e.ledger == nil {
		return 0, ErrEngineNotReady
	}
	n, err := e.ledger.CleanupExpired(ctx)
	if err != nil {
		return 0, wrapStore(err)
	}
	return n, nil
}

// SweepRateLimits removes rate-limit keys left without a TTL. Permanent
// blacklist entries are preserved.
func (e *Engine) SweepRateLimits(ctx context.Context) (int, error) {
	if e == nil || e.limiter == nil {
		return 0, ErrEngineNotReady
	}
	n, err := e.limiter.Sweep(ctx)
	if err != nil {
		return 0, wrapStore(err)
	}
	return n, nil
}

// Ping verifies the Redis backend is reachable and returns the round trip.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if e == nil || e.tokens == nil {
		return 0, ErrEngineNotReady
	}
	return e.tokens.Ping(ctx)
}

/*
====================================
OBSERVABILITY
====================================
*/

// MetricsSnapshot returns a point-in-time copy of all counters and
// histograms.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// AuditDropped reports how many audit events were discarded because the
// dispatch buffer was full. Critical events are never dropped.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Close stops the maintenance loop and drains the audit dispatcher. The
// engine must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.stopMaintenance()
	e.audit.Close()
}
