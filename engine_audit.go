package authcore

import (
	"context"
	"errors"
	"strconv"
	"time"
)

const (
	auditEventTokenIssued        = "token_issued"
	auditEventTokenRefresh       = "token_refresh"
	auditEventRefreshInvalid     = "refresh_invalid"
	auditEventRefreshRateLimited = "refresh_rate_limited"
	auditEventTokenReuseDetected = "token_reuse_detected"
	auditEventTokenRevoked       = "token_revoked"
	auditEventLogout             = "logout"
	auditEventLogoutAll          = "logout_all"
	auditEventRateLimitTriggered = "rate_limit_triggered"
	auditEventAutoBlacklist      = "auto_blacklist"
	auditEventAccessGranted      = "access_granted"
	auditEventPermissionDenied   = "permission_denied"
	auditEventInactiveAccess     = "inactive_user_access"
	auditEventUnverifiedAccess   = "unverified_email_access"
	auditEventRoleEscalation     = "role_escalation_attempt"
	auditEventAuthDatabaseError  = "database_error_during_auth"
)

// severityFor classifies audit actions. Unknown actions default to low so
// new event names never silently become critical.
func severityFor(action string) AuditSeverity {
	switch action {
	case auditEventTokenReuseDetected,
		auditEventRoleEscalation,
		auditEventAutoBlacklist,
		"role_change",
		"account_delete",
		"system_config_change":
		return SeverityCritical
	case auditEventAuthDatabaseError,
		auditEventInactiveAccess,
		"admin_access",
		"account_create",
		"account_update",
		"content_delete":
		return SeverityHigh
	case auditEventTokenIssued,
		auditEventTokenRefresh,
		auditEventRefreshInvalid,
		auditEventRefreshRateLimited,
		auditEventTokenRevoked,
		auditEventLogout,
		auditEventLogoutAll,
		auditEventRateLimitTriggered,
		auditEventPermissionDenied,
		auditEventUnverifiedAccess,
		"login",
		"password_reset",
		"content_create",
		"content_update":
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// AuditErrorCode is the stable error identifier recorded on audit events.
type AuditErrorCode string

const (
	auditErrInvalidToken     AuditErrorCode = "invalid_token"
	auditErrReuseDetected    AuditErrorCode = "reuse_detected"
	auditErrRateLimited      AuditErrorCode = "rate_limited"
	auditErrPermissionDenied AuditErrorCode = "permission_denied"
	auditErrSecurity         AuditErrorCode = "security_violation"
	auditErrAccountNotFound  AuditErrorCode = "account_not_found"
	auditErrUnavailable      AuditErrorCode = "backend_unavailable"
	auditErrInternal         AuditErrorCode = "internal_error"
)

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrTokenReuseDetected):
		return auditErrReuseDetected
	case errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrPermissionDenied):
		return auditErrPermissionDenied
	case errors.Is(err, ErrSecurityViolation):
		return auditErrSecurity
	case errors.Is(err, ErrAccountNotFound):
		return auditErrAccountNotFound
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}

// emitAudit records one security event. Metadata is ledger-only diagnostic
// detail: it is never folded into the error a caller receives, so transports
// cannot leak it.
func (e *Engine) emitAudit(
	ctx context.Context,
	action string,
	success bool,
	userID string,
	role string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		Action:    action,
		Severity:  severityFor(action),
		UserID:    userID,
		Role:      role,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(
	ctx context.Context,
	category RateCategory,
	identifier string,
	result RateLimitResult,
) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", "", ErrRateLimited, func() map[string]string {
		return map[string]string{
			"category":    string(category),
			"identifier":  identifier,
			"violations":  strconv.Itoa(result.Violations),
			"retry_after": result.RetryAfter.String(),
		}
	})
}
