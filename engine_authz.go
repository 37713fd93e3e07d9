package authcore

import (
	"context"
	"errors"
	"fmt"
)

// Authorize is the route guard. It re-fetches the account on every check
// and decides from live state, never from token claims alone:
//
//   - account lookup failure fails closed with [ErrSecurityViolation]
//   - inactive accounts are denied as a security violation
//   - sensitive routes additionally require a verified email; an unverified
//     one is a security violation
//   - a token role that outranks the stored role is treated as tampering
//   - otherwise the stored role's rank is compared against RequiredRole; an
//     empty RequiredRole imposes no rank requirement, but the account state
//     checks above still apply
//
// Every denial is recorded in the audit ledger with the reason as the
// action name.
func (e *Engine) Authorize(ctx context.Context, rc RequestContext) (*AuthResult, error) {
	if e == nil || e.accounts == nil {
		return nil, ErrEngineNotReady
	}

	account, err := e.accounts.GetAccountByID(ctx, rc.UserID)
	if err != nil {
		e.metricInc(MetricAuthzDenied)
		if errors.Is(err, ErrAccountNotFound) {
			e.emitAudit(ctx, auditEventPermissionDenied, false, rc.UserID, rc.TokenRole, ErrAccountNotFound, func() map[string]string {
				return authzMetadata(rc, "")
			})
			return nil, ErrPermissionDenied
		}
		violation := &SecurityViolationError{Reason: auditEventAuthDatabaseError}
		e.emitAudit(ctx, auditEventAuthDatabaseError, false, rc.UserID, rc.TokenRole, violation, func() map[string]string {
			meta := authzMetadata(rc, "")
			meta["lookup_error"] = err.Error()
			return meta
		})
		return nil, violation
	}

	if !account.Active {
		violation := &SecurityViolationError{Reason: auditEventInactiveAccess}
		e.metricInc(MetricAuthzDenied)
		e.emitAudit(ctx, auditEventInactiveAccess, false, account.UserID, account.Role, violation, func() map[string]string {
			return authzMetadata(rc, account.Role)
		})
		return nil, violation
	}

	if rc.Sensitive && !account.EmailVerified {
		violation := &SecurityViolationError{Reason: auditEventUnverifiedAccess}
		e.metricInc(MetricAuthzDenied)
		e.emitAudit(ctx, auditEventUnverifiedAccess, false, account.UserID, account.Role, violation, func() map[string]string {
			return authzMetadata(rc, account.Role)
		})
		return nil, violation
	}

	// A token claiming more privilege than the database grants means the
	// token is stale after a demotion, or forged. Either way the check
	// continues against the stored role, and the mismatch is recorded.
	if rc.TokenRole != "" && RoleRank(rc.TokenRole) > RoleRank(account.Role) {
		violation := &SecurityViolationError{Reason: auditEventRoleEscalation}
		e.metricInc(MetricAuthzDenied)
		e.emitAudit(ctx, auditEventRoleEscalation, false, account.UserID, account.Role, violation, func() map[string]string {
			meta := authzMetadata(rc, account.Role)
			meta["token_role"] = rc.TokenRole
			meta["db_role"] = account.Role
			return meta
		})
		return nil, violation
	}

	if rc.RequiredRole != "" && !RoleAtLeast(account.Role, rc.RequiredRole) {
		e.metricInc(MetricAuthzDenied)
		e.emitAudit(ctx, auditEventPermissionDenied, false, account.UserID, account.Role, ErrPermissionDenied, func() map[string]string {
			return authzMetadata(rc, account.Role)
		})
		return nil, fmt.Errorf("%w: role %q requires %q", ErrPermissionDenied, account.Role, rc.RequiredRole)
	}

	e.metricInc(MetricAuthzAllowed)
	return &AuthResult{
		UserID: account.UserID,
		Role:   account.Role,
	}, nil
}

func authzMetadata(rc RequestContext, dbRole string) map[string]string {
	meta := map[string]string{
		"required_role": rc.RequiredRole,
	}
	if rc.Resource != "" {
		meta["resource"] = rc.Resource
	}
	if rc.Sensitive {
		meta["sensitive"] = "true"
	}
	if dbRole != "" {
		meta["db_role"] = dbRole
	}
	return meta
}
