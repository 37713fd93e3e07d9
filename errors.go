package authcore

import "errors"

var (
	// ErrInvalidToken covers unknown, expired, malformed, and revoked tokens.
	// Callers receive the same error for all four so responses do not leak
	// which case occurred.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenReuseDetected is returned when a revoked refresh token that was
	// already rotated is presented again. The whole rotation chain is revoked
	// before this error is returned.
	ErrTokenReuseDetected = errors.New("token reuse detected")
	// ErrRateLimited is returned when a request exceeds its category budget
	// or the identifier is blocked or blacklisted.
	ErrRateLimited = errors.New("rate limited")
	// ErrPermissionDenied is returned when the caller's role rank is below
	// the required rank, or the account cannot act (inactive, unverified).
	ErrPermissionDenied = errors.New("permission denied")
	// ErrSecurityViolation is returned for integrity failures: a token role
	// that outranks the stored role, or an account lookup failure during
	// authorization. Authorization fails closed on this error.
	ErrSecurityViolation = errors.New("security violation")
	// ErrSecretValidationFailed is returned by Build when the signing secret
	// fails strength validation. The engine refuses to boot on a weak secret.
	ErrSecretValidationFailed = errors.New("secret validation failed")
	// ErrAccountNotFound is returned by AccountProvider implementations when
	// no account exists for the given ID.
	ErrAccountNotFound = errors.New("account not found")
	// ErrStoreUnavailable wraps Redis transport failures surfaced through
	// engine operations.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrEngineNotReady is returned when an operation is invoked on a nil or
	// unbuilt engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// SecurityViolationError carries the reason recorded in the audit ledger for
// a fail-closed authorization denial. It unwraps to [ErrSecurityViolation].
type SecurityViolationError struct {
	Reason string
}

func (e *SecurityViolationError) Error() string {
	return "security violation: " + e.Reason
}

func (e *SecurityViolationError) Unwrap() error {
	return ErrSecurityViolation
}
