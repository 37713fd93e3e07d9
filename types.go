package authcore

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/lexiconary/authcore/internal/audit"
	"github.com/lexiconary/authcore/internal/ratelimit"
)

/*
====================================
ROLES
====================================
*/

// Role names in ascending rank order. Authorization compares ranks, never
// names, so adding a role only requires a rank entry.
const (
	RoleUser        = "user"
	RoleContributor = "contributor"
	RoleAdmin       = "admin"
	RoleSuperAdmin  = "superadmin"
)

var roleRanks = map[string]int{
	RoleUser:        1,
	RoleContributor: 2,
	RoleAdmin:       3,
	RoleSuperAdmin:  4,
}

// RoleRank returns the numeric rank of a role name, or 0 for unknown roles.
// Unknown roles never satisfy any requirement.
func RoleRank(role string) int {
	return roleRanks[role]
}

// RoleAtLeast reports whether role meets or exceeds the required role's
// rank. An unknown role on either side reports false.
func RoleAtLeast(role, required string) bool {
	r, req := roleRanks[role], roleRanks[required]
	return r > 0 && req > 0 && r >= req
}

/*
====================================
ACCOUNTS
====================================
*/

// AccountRecord is the live account state fetched during token refresh and
// authorization. Role is always re-read from here, never trusted from a
// token claim.
type AccountRecord struct {
	UserID        string
	Username      string
	Role          string
	Active        bool
	EmailVerified bool
}

// AccountProvider is the interface callers implement to connect the engine
// to their user database. Lookups run on every refresh and every
// authorization check; implementations should be cache-friendly.
//
// A missing account must be reported as [ErrAccountNotFound]; any other
// error is treated as a backend failure and authorization fails closed.
type AccountProvider interface {
	GetAccountByID(ctx context.Context, userID string) (AccountRecord, error)
}

/*
====================================
TOKENS
====================================
*/

// TokenPair is returned by [Engine.GenerateTokenPair] and
// [Engine.RefreshTokens]. RefreshToken is the only copy of the raw refresh
// value; the ledger stores its hash.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	RefreshTokenID   string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// AuthResult is returned by [Engine.ValidateAccess] and [Engine.Authorize].
type AuthResult struct {
	UserID string
	Role   string
}

// RequestContext describes one authorization decision: who is asking (from
// a validated access token) and what the route requires.
type RequestContext struct {
	UserID       string
	TokenRole    string
	RequiredRole string
	Resource     string
	// Sensitive marks routes that additionally require a verified email.
	Sensitive bool
}

/*
====================================
RATE LIMITING
====================================
*/

// RateCategory selects a rate-limit budget.
type RateCategory = ratelimit.Category

const (
	// RateAuth covers login and token-refresh attempts.
	RateAuth = ratelimit.CategoryAuth
	// RateAPI covers general API traffic.
	RateAPI = ratelimit.CategoryAPI
	// RateSensitive covers password changes and similar operations.
	RateSensitive = ratelimit.CategorySensitive
	// RateUpload covers file submissions.
	RateUpload = ratelimit.CategoryUpload
)

// RateLimitResult reports the outcome of one budget check.
type RateLimitResult = ratelimit.Result

// RateLimitRule is one category budget: at most Max requests per Window.
type RateLimitRule = ratelimit.Rule

// DefaultRateLimitRules returns the built-in category budgets.
func DefaultRateLimitRules() map[RateCategory]RateLimitRule {
	return ratelimit.DefaultRules()
}

/*
====================================
AUDIT
====================================
*/

// AuditEvent is a structured security event emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSeverity classifies how security-relevant an audit event is.
type AuditSeverity = internalaudit.Severity

const (
	SeverityCritical = internalaudit.SeverityCritical
	SeverityHigh     = internalaudit.SeverityHigh
	SeverityMedium   = internalaudit.SeverityMedium
	SeverityLow      = internalaudit.SeverityLow
)

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer], one object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// AuditFilter narrows an audit ledger query.
type AuditFilter = internalaudit.Filter

// AuditCounts aggregates lifetime ledger totals per action and severity.
type AuditCounts = internalaudit.Counts

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
