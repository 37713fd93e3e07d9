// Package authcore provides the security core for a user-facing content
// platform: JWT access tokens backed by rotating opaque refresh tokens with
// reuse detection, adaptive Redis-backed rate limiting with auto-blacklist,
// signing-secret strength validation, a persisted security audit ledger, and
// role-hierarchy authorization.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (TokenPair, AuthResult, MetricsSnapshot, etc.). Internal
// coordination — rate-limit bookkeeping, audit dispatch and persistence —
// lives under internal/ and is never exported directly; the leaf packages
// jwt, token, and secret are importable on their own.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or storage layouts in its
//     public API.
//   - Trust role claims from tokens for authorization decisions; the
//     account database is re-read on every check.
//   - Boot with a signing secret that fails strength validation.
//
// # Performance contract
//
// ValidateAccess is the hot path. It completes without Redis round-trips;
// signature verification and claim checks only. RefreshTokens performs a
// constant number of Redis operations, with rotation committed atomically
// in a single Lua script.
package authcore
