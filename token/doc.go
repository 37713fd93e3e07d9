// Package token provides the Redis-backed refresh-token ledger: persistence,
// expiration, atomic rotation, and revocation chains.
//
// # Storage layout
//
// Each token is a JSON record keyed by ID with a TTL equal to its remaining
// lifetime. A hash index maps the SHA-256 digest of the raw token to its ID,
// and a per-user set tracks the IDs issued to each user. Raw token values are
// never stored.
//
// # Rotation
//
// Rotate replaces a token with its successor in a single Lua script: the old
// record blob is compare-and-swapped to its revoked form while the successor
// record and hash index are written. A CAS mismatch means a concurrent
// rotation won; the caller re-reads the record and lands on the reuse path.
//
// # Architecture boundaries
//
// This package owns persistence only. It does NOT mint access tokens, decide
// when reuse has occurred, or emit audit events — those responsibilities
// belong to the Engine.
package token
