// Package internal contains helper utilities that are intentionally private
// to authcore, including secure random generation for refresh-token secrets.
//
// # Sub-packages
//
//   - audit — event model, sinks, async dispatcher, and the Redis ledger
//   - ratelimit — Redis-backed fixed-window limiter with backoff and blacklists
//
// # What this package must NOT do
//
//   - Export types that appear in the public authcore API.
//   - Be imported by any package outside the authcore module.
package internal
