// Package ratelimit provides Redis-backed adaptive rate limiting for
// security-sensitive request categories.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Exceeding a
// window increments a per-identifier violation counter and installs a block
// key whose TTL doubles with each violation, capped at the configured
// maximum. Repeated violations on IP-based identifiers trigger an automatic
// blacklist entry.
//
// Key prefixes:
//   - rl:c:  — per-identifier, per-category window counter
//   - rl:v:  — per-identifier violation counter
//   - rl:b:  — per-identifier block marker (TTL = backoff duration)
//   - rl:bl: — per-identifier blacklist marker
//
// # What this package must NOT do
//
//   - Emit audit events or metrics (the Engine observes Result values).
//   - Be imported outside the authcore module.
package ratelimit
