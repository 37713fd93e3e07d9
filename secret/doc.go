// Package secret validates the strength of JWT signing secrets and generates
// replacement secrets that are guaranteed to pass validation.
//
// # Design
//
// Validation combines a hard-fail gate (length, Shannon entropy, known-weak
// deny-list) with an aggregate 0-100 score built from length, entropy, and
// character-class complexity, minus penalties for errors and pattern warnings.
// The Engine refuses to boot on a secret that fails the hard gate.
//
// # Architecture boundaries
//
// This package is pure computation plus crypto/rand. It performs no I/O and
// imports no sibling package; the root package and cmd/authcore-secrets are
// its only consumers.
package secret
