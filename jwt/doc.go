// Package jwt manages access-token issuance and verification using an HS256
// signing secret and strict validation semantics suitable for low-latency
// authentication paths.
package jwt
