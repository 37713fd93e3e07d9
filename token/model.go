package token

import (
	"encoding/json"
	"time"
)

// Revocation reasons recorded on a [RefreshToken]. Only ReasonRotated and
// ReasonReuseDetected participate in reuse detection; other reasons describe
// ordinary lifecycle events.
const (
	ReasonRotated       = "rotated"
	ReasonReuseDetected = "reuse_detected"
	ReasonLogout        = "logout"
	ReasonAdminRevoked  = "admin_revoked"
)

// RefreshToken is the persisted ledger record for one refresh token. The raw
// token value never appears here; TokenHash is its SHA-256 hex digest.
//
// ReplacesID and ReplacedByID link records into a rotation chain: each
// rotation revokes the old record and points it at its successor.
type RefreshToken struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	TokenHash string `json:"token_hash"`

	CreatedAt  int64 `json:"created_at"`
	ExpiresAt  int64 `json:"expires_at"`
	LastUsedAt int64 `json:"last_used_at,omitempty"`

	Revoked       bool   `json:"revoked,omitempty"`
	RevokedAt     int64  `json:"revoked_at,omitempty"`
	RevokedReason string `json:"revoked_reason,omitempty"`

	ReplacesID   string `json:"replaces_id,omitempty"`
	ReplacedByID string `json:"replaced_by_id,omitempty"`

	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// Expired reports whether the record's natural lifetime has passed at t.
func (r *RefreshToken) Expired(t time.Time) bool {
	return r.ExpiresAt <= t.Unix()
}

// Encode serializes a record to its stored JSON form.
func Encode(rec *RefreshToken) ([]byte, error) {
	return json.Marshal(rec)
}

// Decode parses a stored JSON blob back into a record.
func Decode(data []byte) (*RefreshToken, error) {
	var rec RefreshToken
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
