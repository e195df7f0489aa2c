package models

import "time"

// TokenState is the lifecycle state of a refresh token record. It is derived
// from the record's fields and the current time, never stored.
type TokenState string

const (
	TokenActive  TokenState = "ACTIVE"
	TokenRotated TokenState = "ROTATED"
	TokenRevoked TokenState = "REVOKED"
	TokenExpired TokenState = "EXPIRED"
)

// TokenRecord is one issued refresh token. Only the salted hash of the raw
// secret is kept.
//
// ReplacedByTokenID and RevokedAt are set at most once; FamilyID never
// changes after creation.
type TokenRecord struct {
	ID                string     `json:"id"`
	UserID            string     `json:"userId"`
	TokenHash         string     `json:"tokenHash"`
	FamilyID          string     `json:"familyId"`
	PrevTokenID       string     `json:"prevTokenId,omitempty"`
	IssuedAt          time.Time  `json:"issuedAt"`
	ExpiresAt         time.Time  `json:"expiresAt"`
	RevokedAt         *time.Time `json:"revokedAt,omitempty"`
	ReplacedByTokenID string     `json:"replacedByTokenId,omitempty"`
	LastUsedAt        *time.Time `json:"lastUsedAt,omitempty"`
}

func (r *TokenRecord) IsExpired(now time.Time) bool {
	return r.ExpiresAt.Before(now)
}

func (r *TokenRecord) IsRevoked() bool {
	return r.RevokedAt != nil
}

func (r *TokenRecord) IsReplaced() bool {
	return r.ReplacedByTokenID != ""
}

// IsActive reports whether the record is neither revoked nor expired. A
// rotated record is still "active" in this sense; presenting it is a replay.
func (r *TokenRecord) IsActive(now time.Time) bool {
	return !r.IsRevoked() && !r.IsExpired(now)
}

func (r *TokenRecord) State(now time.Time) TokenState {
	switch {
	case r.IsRevoked():
		return TokenRevoked
	case r.IsReplaced():
		return TokenRotated
	case r.IsExpired(now):
		return TokenExpired
	default:
		return TokenActive
	}
}

// Revoke stamps RevokedAt unless it is already set. It reports whether the
// record changed.
func (r *TokenRecord) Revoke(now time.Time) bool {
	if r.RevokedAt != nil {
		return false
	}
	t := now
	r.RevokedAt = &t
	return true
}

// MarkReplaced records the successor unless one is already recorded.
func (r *TokenRecord) MarkReplaced(newTokenID string) bool {
	if r.ReplacedByTokenID != "" {
		return false
	}
	r.ReplacedByTokenID = newTokenID
	return true
}

func (r *TokenRecord) Touch(now time.Time) {
	t := now
	r.LastUsedAt = &t
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (r *TokenRecord) Clone() *TokenRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.RevokedAt != nil {
		t := *r.RevokedAt
		c.RevokedAt = &t
	}
	if r.LastUsedAt != nil {
		t := *r.LastUsedAt
		c.LastUsedAt = &t
	}
	return &c
}
