package domain

import "time"

// RefreshToken is one link in a per-session token chain. The plaintext value
// is never stored; rows reference each other by token hash via PrevTokenHash.
type RefreshToken struct {
	ID            string
	UserID        string
	TokenHash     string
	PrevTokenHash *string
	IP            *string
	UserAgent     *string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	ConsumedAt    *time.Time
	RevokedAt     *time.Time
}

// IsExpired reports whether the token has elapsed its validity window.
func (t RefreshToken) IsExpired(at time.Time) bool {
	return !t.ExpiresAt.After(at)
}

// IsRevoked reports whether the token has been explicitly revoked.
func (t RefreshToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

// IsConsumed reports whether the token was already rotated away.
func (t RefreshToken) IsConsumed() bool {
	return t.ConsumedAt != nil
}

// IsActive returns true when the token can still be presented for rotation.
func (t RefreshToken) IsActive(at time.Time) bool {
	if t.IsRevoked() || t.IsConsumed() {
		return false
	}
	return !t.IsExpired(at)
}

// Consume records the moment the token was exchanged for its successor.
// Returns true if the token transitioned from unconsumed to consumed.
func (t *RefreshToken) Consume(at time.Time) bool {
	if t.ConsumedAt != nil {
		return false
	}
	timeCopy := at
	t.ConsumedAt = &timeCopy
	return true
}

// Revoke marks the token as revoked.
// Returns true if the token transitioned to the revoked state.
func (t *RefreshToken) Revoke(at time.Time) bool {
	if t.RevokedAt != nil {
		return false
	}
	timeCopy := at
	t.RevokedAt = &timeCopy
	return true
}

// TokenPurpose distinguishes the single-use token flows.
type TokenPurpose string

const (
	PurposeEmailVerify   TokenPurpose = "EMAIL_VERIFY"
	PurposePasswordReset TokenPurpose = "PASSWORD_RESET"
)

// OneTimeToken is a single-use credential for email verification or password
// reset. Unlike refresh tokens these are never chained.
type OneTimeToken struct {
	ID         string
	UserID     string
	TokenHash  string
	Purpose    TokenPurpose
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}

// IsExpired reports whether the token can still be redeemed.
func (t OneTimeToken) IsExpired(at time.Time) bool {
	return !t.ExpiresAt.After(at)
}

// Consume marks the token as used.
// Returns true when the token transitions from unused to used.
func (t *OneTimeToken) Consume(at time.Time) bool {
	if t.ConsumedAt != nil {
		return false
	}
	timeCopy := at
	t.ConsumedAt = &timeCopy
	return true
}
