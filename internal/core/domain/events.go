package domain

import "time"

// UserRegisteredEvent announces a newly created account.
type UserRegisteredEvent struct {
	EventID      string
	UserID       string
	Username     string
	Email        string
	RegisteredAt time.Time
	Metadata     map[string]any
}

// PasswordChangedEvent announces a password change or reset.
type PasswordChangedEvent struct {
	EventID       string
	UserID        string
	ChangedAt     time.Time
	ChangedBy     string
	TokensRevoked int
	Metadata      map[string]any
}

// ReplayDetectedEvent announces that a consumed refresh token was presented
// again and the owning chain was revoked.
type ReplayDetectedEvent struct {
	EventID      string
	UserID       string
	TokenID      string
	DetectedAt   time.Time
	LinksRevoked int
	IPAddress    *string
	Metadata     map[string]any
}

// UserDeactivatedEvent announces an administrative deactivation.
type UserDeactivatedEvent struct {
	EventID       string
	UserID        string
	DeactivatedBy string
	DeactivatedAt time.Time
	Metadata      map[string]any
}
