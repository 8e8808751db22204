package domain

import "time"

// Role enumerates the authority levels recognised by the marketplace.
type Role string

const (
	RoleUser      Role = "USER"
	RoleModerator Role = "MODERATOR"
	RoleAdmin     Role = "ADMIN"
)

// Valid reports whether the role is one of the recognised values.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModerator, RoleAdmin:
		return true
	}
	return false
}

// User is the marketplace identity record.
type User struct {
	ID                 string
	Username           string
	Email              string
	PasswordHash       string
	RecoveryQuestion   string
	RecoveryAnswerHash string
	Role               Role
	IsActive           bool
	EmailVerifiedAt    *time.Time
	LastLoginAt        *time.Time
	CreatedAt          time.Time
}

// IsEmailVerified reports whether the user completed email verification.
func (u User) IsEmailVerified() bool {
	return u.EmailVerifiedAt != nil
}

// Sanitized returns a copy safe to hand to transport layers.
func (u User) Sanitized() User {
	copied := u
	copied.PasswordHash = ""
	copied.RecoveryAnswerHash = ""
	return copied
}
