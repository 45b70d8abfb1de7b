package auth

import (
	"strings"
	"time"
)

// Role is the closed set of account roles. A user's role is fixed at
// registration; there is no re-role flow.
type Role string

const (
	RoleDonor     Role = "donor"
	RoleVolunteer Role = "volunteer"
	RoleShelter   Role = "shelter"
	RoleRecipient Role = "recipient"
	RoleAdmin     Role = "admin"
)

// ParseRole normalizes and validates a role string.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.TrimSpace(strings.ToLower(s))) {
	case RoleDonor:
		return RoleDonor, true
	case RoleVolunteer:
		return RoleVolunteer, true
	case RoleShelter:
		return RoleShelter, true
	case RoleRecipient:
		return RoleRecipient, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return "", false
	}
}

// HasProfile reports whether registration creates a role-specific profile row
// for this role. Recipients and admins live in the users table only.
func (r Role) HasProfile() bool {
	return r == RoleDonor || r == RoleVolunteer || r == RoleShelter
}

// User is an account row.
type User struct {
	ID           string    `json:"user_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// RefreshToken is the persisted server-side half of a refresh credential.
// Only a bcrypt hash of the signed token is stored; several records may
// coexist per user (one per device). ExpiresAt is persisted but not checked
// during rotation: the signed token carries its own enforced expiry.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenPair is the credential pair handed to clients.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
