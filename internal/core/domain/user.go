package domain

import (
	"strings"
	"time"
)

// User models an identity-managed account.
type User struct {
	ID              string    `json:"id"`
	UserName        string    `json:"username"`
	Email           string    `json:"email"`
	NormalizedEmail string    `json:"-"`
	PasswordHash    string    `json:"-"`
	Roles           []string  `json:"roles"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// HasRole reports whether the user carries the named role (case-insensitive).
func (u *User) HasRole(name string) bool {
	for _, r := range u.Roles {
		if strings.EqualFold(r, name) {
			return true
		}
	}
	return false
}

// NormalizeEmail returns the lookup key for an email address. Identity
// lookups are case-insensitive, so every store keys users on this value.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
