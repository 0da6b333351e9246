package domain

import (
	"strings"
	"time"
)

const (
	RoleManager = "Manager"
	RoleAdmin   = "Admin"
	RoleUser    = "User"
)

// DefaultRoles is the role set that must exist after every successful startup.
var DefaultRoles = []string{RoleManager, RoleAdmin, RoleUser}

// Role is a named permission group. Names are unique ignoring case.
type Role struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	NormalizedName string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// NormalizeRoleName returns the uniqueness key for a role name.
func NormalizeRoleName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
