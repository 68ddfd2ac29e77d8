package models

import (
	"strings"
	"time"
)

// Role is the closed capability tag carried in tokens.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole normalizes a role claim; anything unknown is a plain user.
func ParseRole(value string) Role {
	if Role(strings.ToLower(strings.TrimSpace(value))) == RoleAdmin {
		return RoleAdmin
	}
	return RoleUser
}

// User mirrors the identity of the external auth provider for listings.
type User struct {
	ID          string    `gorm:"size:64;primaryKey" json:"id"`
	Username    string    `gorm:"size:128;index" json:"username"`
	DisplayName string    `gorm:"size:255" json:"display_name"`
	Role        Role      `gorm:"size:16;not null;default:user" json:"role"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
