package entities

import (
	"time"

	"gorm.io/gorm"
)

type UserRole string

const (
	UserRoleReader    UserRole = "reader"
	UserRoleLibrarian UserRole = "librarian"
	UserRoleAdmin     UserRole = "admin"
)

// IsStaff reports whether the role may act on behalf of other users.
func (r UserRole) IsStaff() bool {
	return r == UserRoleLibrarian || r == UserRoleAdmin
}

// Valid reports whether r is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case UserRoleReader, UserRoleLibrarian, UserRoleAdmin:
		return true
	}
	return false
}

type User struct {
	ID           uint     `gorm:"primaryKey" json:"id"`
	Username     string   `gorm:"uniqueIndex;size:100" json:"username"`
	Email        string   `gorm:"index;size:255" json:"email"`
	FullName     string   `gorm:"size:255" json:"full_name,omitempty"`
	Role         UserRole `gorm:"size:20;default:'reader';index" json:"role"`
	Active       bool     `gorm:"default:true" json:"active"`
	PasswordHash string   `gorm:"size:255" json:"-"`

	// API token (only the SHA-256 hash is stored)
	TokenHash      string     `gorm:"index;size:64" json:"-"`
	TokenCreatedAt *time.Time `json:"-"`

	// Login bookkeeping
	LastLoginAt      *time.Time `json:"last_login_at,omitempty"`
	FailedLoginCount int        `gorm:"default:0" json:"-"`
	LockedUntil      *time.Time `json:"-"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string {
	return "users"
}
