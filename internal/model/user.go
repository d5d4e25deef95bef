package model

import "time"

// Role is the access level attached to a user account.
type Role string

const (
	RoleUser     Role = "user"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

// IsStaff reports whether the role may manage machines, payments and reports.
func (r Role) IsStaff() bool {
	return r == RoleOperator || r == RoleAdmin
}

// User represents a registered customer or staff member.
type User struct {
	ID           int64  `gorm:"primaryKey" json:"id"`
	Email        string `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash string `gorm:"size:255;not null" json:"-"`
	Role         Role   `gorm:"size:30;not null;default:user" json:"role"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
