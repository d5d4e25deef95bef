package model

import "time"

// AuditLog records who did what. Rows are written best-effort; a failed
// write never fails the operation being logged.
type AuditLog struct {
	ID     int64  `gorm:"primaryKey" json:"id"`
	UserID *int64 `gorm:"index" json:"user_id"`
	Role   string `gorm:"size:30;not null;default:unknown" json:"role"`

	Action   string `gorm:"size:60;not null;index" json:"action"`
	Entity   string `gorm:"size:60;index" json:"entity,omitempty"`
	EntityID *int64 `gorm:"index" json:"entity_id,omitempty"`

	Details   string `gorm:"type:text" json:"details,omitempty"`
	IPAddress string `gorm:"size:64" json:"ip_address,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}
