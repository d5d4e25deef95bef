package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Session is one billed interval of machine use.
//
// A session is Active while EndedAt is nil and Closed once it is set.
// BilledMinutes and Amount are written exactly once, at close, and never
// change afterwards. AutoEndAt only grows (via extension), never shrinks.
type Session struct {
	ID        int64 `gorm:"primaryKey" json:"id"`
	UserID    int64 `gorm:"index;not null" json:"user_id"`
	MachineID int64 `gorm:"index;not null" json:"machine_id"`

	StartedAt time.Time  `gorm:"not null" json:"started_at"`
	EndedAt   *time.Time `gorm:"index" json:"ended_at"`

	// Purchased package, in minutes. Grows only via Extend.
	PaidMinutes int `gorm:"not null;default:60" json:"paid_minutes"`

	// When the session must be force-closed if not stopped manually.
	AutoEndAt *time.Time `gorm:"index" json:"auto_end_at"`

	BilledMinutes *int            `json:"billed_minutes"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"amount"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// Active reports whether the session has not been closed yet.
func (s *Session) Active() bool {
	return s.EndedAt == nil
}
