package model

import "time"

// BookingStatus is the lifecycle state of a calendar booking.
type BookingStatus string

const (
	BookingActive    BookingStatus = "active"
	BookingCancelled BookingStatus = "cancelled"
)

// Booking reserves a machine for a future time slot. Bookings are plain
// calendar records; they do not interact with the session state machine.
type Booking struct {
	ID        int64 `gorm:"primaryKey" json:"id"`
	UserID    int64 `gorm:"index;not null" json:"user_id"`
	MachineID int64 `gorm:"index;not null" json:"machine_id"`

	StartAt time.Time `gorm:"not null" json:"start_at"`
	EndAt   time.Time `gorm:"not null" json:"end_at"`

	Status BookingStatus `gorm:"size:20;not null;default:active" json:"status"`
	Note   string        `gorm:"size:255" json:"note,omitempty"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}
