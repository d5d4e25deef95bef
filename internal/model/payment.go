package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod distinguishes front-desk cash sales from provider checkouts.
type PaymentMethod string

const (
	MethodCash   PaymentMethod = "cash"
	MethodOnline PaymentMethod = "online"
)

// PaymentStatus is the one-way settlement lattice of a payment.
type PaymentStatus string

const (
	PaymentCreated   PaymentStatus = "created"
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentCreated, PaymentPending, PaymentSucceeded, PaymentFailed:
		return true
	}
	return false
}

// Terminal reports whether no further status mutation is permitted.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentSucceeded || s == PaymentFailed
}

// Payment is a purchase of machine time, either settled in cash at the desk
// or through the online provider. A payment may reference the session it
// settles; sessions never reference payments.
type Payment struct {
	ID        int64  `gorm:"primaryKey" json:"id"`
	UserID    int64  `gorm:"index;not null" json:"user_id"`
	SessionID *int64 `gorm:"index" json:"session_id"`

	Method PaymentMethod `gorm:"size:20;not null" json:"method"`
	Status PaymentStatus `gorm:"size:20;not null;default:created" json:"status"`

	// Purchased package size, in hours.
	Hours  int             `gorm:"not null" json:"hours"`
	Amount decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`

	// Reference assigned by the payment provider, empty for cash.
	ProviderPaymentID string `gorm:"size:128;index" json:"provider_payment_id,omitempty"`

	Note string `gorm:"size:255" json:"note,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"-"`
}
