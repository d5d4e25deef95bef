package model

import "time"

// Zone is the pricing tier a machine belongs to.
type Zone string

const (
	ZoneStandard Zone = "STANDARD"
	ZonePremium  Zone = "PREMIUM"
	ZoneVIP      Zone = "VIP"
	ZoneSuperVIP Zone = "SUPERVIP"
	ZoneSolo     Zone = "SOLO"
)

// Valid reports whether z is one of the known pricing zones.
func (z Zone) Valid() bool {
	switch z {
	case ZoneStandard, ZonePremium, ZoneVIP, ZoneSuperVIP, ZoneSolo:
		return true
	}
	return false
}

// MachineStatus is the availability state of a machine.
//
// Only the session manager flips available <-> busy; offline is an explicit
// operator action and is never touched automatically.
type MachineStatus string

const (
	MachineAvailable MachineStatus = "available"
	MachineBusy      MachineStatus = "busy"
	MachineOffline   MachineStatus = "offline"
)

// Machine represents a rentable machine on the venue floor.
type Machine struct {
	ID        int64         `gorm:"primaryKey" json:"id"`
	Name      string        `gorm:"uniqueIndex;size:50;not null" json:"name"`
	Zone      Zone          `gorm:"size:20;not null;default:STANDARD" json:"zone"`
	Status    MachineStatus `gorm:"size:20;not null;default:available" json:"status"`
	Watt      int           `gorm:"not null;default:450" json:"watt"`
	CreatedAt time.Time     `json:"-"`
	UpdatedAt time.Time     `json:"-"`
}
