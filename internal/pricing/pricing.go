// Package pricing computes session prices. All functions are pure; money is
// fixed-point decimal throughout.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"clubpoint-backend/internal/apperr"
	"clubpoint-backend/internal/model"
)

// Hourly rates per zone, in currency units per hour.
var zoneHourlyRates = map[model.Zone]decimal.Decimal{
	model.ZoneStandard: decimal.NewFromInt(90),
	model.ZonePremium:  decimal.NewFromInt(115),
	model.ZoneVIP:      decimal.NewFromInt(130),
	model.ZoneSuperVIP: decimal.NewFromInt(150),
	model.ZoneSolo:     decimal.NewFromInt(180),
}

// Daytime discount band, as seconds since midnight, bounds inclusive.
const (
	dayStartSec = 8 * 3600  // 08:00
	dayEndSec   = 20 * 3600 // 20:00
)

var (
	sixty      = decimal.NewFromInt(60)
	one        = decimal.NewFromInt(1)
	discount10 = decimal.NewFromFloat(0.10)
	discount15 = decimal.NewFromFloat(0.15)
)

// PerMinuteRate returns the undiscounted price of one minute in the zone,
// rounded to currency precision.
func PerMinuteRate(zone model.Zone) (decimal.Decimal, error) {
	hourly, ok := zoneHourlyRates[zone]
	if !ok {
		return decimal.Zero, apperr.Newf(apperr.KindConfig, "no hourly rate configured for zone %q", zone)
	}
	return hourly.Div(sixty).Round(2), nil
}

// ValidateZones fails fast if any zone of the fixed enumeration has no rate.
// Called once at startup.
func ValidateZones() error {
	for _, z := range []model.Zone{model.ZoneStandard, model.ZonePremium, model.ZoneVIP, model.ZoneSuperVIP, model.ZoneSolo} {
		if _, err := PerMinuteRate(z); err != nil {
			return err
		}
	}
	return nil
}

// fullyDaytime reports whether both window endpoints fall inside the daytime
// band. Only the time-of-day components are compared: a window crossing
// midnight whose endpoints both land in the band still qualifies. That
// date-stripping is the published tariff rule, not an oversight here.
func fullyDaytime(start, end time.Time) bool {
	return inBand(start) && inBand(end)
}

func inBand(t time.Time) bool {
	sec := t.Hour()*3600 + t.Minute()*60 + t.Second()
	return sec >= dayStartSec && sec <= dayEndSec
}

// discountRate returns the package discount for the billed duration, applied
// only when the whole window is daytime: 15% from five hours, 10% from three.
func discountRate(billedMinutes int, start, end time.Time) decimal.Decimal {
	if !fullyDaytime(start, end) {
		return decimal.Zero
	}
	hours := float64(billedMinutes) / 60.0
	switch {
	case hours >= 5:
		return discount15
	case hours >= 3:
		return discount10
	}
	return decimal.Zero
}

// Total computes the final price of a session: zone per-minute rate times
// billed minutes, minus the daytime package discount, rounded to two decimal
// places. A zero-minute session (immediate cancellation) prices to 0.00.
func Total(zone model.Zone, billedMinutes int, windowStart, windowEnd time.Time) (decimal.Decimal, error) {
	perMin, err := PerMinuteRate(zone)
	if err != nil {
		return decimal.Zero, err
	}

	base := perMin.Mul(decimal.NewFromInt(int64(billedMinutes)))
	rate := discountRate(billedMinutes, windowStart, windowEnd)

	return base.Mul(one.Sub(rate)).Round(2), nil
}
