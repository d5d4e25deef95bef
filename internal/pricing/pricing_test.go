package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clubpoint-backend/internal/apperr"
	"clubpoint-backend/internal/model"
)

// Fixed daytime window: 10:00 to 14:00 on an arbitrary date.
var (
	dayStart = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	dayEnd   = time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
)

func TestPerMinuteRate(t *testing.T) {
	testCases := []struct {
		zone     model.Zone
		expected string
	}{
		{model.ZoneStandard, "1.5"},
		{model.ZonePremium, "1.92"},
		{model.ZoneVIP, "2.17"},
		{model.ZoneSuperVIP, "2.5"},
		{model.ZoneSolo, "3"},
	}

	for _, tc := range testCases {
		t.Run(string(tc.zone), func(t *testing.T) {
			rate, err := PerMinuteRate(tc.zone)
			require.NoError(t, err)
			assert.True(t, rate.Equal(decimal.RequireFromString(tc.expected)),
				"zone %s: got %s, want %s", tc.zone, rate, tc.expected)
		})
	}
}

func TestPerMinuteRate_UnknownZone(t *testing.T) {
	_, err := PerMinuteRate(model.Zone("ARCADE"))
	require.Error(t, err)
	assert.Equal(t, apperr.KindConfig, apperr.KindOf(err))
}

func TestValidateZones(t *testing.T) {
	assert.NoError(t, ValidateZones())
}

func TestTotal_DaytimeDiscountTiers(t *testing.T) {
	testCases := []struct {
		name     string
		minutes  int
		expected string
	}{
		{"zero minutes prices to zero", 0, "0"},
		{"one hour, no discount", 60, "90"},
		{"just under three hours, no discount", 179, "268.5"},
		{"three hours, 10 percent", 180, "243"},
		{"four hours, 10 percent", 240, "324"},
		{"just under five hours, 10 percent", 299, "403.65"},
		{"five hours, 15 percent", 300, "382.5"},
		{"eight hours, 15 percent", 480, "612"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Total(model.ZoneStandard, tc.minutes, dayStart, dayEnd)
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tc.expected)),
				"got %s, want %s", got, tc.expected)
		})
	}
}

func TestTotal_DiscountRequiresFullyDaytimeWindow(t *testing.T) {
	// 240 billed minutes of STANDARD: 360.00 undiscounted, 324.00 with 10%.
	base := decimal.RequireFromString("360")
	discounted := decimal.RequireFromString("324")

	testCases := []struct {
		name     string
		start    time.Time
		end      time.Time
		expected decimal.Decimal
	}{
		{
			"fully inside the band",
			time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC),
			time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC),
			discounted,
		},
		{
			"starts before 08:00",
			time.Date(2025, 3, 10, 7, 59, 59, 0, time.UTC),
			time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
			base,
		},
		{
			"ends after 20:00",
			time.Date(2025, 3, 10, 17, 0, 0, 0, time.UTC),
			time.Date(2025, 3, 10, 20, 0, 1, 0, time.UTC),
			base,
		},
		{
			// Documented tariff quirk: only time-of-day is compared, so a
			// window spanning midnight with both endpoints inside the band
			// still gets the discount.
			"crosses midnight but endpoints in band",
			time.Date(2025, 3, 10, 19, 0, 0, 0, time.UTC),
			time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC),
			discounted,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Total(model.ZoneStandard, 240, tc.start, tc.end)
			require.NoError(t, err)
			assert.True(t, got.Equal(tc.expected), "got %s, want %s", got, tc.expected)
		})
	}
}

func TestTotal_RoundedToTwoPlaces(t *testing.T) {
	// VIP per-minute rate carries a rounding step (130/60 -> 2.17).
	got, err := Total(model.ZoneVIP, 37, dayStart, dayEnd)
	require.NoError(t, err)
	assert.True(t, got.Exponent() >= -2, "amount %s has more than 2 decimal places", got)
	assert.True(t, got.Equal(decimal.RequireFromString("80.29")), "got %s", got)
}

func TestTotal_MonotonicInBilledMinutes(t *testing.T) {
	// A night window keeps the discount at zero for every duration; the
	// package discount itself steps down at the 3h and 5h tier boundaries.
	nightStart := time.Date(2025, 3, 10, 22, 0, 0, 0, time.UTC)
	nightEnd := time.Date(2025, 3, 11, 4, 0, 0, 0, time.UTC)

	prev := decimal.Zero
	for minutes := 0; minutes <= 360; minutes += 15 {
		got, err := Total(model.ZonePremium, minutes, nightStart, nightEnd)
		require.NoError(t, err)
		assert.True(t, got.GreaterThanOrEqual(prev),
			"price decreased at %d minutes: %s < %s", minutes, got, prev)
		prev = got
	}
}

func TestTotal_UnknownZone(t *testing.T) {
	_, err := Total(model.Zone("BALCONY"), 60, dayStart, dayEnd)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConfig, apperr.KindOf(err))
}
