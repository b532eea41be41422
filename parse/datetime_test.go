package parse

import (
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestDateTimeRoundTrip(t *testing.T) {
	date := DateTimeFromString("2020-01-01T00:00:00.000Z")
	assert.Equal(t, date.IsValid(), true)
	assert.Equal(t, date.String(), "2020-01-01T00:00:00.000Z")
	assert.Equal(t, date.Time().Year(), 2020)

	date = DateTimeFromString("2023-06-15T12:30:45.123Z")
	assert.Equal(t, date.String(), "2023-06-15T12:30:45.123Z")
}

func TestDateTimeInvalid(t *testing.T) {
	for _, iso := range []string{
		"",
		"not a date",
		"2020-01-01",
		"2020-01-01 00:00:00",
		// missing the millisecond field
		"2020-01-01T00:00:00Z",
	} {
		date := DateTimeFromString(iso)
		assert.Equal(t, date.IsValid(), false)
		assert.Equal(t, date.String(), "")
	}

	assert.Equal(t, DateTimeFromTime(time.Time{}).IsValid(), false)
}

func TestDateTimeUtc(t *testing.T) {
	est := time.FixedZone("EST", -5*60*60)
	local := time.Date(2020, 1, 1, 19, 0, 0, 0, est)
	date := DateTimeFromTime(local)
	assert.Equal(t, date.String(), "2020-01-02T00:00:00.000Z")
}

func TestDateTimeWire(t *testing.T) {
	date := DateTimeFromString("2020-01-01T00:00:00.000Z")
	assert.Equal(t, date.toWire(), map[string]any{
		"__type": "Date",
		"iso":    "2020-01-01T00:00:00.000Z",
	})
}
