package parse

import (
	"time"
)

// DateTimeWireFormat is the fixed backend timestamp pattern, always UTC
// with millisecond precision.
const DateTimeWireFormat = "2006-01-02T15:04:05.000Z"

// DateTime is an immutable UTC instant with the backend wire encoding.
// The zero DateTime is invalid.
type DateTime struct {
	t     time.Time
	valid bool
}

func DateTimeFromTime(t time.Time) DateTime {
	if t.IsZero() {
		return DateTime{}
	}
	return DateTime{
		t:     t.UTC(),
		valid: true,
	}
}

func DateTimeNow() DateTime {
	return DateTimeFromTime(time.Now())
}

// DateTimeFromString parses the wire pattern. An input that does not match
// yields an invalid DateTime, never a garbage instant.
func DateTimeFromString(iso string) DateTime {
	t, err := time.Parse(DateTimeWireFormat, iso)
	if err != nil {
		return DateTime{}
	}
	return DateTimeFromTime(t)
}

func (self DateTime) IsValid() bool {
	return self.valid
}

func (self DateTime) Time() time.Time {
	return self.t
}

func (self DateTime) String() string {
	if !self.valid {
		return ""
	}
	return self.t.Format(DateTimeWireFormat)
}

func (self DateTime) toWire() map[string]any {
	return map[string]any{
		"__type": "Date",
		"iso":    self.String(),
	}
}
