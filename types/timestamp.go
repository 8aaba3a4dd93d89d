package types

import (
	"time"
)

// TimeStamp is a millisecond-resolution UTC instant.
//
// TimeStamps version transforms and bound connection validity. The zero
// TimeStamp is "unspecified": read operations treat it as "latest" and a
// connection end set to zero is still valid.
type TimeStamp struct {
	t time.Time
}

// Now returns the current time as a TimeStamp.
func Now() TimeStamp {
	return At(time.Now())
}

// At converts t to a TimeStamp, truncated to milliseconds.
func At(t time.Time) TimeStamp {
	if t.IsZero() {
		return TimeStamp{}
	}
	return TimeStamp{t: t.UTC().Truncate(time.Millisecond)}
}

// FromMillis converts milliseconds since the Unix epoch to a TimeStamp.
// Zero maps to the unspecified TimeStamp.
func FromMillis(ms float64) TimeStamp {
	if ms == 0 {
		return TimeStamp{}
	}
	return TimeStamp{t: time.UnixMilli(int64(ms)).UTC()}
}

// IsZero reports whether the TimeStamp is unspecified.
func (s TimeStamp) IsZero() bool {
	return s.t.IsZero()
}

// Time returns the instant as time.Time.
func (s TimeStamp) Time() time.Time {
	return s.t
}

// Millis returns milliseconds since the Unix epoch; 0 for the zero TimeStamp.
func (s TimeStamp) Millis() float64 {
	if s.t.IsZero() {
		return 0
	}
	return float64(s.t.UnixMilli())
}

// Before reports whether s is strictly earlier than other.
func (s TimeStamp) Before(other TimeStamp) bool {
	return s.t.Before(other.t)
}

// After reports whether s is strictly later than other.
func (s TimeStamp) After(other TimeStamp) bool {
	return s.t.After(other.t)
}

// Equal reports whether both denote the same instant.
func (s TimeStamp) Equal(other TimeStamp) bool {
	return s.t.Equal(other.t)
}

// Compare returns -1, 0 or +1.
func (s TimeStamp) Compare(other TimeStamp) int {
	return s.t.Compare(other.t)
}

// Add returns s shifted by d.
func (s TimeStamp) Add(d time.Duration) TimeStamp {
	return TimeStamp{t: s.t.Add(d)}
}

// String renders the TimeStamp in RFC 3339 with milliseconds.
func (s TimeStamp) String() string {
	if s.t.IsZero() {
		return "unspecified"
	}
	return s.t.Format("2006-01-02T15:04:05.000Z07:00")
}
