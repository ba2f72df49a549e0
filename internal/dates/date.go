// Package dates provides a date-only value type for calendar-day arithmetic.
//
// Schedule expansion enumerates thousands of calendar days per request. Doing
// that on time.Time risks daylight-saving duplication and skipping, so every
// day-level computation in this module works on Date and only composes a full
// timestamp at the very end, when a wall-clock time and location are known.
package dates

import (
	"fmt"
	"time"
)

// ISO is the layout used for all persisted and wire-format dates.
const ISO = "2006-01-02"

// Date identifies a calendar day without a time-of-day or location component.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// New returns the date for the given year, month and day. Out-of-range values
// are normalized the same way time.Date normalizes them.
func New(year int, month time.Month, day int) Date {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// FromTime extracts the calendar day of t in its own location.
func FromTime(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Parse reads an ISO "YYYY-MM-DD" string.
func Parse(value string) (Date, error) {
	t, err := time.Parse(ISO, value)
	if err != nil {
		return Date{}, fmt.Errorf("dates: invalid date %q: %w", value, err)
	}
	return FromTime(t), nil
}

// MustParse is Parse for values known to be valid, such as test literals.
func MustParse(value string) Date {
	d, err := Parse(value)
	if err != nil {
		panic(err)
	}
	return d
}

// String renders the ISO form.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// MarshalText renders the ISO form for JSON and other text encodings.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText parses the ISO form.
func (d *Date) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// IsZero reports whether d is the zero value.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// AddDays returns the date n calendar days after d (n may be negative).
// The arithmetic happens in UTC so no DST transition can duplicate or skip a
// day.
func (d Date) AddDays(n int) Date {
	t := time.Date(d.Year, d.Month, d.Day+n, 0, 0, 0, 0, time.UTC)
	return FromTime(t)
}

// Weekday returns the day of week of d.
func (d Date) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Weekday()
}

// Compare orders dates chronologically: -1 when d precedes other, 0 when they
// are the same day, +1 otherwise.
func (d Date) Compare(other Date) int {
	switch {
	case d.Year != other.Year:
		return sign(d.Year - other.Year)
	case d.Month != other.Month:
		return sign(int(d.Month) - int(other.Month))
	default:
		return sign(d.Day - other.Day)
	}
}

// Before reports whether d precedes other.
func (d Date) Before(other Date) bool { return d.Compare(other) < 0 }

// After reports whether d follows other.
func (d Date) After(other Date) bool { return d.Compare(other) > 0 }

// Equal reports whether both values name the same day.
func (d Date) Equal(other Date) bool { return d.Compare(other) == 0 }

// Midnight composes the timestamp for the start of the day in loc.
func (d Date) Midnight(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// DaysUntil returns the number of calendar days from d to other; negative when
// other precedes d.
func (d Date) DaysUntil(other Date) int {
	a := d.Midnight(time.UTC)
	b := other.Midnight(time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	default:
		return 0
	}
}
