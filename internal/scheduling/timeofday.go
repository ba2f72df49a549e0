// Package scheduling holds the pure trip-scheduling pipeline: calendar
// modifier filtering, per-date exception resolution, departure/arrival
// timeline computation, stop-time synthesis and the trip identity scheme.
// Everything here is deterministic and free of I/O; services in
// internal/application orchestrate it against persistence.
package scheduling

import (
	"fmt"
	"time"

	"github.com/example/intercity-bus/internal/dates"
)

// TimeOfDay is a wall-clock time without a date or location, as carried by
// schedules ("HH:MM", local to the operating region).
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay reads an "HH:MM" value. Only the canonical two-digit,
// zero-padded form is accepted; nothing may follow the minutes.
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	if len(value) != 5 || value[2] != ':' {
		return TimeOfDay{}, fmt.Errorf("scheduling: invalid time of day %q", value)
	}
	for _, i := range [...]int{0, 1, 3, 4} {
		if value[i] < '0' || value[i] > '9' {
			return TimeOfDay{}, fmt.Errorf("scheduling: invalid time of day %q", value)
		}
	}
	h := int(value[0]-'0')*10 + int(value[1]-'0')
	m := int(value[3]-'0')*10 + int(value[4]-'0')
	if h > 23 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("scheduling: invalid time of day %q", value)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// MustParseTimeOfDay is ParseTimeOfDay for known-valid literals.
func MustParseTimeOfDay(value string) TimeOfDay {
	t, err := ParseTimeOfDay(value)
	if err != nil {
		panic(err)
	}
	return t
}

// String renders the canonical "HH:MM" form.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Minutes returns minutes since midnight.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

// Before reports whether t is earlier in the day than other.
func (t TimeOfDay) Before(other TimeOfDay) bool {
	return t.Minutes() < other.Minutes()
}

// At composes the absolute timestamp for this wall-clock time on the given
// day in loc.
func (t TimeOfDay) At(d dates.Date, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, t.Hour, t.Minute, 0, 0, loc)
}

// Timeline converts a service date plus departure and arrival wall-clock
// times into absolute timestamps. An arrival time-of-day earlier than the
// departure means the trip runs past midnight, so the arrival rolls forward
// one calendar day.
func Timeline(d dates.Date, departure, arrival TimeOfDay, loc *time.Location) (time.Time, time.Time) {
	dep := departure.At(d, loc)
	arr := arrival.At(d, loc)
	if arr.Before(dep) {
		arr = arrival.At(d.AddDays(1), loc)
	}
	return dep, arr
}
