package scheduling

import (
	"github.com/example/intercity-bus/internal/dates"
)

// Exception is a per-date deviation from a schedule's defaults. The set is
// closed: a date is either skipped entirely or modified field by field.
type Exception interface {
	// On returns the service date the exception applies to.
	On() dates.Date
	isException()
}

// Skip removes the occurrence on its date entirely.
type Skip struct {
	Date   dates.Date
	Reason string
}

// On implements Exception.
func (s Skip) On() dates.Date { return s.Date }

func (Skip) isException() {}

// Modify overrides selected trip parameters for one date. Nil fields fall
// back to the schedule's defaults.
type Modify struct {
	Date      dates.Date
	Departure *TimeOfDay
	Arrival   *TimeOfDay
	VehicleID *string
	DriverID  *string
	Reason    string
}

// On implements Exception.
func (m Modify) On() dates.Date { return m.Date }

func (Modify) isException() {}

// Defaults carries the schedule-level parameters an occurrence starts from.
type Defaults struct {
	Departure TimeOfDay
	Arrival   TimeOfDay
	VehicleID *string
	DriverID  *string
}

// Occurrence is the fully resolved set of parameters for one service date.
type Occurrence struct {
	Date      dates.Date
	Departure TimeOfDay
	Arrival   TimeOfDay
	VehicleID *string
	DriverID  *string
	Modified  bool
	Reason    string
}

// ResolveExceptions merges schedule exceptions into the candidate dates.
// Skipped dates are dropped, modified dates carry their overrides, and all
// other dates pass through with the defaults. Input order is preserved.
func ResolveExceptions(candidates []dates.Date, defaults Defaults, exceptions []Exception) []Occurrence {
	byDate := make(map[string]Exception, len(exceptions))
	for _, exc := range exceptions {
		byDate[exc.On().String()] = exc
	}

	out := make([]Occurrence, 0, len(candidates))
	for _, d := range candidates {
		occ, keep := ResolveSingle(d, defaults, byDate[d.String()])
		if keep {
			out = append(out, occ)
		}
	}
	return out
}

// ResolveSingle resolves one date against an optional exception. The second
// return value is false when the date is skipped. This is the single-date
// specialization materialization uses, so projection and materialization
// cannot disagree on what a date resolves to.
func ResolveSingle(d dates.Date, defaults Defaults, exc Exception) (Occurrence, bool) {
	occ := Occurrence{
		Date:      d,
		Departure: defaults.Departure,
		Arrival:   defaults.Arrival,
		VehicleID: defaults.VehicleID,
		DriverID:  defaults.DriverID,
	}

	switch e := exc.(type) {
	case nil:
		return occ, true
	case Skip:
		return Occurrence{}, false
	case Modify:
		if e.Departure != nil {
			occ.Departure = *e.Departure
		}
		if e.Arrival != nil {
			occ.Arrival = *e.Arrival
		}
		if e.VehicleID != nil {
			occ.VehicleID = e.VehicleID
		}
		if e.DriverID != nil {
			occ.DriverID = e.DriverID
		}
		occ.Modified = true
		occ.Reason = e.Reason
		return occ, true
	default:
		return occ, true
	}
}
