package scheduling

import (
	"fmt"
	"time"

	"github.com/example/intercity-bus/internal/dates"
)

// interpolatedDwell is the synthesized stop dwell applied at intermediate
// stops whose times are interpolated rather than explicitly scheduled.
const interpolatedDwell = 2 * time.Minute

// RouteStop is one stop of a route version, with its cumulative position
// along the route.
type RouteStop struct {
	StopID               string
	Name                 string
	Sequence             int
	DistanceFromStartM   float64
	DurationFromStartMin int
}

// ExplicitStopTime is a schedule-level wall-clock override for one stop.
// When present it is authoritative for that stop.
type ExplicitStopTime struct {
	StopID    string
	Arrival   *TimeOfDay
	Departure *TimeOfDay
}

// StopTimeProjection is the synthesized (or persisted) timing of one stop on
// one concrete trip.
type StopTimeProjection struct {
	StopID    string
	Name      string
	Sequence  int
	Arrival   time.Time
	Departure time.Time
}

// SynthesizeStopTimes computes per-stop timings for a trip departing at dep
// and arriving at arr on tripDate.
//
// A stop with an explicit time uses it verbatim, parsed against the trip's
// date (rolled to the next day once the timeline has passed midnight). All
// other stops interpolate their arrival proportionally by cumulative duration
// along the route, scaled to the trip's actual total duration, with a fixed
// two-minute dwell before the synthesized departure. The first stop departs
// at dep and the last stop arrives at arr.
func SynthesizeStopTimes(stops []RouteStop, explicit []ExplicitStopTime, tripDate dates.Date, dep, arr time.Time, loc *time.Location) ([]StopTimeProjection, error) {
	if len(stops) < 2 {
		return nil, fmt.Errorf("scheduling: route needs at least 2 stops, got %d", len(stops))
	}

	overrides := make(map[string]ExplicitStopTime, len(explicit))
	for _, e := range explicit {
		overrides[e.StopID] = e
	}

	total := stops[len(stops)-1].DurationFromStartMin
	actual := arr.Sub(dep)

	out := make([]StopTimeProjection, 0, len(stops))
	var prev time.Time
	for i, stop := range stops {
		projection := StopTimeProjection{StopID: stop.StopID, Name: stop.Name, Sequence: stop.Sequence}

		if override, ok := overrides[stop.StopID]; ok && (override.Arrival != nil || override.Departure != nil) {
			projection.Arrival, projection.Departure = explicitTimes(override, tripDate, prev, loc)
		} else {
			projection.Arrival = interpolateArrival(dep, arr, actual, stop.DurationFromStartMin, total, i, len(stops))
			switch i {
			case 0:
				projection.Departure = dep
			case len(stops) - 1:
				projection.Departure = projection.Arrival
			default:
				projection.Departure = projection.Arrival.Add(interpolatedDwell)
			}
		}

		if projection.Departure.Before(projection.Arrival) {
			projection.Departure = projection.Arrival
		}
		prev = projection.Departure
		out = append(out, projection)
	}
	return out, nil
}

func interpolateArrival(dep, arr time.Time, actual time.Duration, fromStart, total, index, count int) time.Time {
	switch {
	case index == 0:
		return dep
	case index == count-1:
		return arr
	case total <= 0:
		// Degenerate route timing: spread stops evenly.
		return dep.Add(actual * time.Duration(index) / time.Duration(count-1))
	default:
		return dep.Add(actual * time.Duration(fromStart) / time.Duration(total))
	}
}

// explicitTimes parses explicit wall-clock overrides against the trip date,
// rolling past midnight when the timeline already has: an explicit time
// earlier than the previous stop's departure belongs to the next day.
func explicitTimes(override ExplicitStopTime, tripDate dates.Date, prev time.Time, loc *time.Location) (time.Time, time.Time) {
	place := func(t TimeOfDay) time.Time {
		ts := t.At(tripDate, loc)
		if !prev.IsZero() && ts.Before(prev) {
			ts = t.At(tripDate.AddDays(1), loc)
		}
		return ts
	}

	var arrival, departure time.Time
	switch {
	case override.Arrival != nil && override.Departure != nil:
		arrival = place(*override.Arrival)
		departure = place(*override.Departure)
		if departure.Before(arrival) {
			departure = override.Departure.At(dates.FromTime(arrival).AddDays(1), loc)
		}
	case override.Arrival != nil:
		arrival = place(*override.Arrival)
		departure = arrival
	default:
		departure = place(*override.Departure)
		arrival = departure
	}
	return arrival, departure
}
