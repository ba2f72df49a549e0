package scheduling

import "time"

// Assignment is the resource view of one trip in a projection window: which
// vehicle and driver it occupies, and for how long.
type Assignment struct {
	TripKey   string
	VehicleID *string
	DriverID  *string
	Departure time.Time
	Arrival   time.Time
}

// OverlapKind describes the double-booked resource.
type OverlapKind string

const (
	// OverlapVehicle indicates the same vehicle serves two overlapping trips.
	OverlapVehicle OverlapKind = "vehicle"
	// OverlapDriver indicates the same driver serves two overlapping trips.
	OverlapDriver OverlapKind = "driver"
)

// Overlap reports a pair of trips competing for the same resource.
type Overlap struct {
	TripKey     string
	WithTripKey string
	Kind        OverlapKind
	ResourceID  string
}

// DetectOverlaps finds vehicle and driver double-bookings among the given
// assignments. Two trips overlap when their [departure, arrival) windows
// intersect. Each conflicting pair is reported once, attributed to the later
// trip.
func DetectOverlaps(assignments []Assignment) []Overlap {
	var out []Overlap
	for i, candidate := range assignments {
		for _, other := range assignments[:i] {
			if !windowsIntersect(candidate, other) {
				continue
			}
			if id, ok := sameResource(candidate.VehicleID, other.VehicleID); ok {
				out = append(out, Overlap{
					TripKey:     candidate.TripKey,
					WithTripKey: other.TripKey,
					Kind:        OverlapVehicle,
					ResourceID:  id,
				})
			}
			if id, ok := sameResource(candidate.DriverID, other.DriverID); ok {
				out = append(out, Overlap{
					TripKey:     candidate.TripKey,
					WithTripKey: other.TripKey,
					Kind:        OverlapDriver,
					ResourceID:  id,
				})
			}
		}
	}
	return out
}

func windowsIntersect(a, b Assignment) bool {
	return a.Departure.Before(b.Arrival) && b.Departure.Before(a.Arrival)
}

func sameResource(a, b *string) (string, bool) {
	if a == nil || b == nil || *a == "" || *a != *b {
		return "", false
	}
	return *a, true
}
