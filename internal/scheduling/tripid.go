package scheduling

import (
	"fmt"
	"strings"

	"github.com/example/intercity-bus/internal/dates"
)

// virtualPrefix marks identifiers of trips that exist only as projections.
const virtualPrefix = "virtual:"

// TripID identifies a trip in either of its two forms: a virtual occurrence
// addressed by (schedule, date), or a persisted trip addressed by its own id.
// Identifiers are parsed once at the boundary and carried as this type
// through the call chain.
type TripID interface {
	// String renders the wire form of the identifier.
	String() string
	isTripID()
}

// VirtualID addresses a projected, not-yet-persisted occurrence.
type VirtualID struct {
	ScheduleID string
	Date       dates.Date
}

// String implements TripID.
func (v VirtualID) String() string {
	return virtualPrefix + v.ScheduleID + ":" + v.Date.String()
}

func (VirtualID) isTripID() {}

// MaterializedID addresses a persisted trip row.
type MaterializedID struct {
	TripID string
}

// String implements TripID.
func (m MaterializedID) String() string { return m.TripID }

func (MaterializedID) isTripID() {}

// ParseTripID decodes a client-supplied trip identifier. Identifiers carrying
// the virtual prefix must be well formed; any other non-empty string is
// treated as an opaque materialized trip id.
func ParseTripID(value string) (TripID, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("scheduling: empty trip id")
	}

	if !strings.HasPrefix(value, virtualPrefix) {
		return MaterializedID{TripID: value}, nil
	}

	rest := strings.TrimPrefix(value, virtualPrefix)
	sep := strings.LastIndex(rest, ":")
	if sep <= 0 || sep == len(rest)-1 {
		return nil, fmt.Errorf("scheduling: malformed virtual trip id %q", value)
	}

	scheduleID := rest[:sep]
	date, err := dates.Parse(rest[sep+1:])
	if err != nil {
		return nil, fmt.Errorf("scheduling: malformed virtual trip id %q: %w", value, err)
	}
	return VirtualID{ScheduleID: scheduleID, Date: date}, nil
}
