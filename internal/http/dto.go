package http

import (
	"fmt"
	"strings"
	"time"

	"github.com/example/intercity-bus/internal/calendar"
	"github.com/example/intercity-bus/internal/dates"
	"github.com/example/intercity-bus/internal/scheduling"
)

// ruleDTO is the wire form of one calendar date rule. The type discriminator
// selects which of the remaining fields apply.
type ruleDTO struct {
	Type    string `json:"type"`
	Month   int    `json:"month,omitempty"`
	Day     int    `json:"day,omitempty"`
	Year    int    `json:"year,omitempty"`
	Offset  int    `json:"offset,omitempty"`
	Nth     int    `json:"nth,omitempty"`
	Weekday string `json:"weekday,omitempty"`
	Start   string `json:"start,omitempty"`
	End     string `json:"end,omitempty"`
}

const (
	ruleTypeFixed          = "fixed"
	ruleTypeEasterRelative = "easter_relative"
	ruleTypeNthWeekday     = "nth_weekday"
	ruleTypeRange          = "range"
)

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func (r ruleDTO) toRule() (calendar.Rule, error) {
	switch r.Type {
	case ruleTypeFixed:
		return calendar.Fixed{Month: time.Month(r.Month), Day: r.Day, Year: r.Year}, nil
	case ruleTypeEasterRelative:
		return calendar.EasterRelative{Offset: r.Offset}, nil
	case ruleTypeNthWeekday:
		weekday, ok := weekdayNames[strings.ToLower(strings.TrimSpace(r.Weekday))]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", r.Weekday)
		}
		return calendar.NthWeekday{Nth: r.Nth, Weekday: weekday, Month: time.Month(r.Month)}, nil
	case ruleTypeRange:
		start, err := dates.Parse(r.Start)
		if err != nil {
			return nil, err
		}
		end, err := dates.Parse(r.End)
		if err != nil {
			return nil, err
		}
		return calendar.Range{Start: start, End: end}, nil
	default:
		return nil, fmt.Errorf("unknown rule type %q", r.Type)
	}
}

func toRuleDTO(rule calendar.Rule) ruleDTO {
	switch r := rule.(type) {
	case calendar.Fixed:
		return ruleDTO{Type: ruleTypeFixed, Month: int(r.Month), Day: r.Day, Year: r.Year}
	case calendar.EasterRelative:
		return ruleDTO{Type: ruleTypeEasterRelative, Offset: r.Offset}
	case calendar.NthWeekday:
		return ruleDTO{
			Type:    ruleTypeNthWeekday,
			Nth:     r.Nth,
			Weekday: strings.ToLower(r.Weekday.String()),
			Month:   int(r.Month),
		}
	case calendar.Range:
		return ruleDTO{Type: ruleTypeRange, Start: r.Start.String(), End: r.End.String()}
	default:
		return ruleDTO{}
	}
}

// modifierDTO is the wire form of one schedule modifier, matching the
// persisted descriptor format.
type modifierDTO struct {
	Type       string   `json:"type"`
	CalendarID string   `json:"calendar_id,omitempty"`
	Dates      []string `json:"dates,omitempty"`
}

func (m modifierDTO) toModifier() (scheduling.Modifier, error) {
	switch m.Type {
	case "exclude":
		return scheduling.ExcludeCalendar{CalendarID: m.CalendarID}, nil
	case "include_only":
		return scheduling.IncludeOnlyCalendar{CalendarID: m.CalendarID}, nil
	case "exclude_dates":
		parsed := make([]dates.Date, 0, len(m.Dates))
		for _, iso := range m.Dates {
			d, err := dates.Parse(iso)
			if err != nil {
				return nil, err
			}
			parsed = append(parsed, d)
		}
		return scheduling.ExcludeDates{Dates: parsed}, nil
	default:
		return nil, fmt.Errorf("unknown modifier type %q", m.Type)
	}
}

func toModifierDTO(mod scheduling.Modifier) modifierDTO {
	switch m := mod.(type) {
	case scheduling.ExcludeCalendar:
		return modifierDTO{Type: "exclude", CalendarID: m.CalendarID}
	case scheduling.IncludeOnlyCalendar:
		return modifierDTO{Type: "include_only", CalendarID: m.CalendarID}
	case scheduling.ExcludeDates:
		isoDates := make([]string, 0, len(m.Dates))
		for _, d := range m.Dates {
			isoDates = append(isoDates, d.String())
		}
		return modifierDTO{Type: "exclude_dates", Dates: isoDates}
	default:
		return modifierDTO{}
	}
}

// exceptionDTO is the wire form of one per-date schedule exception.
type exceptionDTO struct {
	Date      string  `json:"date"`
	Kind      string  `json:"kind"`
	Departure *string `json:"departure,omitempty"`
	Arrival   *string `json:"arrival,omitempty"`
	VehicleID *string `json:"vehicle_id,omitempty"`
	DriverID  *string `json:"driver_id,omitempty"`
	Reason    string  `json:"reason,omitempty"`
}

func (e exceptionDTO) toException() (scheduling.Exception, error) {
	d, err := dates.Parse(e.Date)
	if err != nil {
		return nil, err
	}

	switch e.Kind {
	case "skip":
		return scheduling.Skip{Date: d, Reason: e.Reason}, nil
	case "modify":
		modify := scheduling.Modify{Date: d, VehicleID: e.VehicleID, DriverID: e.DriverID, Reason: e.Reason}
		if e.Departure != nil {
			tod, err := scheduling.ParseTimeOfDay(*e.Departure)
			if err != nil {
				return nil, err
			}
			modify.Departure = &tod
		}
		if e.Arrival != nil {
			tod, err := scheduling.ParseTimeOfDay(*e.Arrival)
			if err != nil {
				return nil, err
			}
			modify.Arrival = &tod
		}
		return modify, nil
	default:
		return nil, fmt.Errorf("unknown exception kind %q", e.Kind)
	}
}

func toExceptionDTO(exc scheduling.Exception) exceptionDTO {
	switch e := exc.(type) {
	case scheduling.Skip:
		return exceptionDTO{Date: e.Date.String(), Kind: "skip", Reason: e.Reason}
	case scheduling.Modify:
		dto := exceptionDTO{
			Date:      e.Date.String(),
			Kind:      "modify",
			VehicleID: e.VehicleID,
			DriverID:  e.DriverID,
			Reason:    e.Reason,
		}
		if e.Departure != nil {
			s := e.Departure.String()
			dto.Departure = &s
		}
		if e.Arrival != nil {
			s := e.Arrival.String()
			dto.Arrival = &s
		}
		return dto
	default:
		return exceptionDTO{}
	}
}

// stopDTO is the wire form of one stop in a route version.
type stopDTO struct {
	StopID               string  `json:"stop_id"`
	Name                 string  `json:"name"`
	Sequence             int     `json:"sequence"`
	DistanceFromStartM   float64 `json:"distance_from_start_m,omitempty"`
	DurationFromStartMin int     `json:"duration_from_start_min"`
}

func (s stopDTO) toStop() scheduling.RouteStop {
	return scheduling.RouteStop{
		StopID:               strings.TrimSpace(s.StopID),
		Name:                 strings.TrimSpace(s.Name),
		Sequence:             s.Sequence,
		DistanceFromStartM:   s.DistanceFromStartM,
		DurationFromStartMin: s.DurationFromStartMin,
	}
}

func toStopDTO(stop scheduling.RouteStop) stopDTO {
	return stopDTO{
		StopID:               stop.StopID,
		Name:                 stop.Name,
		Sequence:             stop.Sequence,
		DistanceFromStartM:   stop.DistanceFromStartM,
		DurationFromStartMin: stop.DurationFromStartMin,
	}
}

// stopTimeOverrideDTO is the wire form of one explicit stop time on a
// schedule.
type stopTimeOverrideDTO struct {
	StopID    string  `json:"stop_id"`
	Arrival   *string `json:"arrival,omitempty"`
	Departure *string `json:"departure,omitempty"`
}

func (s stopTimeOverrideDTO) toOverride() (scheduling.ExplicitStopTime, error) {
	override := scheduling.ExplicitStopTime{StopID: strings.TrimSpace(s.StopID)}
	if s.Arrival != nil {
		tod, err := scheduling.ParseTimeOfDay(*s.Arrival)
		if err != nil {
			return scheduling.ExplicitStopTime{}, err
		}
		override.Arrival = &tod
	}
	if s.Departure != nil {
		tod, err := scheduling.ParseTimeOfDay(*s.Departure)
		if err != nil {
			return scheduling.ExplicitStopTime{}, err
		}
		override.Departure = &tod
	}
	return override, nil
}

func toStopTimeOverrideDTO(override scheduling.ExplicitStopTime) stopTimeOverrideDTO {
	dto := stopTimeOverrideDTO{StopID: override.StopID}
	if override.Arrival != nil {
		s := override.Arrival.String()
		dto.Arrival = &s
	}
	if override.Departure != nil {
		s := override.Departure.String()
		dto.Departure = &s
	}
	return dto
}
