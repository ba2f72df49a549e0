package scheduling

import (
	"encoding/json"
	"fmt"

	"github.com/example/intercity-bus/internal/calendar"
	"github.com/example/intercity-bus/internal/dates"
)

// Modifier narrows a schedule's candidate dates. Modifiers apply strictly in
// list order and only ever remove dates; none can add a date the recurrence
// expansion did not produce.
type Modifier interface {
	isModifier()
}

// ExcludeCalendar removes dates covered by the referenced calendar.
type ExcludeCalendar struct {
	CalendarID string
}

func (ExcludeCalendar) isModifier() {}

// IncludeOnlyCalendar keeps only dates covered by the referenced calendar.
type IncludeOnlyCalendar struct {
	CalendarID string
}

func (IncludeOnlyCalendar) isModifier() {}

// ExcludeDates removes a literal list of dates.
type ExcludeDates struct {
	Dates []dates.Date
}

func (ExcludeDates) isModifier() {}

// ApplyModifiers runs the candidate dates through the modifier list. The
// resolved parameter maps calendar id to the precomputed date set covering
// every year present in the candidates; the caller resolves each distinct
// (calendar, year) pair once up front.
//
// A modifier referencing a calendar absent from resolved is a no-op; a
// dangling reference must not break scheduling. That holds for
// IncludeOnlyCalendar too, which therefore keeps everything when its calendar
// is unresolved rather than excluding everything.
func ApplyModifiers(candidates []dates.Date, modifiers []Modifier, resolved map[string]calendar.DateSet) []dates.Date {
	current := candidates
	for _, mod := range modifiers {
		switch m := mod.(type) {
		case ExcludeCalendar:
			set, ok := resolved[m.CalendarID]
			if !ok {
				continue
			}
			current = filterDates(current, func(d dates.Date) bool { return !set.Contains(d) })
		case IncludeOnlyCalendar:
			set, ok := resolved[m.CalendarID]
			if !ok {
				continue
			}
			current = filterDates(current, set.Contains)
		case ExcludeDates:
			drop := make(map[string]struct{}, len(m.Dates))
			for _, d := range m.Dates {
				drop[d.String()] = struct{}{}
			}
			current = filterDates(current, func(d dates.Date) bool {
				_, found := drop[d.String()]
				return !found
			})
		}
	}
	return current
}

// CalendarRefs returns the calendar ids the modifier list references, in
// order, without duplicates.
func CalendarRefs(modifiers []Modifier) []string {
	seen := make(map[string]struct{}, len(modifiers))
	refs := make([]string, 0, len(modifiers))
	for _, mod := range modifiers {
		var id string
		switch m := mod.(type) {
		case ExcludeCalendar:
			id = m.CalendarID
		case IncludeOnlyCalendar:
			id = m.CalendarID
		default:
			continue
		}
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		refs = append(refs, id)
	}
	return refs
}

func filterDates(in []dates.Date, keep func(dates.Date) bool) []dates.Date {
	out := make([]dates.Date, 0, len(in))
	for _, d := range in {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out
}

// Modifier descriptors round-trip through persistence as a JSON array; this
// is the only wire format modifiers have.
const (
	modifierTypeExclude      = "exclude"
	modifierTypeIncludeOnly  = "include_only"
	modifierTypeExcludeDates = "exclude_dates"
)

type modifierDescriptor struct {
	Type       string   `json:"type"`
	CalendarID string   `json:"calendar_id,omitempty"`
	Dates      []string `json:"dates,omitempty"`
}

// EncodeModifiers serializes the ordered modifier list.
func EncodeModifiers(modifiers []Modifier) ([]byte, error) {
	descriptors := make([]modifierDescriptor, 0, len(modifiers))
	for _, mod := range modifiers {
		switch m := mod.(type) {
		case ExcludeCalendar:
			descriptors = append(descriptors, modifierDescriptor{Type: modifierTypeExclude, CalendarID: m.CalendarID})
		case IncludeOnlyCalendar:
			descriptors = append(descriptors, modifierDescriptor{Type: modifierTypeIncludeOnly, CalendarID: m.CalendarID})
		case ExcludeDates:
			isoDates := make([]string, 0, len(m.Dates))
			for _, d := range m.Dates {
				isoDates = append(isoDates, d.String())
			}
			descriptors = append(descriptors, modifierDescriptor{Type: modifierTypeExcludeDates, Dates: isoDates})
		default:
			return nil, fmt.Errorf("scheduling: unknown modifier %T", mod)
		}
	}
	return json.Marshal(descriptors)
}

// DecodeModifiers deserializes a modifier list previously produced by
// EncodeModifiers. Unknown descriptor types are skipped so a newer writer
// cannot make older rows unreadable.
func DecodeModifiers(data []byte) ([]Modifier, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var descriptors []modifierDescriptor
	if err := json.Unmarshal(data, &descriptors); err != nil {
		return nil, fmt.Errorf("scheduling: invalid modifier payload: %w", err)
	}

	out := make([]Modifier, 0, len(descriptors))
	for _, desc := range descriptors {
		switch desc.Type {
		case modifierTypeExclude:
			out = append(out, ExcludeCalendar{CalendarID: desc.CalendarID})
		case modifierTypeIncludeOnly:
			out = append(out, IncludeOnlyCalendar{CalendarID: desc.CalendarID})
		case modifierTypeExcludeDates:
			parsed := make([]dates.Date, 0, len(desc.Dates))
			for _, iso := range desc.Dates {
				d, err := dates.Parse(iso)
				if err != nil {
					return nil, fmt.Errorf("scheduling: invalid modifier date: %w", err)
				}
				parsed = append(parsed, d)
			}
			out = append(out, ExcludeDates{Dates: parsed})
		}
	}
	return out, nil
}
