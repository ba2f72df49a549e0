// Package recurrence expands RFC 5545 recurrence rules into candidate service
// dates for a schedule.
package recurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/example/intercity-bus/internal/dates"
)

// DefaultHorizonDays bounds expansion when a schedule has no validTo date, so
// an unbounded rule can never produce unbounded work.
const DefaultHorizonDays = 365

// Expander expands recurrence rules within a schedule's validity window.
type Expander struct {
	// HorizonDays caps open-ended windows; zero means DefaultHorizonDays.
	HorizonDays int
}

// Expand produces the ascending candidate dates the rule yields between
// validFrom and validTo inclusive. When validTo is nil the window closes at
// validFrom plus the horizon. Rules without a DTSTART are anchored on
// validFrom. Dates listed in exclusions are removed from the result.
//
// A malformed rule returns an error; callers are expected to degrade to an
// empty date list and log a warning rather than fail their request.
func (e *Expander) Expand(rule string, validFrom dates.Date, validTo *dates.Date, exclusions []dates.Date) ([]dates.Date, error) {
	rule = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rule), "RRULE:"))
	if rule == "" {
		return nil, fmt.Errorf("recurrence: empty rule")
	}

	parsed, err := rrule.StrToRRule(rule)
	if err != nil {
		return nil, fmt.Errorf("recurrence: invalid rule %q: %w", rule, err)
	}

	windowStart := validFrom.Midnight(time.UTC)
	windowEnd := e.windowEnd(validFrom, validTo).Midnight(time.UTC)
	if windowEnd.Before(windowStart) {
		return nil, nil
	}

	// Anchor unanchored rules on the start of the validity window so Between
	// covers the whole window.
	opts := parsed.OrigOptions
	if opts.Dtstart.IsZero() {
		opts.Dtstart = windowStart
	}
	anchored, err := rrule.NewRRule(opts)
	if err != nil {
		return nil, fmt.Errorf("recurrence: invalid rule %q: %w", rule, err)
	}

	excluded := make(map[string]struct{}, len(exclusions))
	for _, d := range exclusions {
		excluded[d.String()] = struct{}{}
	}

	occurrences := anchored.Between(windowStart, windowEnd, true)
	out := make([]dates.Date, 0, len(occurrences))
	var last dates.Date
	for _, occ := range occurrences {
		d := dates.FromTime(occ.In(time.UTC))
		if len(out) > 0 && d.Equal(last) {
			continue
		}
		if _, skip := excluded[d.String()]; skip {
			continue
		}
		out = append(out, d)
		last = d
	}
	return out, nil
}

// SingleOccurrence is the expansion of a non-recurring schedule: exactly its
// validFrom date.
func SingleOccurrence(validFrom dates.Date) []dates.Date {
	return []dates.Date{validFrom}
}

func (e *Expander) windowEnd(validFrom dates.Date, validTo *dates.Date) dates.Date {
	horizon := e.HorizonDays
	if horizon <= 0 {
		horizon = DefaultHorizonDays
	}
	if validTo == nil {
		return validFrom.AddDays(horizon)
	}
	return *validTo
}
