// Package calendar resolves named calendar definitions into concrete dates.
//
// A calendar is an ordered set of entries, each describing dates in one of
// four ways: a fixed day (recurring yearly or pinned to one year), an offset
// from Easter Sunday, the nth weekday of a month, or an explicit date range.
// Resolution is per year; entries that cannot produce a valid day for the
// requested year contribute nothing rather than failing the whole calendar.
package calendar

import (
	"sort"
	"time"

	"github.com/example/intercity-bus/internal/dates"
)

// Rule describes how a single entry produces dates for a year. Implementations
// form a closed set; each returns nil when it yields nothing for the year.
type Rule interface {
	// Dates returns the concrete days the rule covers within the given year.
	Dates(year int) []dates.Date
}

// Fixed is a month/day pair, recurring every year when Year is zero and
// pinned to a single year otherwise.
type Fixed struct {
	Month time.Month
	Day   int
	Year  int
}

// Dates implements Rule.
func (f Fixed) Dates(year int) []dates.Date {
	if f.Year != 0 && f.Year != year {
		return nil
	}
	if !validMonthDay(year, f.Month, f.Day) {
		return nil
	}
	return []dates.Date{dates.New(year, f.Month, f.Day)}
}

// EasterRelative is a signed day offset from that year's Easter Sunday.
type EasterRelative struct {
	Offset int
}

// Dates implements Rule.
func (e EasterRelative) Dates(year int) []dates.Date {
	return []dates.Date{EasterSunday(year).AddDays(e.Offset)}
}

// NthWeekday selects the nth occurrence of a weekday within a month. Negative
// Nth counts backward from the end of the month, so -1 is the last occurrence.
type NthWeekday struct {
	Nth     int
	Weekday time.Weekday
	Month   time.Month
}

// Dates implements Rule.
func (n NthWeekday) Dates(year int) []dates.Date {
	if n.Nth == 0 {
		return nil
	}

	if n.Nth > 0 {
		first := dates.New(year, n.Month, 1)
		offset := (int(n.Weekday) - int(first.Weekday()) + 7) % 7
		day := 1 + offset + (n.Nth-1)*7
		if !validMonthDay(year, n.Month, day) {
			return nil
		}
		return []dates.Date{dates.New(year, n.Month, day)}
	}

	last := dates.New(year, n.Month+1, 1).AddDays(-1)
	offset := (int(last.Weekday()) - int(n.Weekday) + 7) % 7
	day := last.Day - offset - (-n.Nth-1)*7
	if day < 1 {
		return nil
	}
	return []dates.Date{dates.New(year, n.Month, day)}
}

// Range covers every calendar day between Start and End inclusive. Ranges
// spanning multiple years contribute only the days whose year matches the
// requested one.
type Range struct {
	Start dates.Date
	End   dates.Date
}

// Dates implements Rule.
func (r Range) Dates(year int) []dates.Date {
	if r.Start.IsZero() || r.End.IsZero() || r.End.Before(r.Start) {
		return nil
	}
	if r.Start.Year > year || r.End.Year < year {
		return nil
	}

	from := r.Start
	if from.Year < year {
		from = dates.New(year, time.January, 1)
	}
	to := r.End
	if to.Year > year {
		to = dates.New(year, time.December, 31)
	}

	out := make([]dates.Date, 0, from.DaysUntil(to)+1)
	for d := from; !d.After(to); d = d.AddDays(1) {
		out = append(out, d)
	}
	return out
}

// Entry pairs a rule with the identifying attributes callers surface alongside
// resolved dates.
type Entry struct {
	ID   string
	Name string
	Rule Rule
}

// ResolvedDate is one concrete day a calendar covers, with its provenance.
type ResolvedDate struct {
	Date    dates.Date
	Name    string
	EntryID string
}

// Resolve expands all entries for the given year, sorted ascending by date.
// Entries with a nil rule are skipped.
func Resolve(entries []Entry, year int) []ResolvedDate {
	out := make([]ResolvedDate, 0, len(entries))
	for _, entry := range entries {
		if entry.Rule == nil {
			continue
		}
		for _, d := range entry.Rule.Dates(year) {
			out = append(out, ResolvedDate{Date: d, Name: entry.Name, EntryID: entry.ID})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// DateSet collects the resolved days of one calendar across one or more years,
// keyed by ISO date string. It is the precomputed form the modifier filter
// consumes.
type DateSet map[string]struct{}

// Add inserts the resolved days into the set.
func (s DateSet) Add(resolved []ResolvedDate) {
	for _, r := range resolved {
		s[r.Date.String()] = struct{}{}
	}
}

// Contains reports whether the set covers the given day.
func (s DateSet) Contains(d dates.Date) bool {
	_, ok := s[d.String()]
	return ok
}

func validMonthDay(year int, month time.Month, day int) bool {
	if month < time.January || month > time.December || day < 1 {
		return false
	}
	normalized := dates.New(year, month, day)
	return normalized.Month == month && normalized.Day == day
}
