package scheduling

import (
	"reflect"
	"testing"

	"github.com/example/intercity-bus/internal/calendar"
	"github.com/example/intercity-bus/internal/dates"
)

func isoDates(values ...string) []dates.Date {
	out := make([]dates.Date, 0, len(values))
	for _, v := range values {
		out = append(out, dates.MustParse(v))
	}
	return out
}

func dateSet(values ...string) calendar.DateSet {
	set := make(calendar.DateSet, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func TestApplyModifiersExcludeCalendar(t *testing.T) {
	t.Parallel()

	candidates := isoDates("2026-12-24", "2026-12-25", "2026-12-26")
	resolved := map[string]calendar.DateSet{
		"cal-holidays": dateSet("2026-12-25"),
	}

	got := ApplyModifiers(candidates, []Modifier{ExcludeCalendar{CalendarID: "cal-holidays"}}, resolved)
	want := isoDates("2026-12-24", "2026-12-26")
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("exclude filter = %v, want %v", got, want)
	}
}

func TestApplyModifiersIncludeOnly(t *testing.T) {
	t.Parallel()

	candidates := isoDates("2026-09-01", "2026-09-02", "2026-09-05")
	resolved := map[string]calendar.DateSet{
		"cal-school": dateSet("2026-09-01", "2026-09-02"),
	}

	got := ApplyModifiers(candidates, []Modifier{IncludeOnlyCalendar{CalendarID: "cal-school"}}, resolved)
	want := isoDates("2026-09-01", "2026-09-02")
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("include_only filter = %v, want %v", got, want)
	}
}

func TestApplyModifiersInOrder(t *testing.T) {
	t.Parallel()

	candidates := isoDates("2026-05-01", "2026-05-02", "2026-05-03", "2026-05-04")
	resolved := map[string]calendar.DateSet{
		"cal-a": dateSet("2026-05-01", "2026-05-02", "2026-05-03"),
	}

	mods := []Modifier{
		IncludeOnlyCalendar{CalendarID: "cal-a"},
		ExcludeDates{Dates: isoDates("2026-05-02")},
	}

	got := ApplyModifiers(candidates, mods, resolved)
	want := isoDates("2026-05-01", "2026-05-03")
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("chained modifiers = %v, want %v", got, want)
	}
}

func TestApplyModifiersDanglingCalendarIsNoOp(t *testing.T) {
	t.Parallel()

	candidates := isoDates("2026-01-01", "2026-01-02")

	mods := []Modifier{
		ExcludeCalendar{CalendarID: "cal-missing"},
		// include_only with an unresolved calendar keeps everything, matching
		// exclude's no-op rather than dropping every date.
		IncludeOnlyCalendar{CalendarID: "cal-also-missing"},
	}

	got := ApplyModifiers(candidates, mods, map[string]calendar.DateSet{})
	if !reflect.DeepEqual(got, candidates) {
		t.Fatalf("dangling calendar refs changed dates: %v", got)
	}
}

func TestModifiersRoundTrip(t *testing.T) {
	t.Parallel()

	mods := []Modifier{
		ExcludeCalendar{CalendarID: "cal-1"},
		IncludeOnlyCalendar{CalendarID: "cal-2"},
		ExcludeDates{Dates: isoDates("2026-07-01", "2026-07-02")},
	}

	encoded, err := EncodeModifiers(mods)
	if err != nil {
		t.Fatalf("EncodeModifiers returned error: %v", err)
	}

	decoded, err := DecodeModifiers(encoded)
	if err != nil {
		t.Fatalf("DecodeModifiers returned error: %v", err)
	}

	if !reflect.DeepEqual(decoded, mods) {
		t.Fatalf("round trip mismatch:\n got %#v\nwant %#v", decoded, mods)
	}
}

func TestDecodeModifiersSkipsUnknownTypes(t *testing.T) {
	t.Parallel()

	payload := []byte(`[{"type":"exclude","calendar_id":"cal-1"},{"type":"mystery"}]`)

	decoded, err := DecodeModifiers(payload)
	if err != nil {
		t.Fatalf("DecodeModifiers returned error: %v", err)
	}
	if len(decoded) != 1 {
		t.Fatalf("decoded %d modifiers, want 1: %#v", len(decoded), decoded)
	}
}

func TestDecodeModifiersEmptyPayload(t *testing.T) {
	t.Parallel()

	decoded, err := DecodeModifiers(nil)
	if err != nil || decoded != nil {
		t.Fatalf("DecodeModifiers(nil) = %v, %v", decoded, err)
	}
}

func TestCalendarRefs(t *testing.T) {
	t.Parallel()

	mods := []Modifier{
		ExcludeCalendar{CalendarID: "cal-1"},
		ExcludeDates{Dates: isoDates("2026-07-01")},
		IncludeOnlyCalendar{CalendarID: "cal-2"},
		ExcludeCalendar{CalendarID: "cal-1"},
	}

	got := CalendarRefs(mods)
	if !reflect.DeepEqual(got, []string{"cal-1", "cal-2"}) {
		t.Fatalf("CalendarRefs = %v", got)
	}
}
