package scheduling

import (
	"testing"
	"time"

	"github.com/example/intercity-bus/internal/dates"
)

func TestParseTimeOfDay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    TimeOfDay
		wantErr bool
	}{
		{input: "08:30", want: TimeOfDay{Hour: 8, Minute: 30}},
		{input: "00:00", want: TimeOfDay{}},
		{input: "23:59", want: TimeOfDay{Hour: 23, Minute: 59}},
		{input: "24:00", wantErr: true},
		{input: "08:60", wantErr: true},
		{input: "8am", wantErr: true},
		{input: "", wantErr: true},
		{input: "08:30xx", wantErr: true},
		{input: "8:5", wantErr: true},
		{input: "8:30", wantErr: true},
		{input: "08-30", wantErr: true},
		{input: "-8:30", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseTimeOfDay(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseTimeOfDay(%q) succeeded, want error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTimeOfDay(%q) returned error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTimeOfDay(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestTimelineSameDay(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("Europe/Warsaw")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	day := dates.MustParse("2026-03-02")
	dep, arr := Timeline(day, MustParseTimeOfDay("08:00"), MustParseTimeOfDay("11:30"), loc)

	if dep.Day() != 2 || arr.Day() != 2 {
		t.Fatalf("same-day trip crossed midnight: dep=%v arr=%v", dep, arr)
	}
	if arr.Sub(dep) != 3*time.Hour+30*time.Minute {
		t.Fatalf("duration = %v", arr.Sub(dep))
	}
}

func TestTimelineOvernightRollsArrival(t *testing.T) {
	t.Parallel()

	day := dates.MustParse("2026-03-02")
	dep, arr := Timeline(day, MustParseTimeOfDay("23:30"), MustParseTimeOfDay("00:15"), time.UTC)

	if arr.Sub(dep) != 45*time.Minute {
		t.Fatalf("overnight duration = %v, want 45m", arr.Sub(dep))
	}
	if arr.Day() != 3 {
		t.Fatalf("arrival should land on the next day: %v", arr)
	}
}

func TestTimelineAcrossSpringForward(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("Europe/Warsaw")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	// CET->CEST transition night: clocks jump 02:00 -> 03:00 on 2026-03-29.
	day := dates.MustParse("2026-03-29")
	dep, arr := Timeline(day, MustParseTimeOfDay("01:30"), MustParseTimeOfDay("03:30"), loc)

	// Wall-clock span of two hours is only one elapsed hour that night.
	if arr.Sub(dep) != time.Hour {
		t.Fatalf("spring-forward duration = %v, want 1h", arr.Sub(dep))
	}
}
