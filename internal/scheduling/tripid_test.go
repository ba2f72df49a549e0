package scheduling

import (
	"testing"

	"github.com/example/intercity-bus/internal/dates"
)

func TestParseTripID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    TripID
		wantErr bool
	}{
		{
			name:  "virtual",
			input: "virtual:sched-123:2026-04-01",
			want:  VirtualID{ScheduleID: "sched-123", Date: dates.MustParse("2026-04-01")},
		},
		{
			name:  "virtual with uuid schedule id",
			input: "virtual:6ba7b810-9dad-11d1-80b4-00c04fd430c8:2026-12-24",
			want:  VirtualID{ScheduleID: "6ba7b810-9dad-11d1-80b4-00c04fd430c8", Date: dates.MustParse("2026-12-24")},
		},
		{
			name:  "materialized",
			input: "trip-789",
			want:  MaterializedID{TripID: "trip-789"},
		},
		{name: "empty", input: "", wantErr: true},
		{name: "blank", input: "   ", wantErr: true},
		{name: "virtual missing date", input: "virtual:sched-123", wantErr: true},
		{name: "virtual bad date", input: "virtual:sched-123:not-a-date", wantErr: true},
		{name: "virtual empty schedule", input: "virtual::2026-04-01", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseTripID(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseTripID(%q) succeeded with %v, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTripID(%q) returned error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Fatalf("ParseTripID(%q) = %#v, want %#v", tt.input, got, tt.want)
			}
		})
	}
}

func TestTripIDRoundTrip(t *testing.T) {
	t.Parallel()

	virtual := VirtualID{ScheduleID: "sched-1", Date: dates.MustParse("2026-06-15")}
	if virtual.String() != "virtual:sched-1:2026-06-15" {
		t.Fatalf("virtual id wire form = %q", virtual.String())
	}

	parsed, err := ParseTripID(virtual.String())
	if err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	if parsed != virtual {
		t.Fatalf("round trip = %#v, want %#v", parsed, virtual)
	}
}
