package policy

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeSource struct {
	policy    RawPolicy
	policyErr error
	hours     map[time.Weekday][]ClockRange
}

func (f *fakeSource) BookingPolicy(context.Context, string) (RawPolicy, error) {
	return f.policy, f.policyErr
}

func (f *fakeSource) WorkingHours(_ context.Context, _ string, wd time.Weekday) ([]ClockRange, error) {
	return f.hours[wd], nil
}

func TestResolveDefaultsWhenNotConfigured(t *testing.T) {
	r := NewResolver(&fakeSource{policyErr: ErrNotConfigured})

	pol, err := r.Resolve(context.Background(), "company-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if pol.BufferTime != 0 {
		t.Errorf("buffer = %v", pol.BufferTime)
	}
	if pol.MinAdvance != 60*time.Minute {
		t.Errorf("min advance = %v", pol.MinAdvance)
	}
	if pol.MaxAdvance != 10080*time.Minute {
		t.Errorf("max advance = %v", pol.MaxAdvance)
	}
	if pol.Location != time.UTC {
		t.Errorf("location = %v", pol.Location)
	}
}

func TestResolveConfigured(t *testing.T) {
	r := NewResolver(&fakeSource{policy: RawPolicy{
		BufferTimeMinutes: 15,
		MinAdvanceMinutes: 120,
		MaxAdvanceMinutes: 20160,
		Timezone:          "Europe/Sofia",
	}})

	pol, err := r.Resolve(context.Background(), "company-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if pol.BufferTime != 15*time.Minute || pol.MinAdvance != 120*time.Minute {
		t.Fatalf("unexpected policy: %+v", pol)
	}
	if pol.Location.String() != "Europe/Sofia" {
		t.Fatalf("location = %v", pol.Location)
	}
}

func TestResolveUnknownTimezone(t *testing.T) {
	r := NewResolver(&fakeSource{policy: RawPolicy{Timezone: "Mars/Olympus"}})
	if _, err := r.Resolve(context.Background(), "company-1"); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}

func TestResolvePropagatesSourceErrors(t *testing.T) {
	boom := errors.New("db down")
	r := NewResolver(&fakeSource{policyErr: boom})
	if _, err := r.Resolve(context.Background(), "company-1"); !errors.Is(err, boom) {
		t.Fatalf("got %v, want wrapped source error", err)
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		hour    int
		min     int
		wantErr bool
	}{
		{"09:00", 9, 0, false},
		{"23:59", 23, 59, false},
		{"00:00", 0, 0, false},
		{"24:00", 0, 0, true},
		{"09:60", 0, 0, true},
		{"9:00", 0, 0, true},
		{"0900", 0, 0, true},
		{"", 0, 0, true},
	}
	for _, tt := range tests {
		h, m, err := ParseClock(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseClock(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseClock(%q): %v", tt.in, err)
			continue
		}
		if h != tt.hour || m != tt.min {
			t.Errorf("ParseClock(%q) = %d:%d", tt.in, h, m)
		}
	}
}

func TestClockRangeInterval(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, loc)

	start, end, err := ClockRange{Start: "09:00", End: "17:30"}.Interval(day)
	if err != nil {
		t.Fatalf("interval: %v", err)
	}
	if start.Hour() != 9 || start.Minute() != 0 || start.Location() != loc {
		t.Fatalf("start = %v", start)
	}
	if end.Hour() != 17 || end.Minute() != 30 {
		t.Fatalf("end = %v", end)
	}
	y, m, d := start.Date()
	if y != 2026 || m != time.March || d != 2 {
		t.Fatalf("start anchored to wrong day: %v", start)
	}
}
