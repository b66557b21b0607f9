package jobs

import (
	"testing"
	"time"
)

func TestReminderTime(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	lead := 24 * time.Hour

	tests := []struct {
		name   string
		start  time.Time
		wantAt time.Time
		wantOK bool
	}{
		{
			name:   "start far out gets lead before start",
			start:  now.Add(72 * time.Hour),
			wantAt: now.Add(48 * time.Hour),
			wantOK: true,
		},
		{
			name:   "start inside lead window reminds immediately",
			start:  now.Add(2 * time.Hour),
			wantAt: now,
			wantOK: true,
		},
		{
			name:   "start in the past schedules nothing",
			start:  now.Add(-time.Minute),
			wantOK: false,
		},
		{
			name:   "start exactly now schedules nothing",
			start:  now,
			wantOK: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			at, ok := ReminderTime(tt.start, lead, now)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && !at.Equal(tt.wantAt) {
				t.Fatalf("remindAt = %v, want %v", at, tt.wantAt)
			}
		})
	}
}
