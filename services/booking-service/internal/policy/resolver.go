package policy

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotConfigured is returned by a Source when the tenant has no settings
// row. The resolver absorbs it into defaults; callers never see it.
var ErrNotConfigured = errors.New("booking policy not configured")

// Defaults applied when a tenant has not configured booking settings.
const (
	DefaultBufferTime = 0
	DefaultMinAdvance = 60 * time.Minute
	DefaultMaxAdvance = 10080 * time.Minute // 7 days
)

// Policy is the resolved, validated booking policy for one tenant.
type Policy struct {
	BufferTime time.Duration
	MinAdvance time.Duration
	MaxAdvance time.Duration
	Location   *time.Location
}

// RawPolicy is the stored shape: minutes and an IANA zone name.
type RawPolicy struct {
	BufferTimeMinutes int
	MinAdvanceMinutes int
	MaxAdvanceMinutes int
	Timezone          string
}

// ClockRange is a wall-clock working-hours range, "HH:mm" inclusive start,
// exclusive end.
type ClockRange struct {
	Start string
	End   string
}

// Interval anchors the range onto the calendar day of `day`, in day's
// location.
func (c ClockRange) Interval(day time.Time) (time.Time, time.Time, error) {
	sh, sm, err := ParseClock(c.Start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	eh, em, err := ParseClock(c.End)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	y, m, d := day.Date()
	loc := day.Location()
	return time.Date(y, m, d, sh, sm, 0, 0, loc), time.Date(y, m, d, eh, em, 0, 0, loc), nil
}

// ParseClock parses "HH:mm" (24h, zero-padded).
func ParseClock(s string) (hour, min int, err error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, 0, fmt.Errorf("invalid clock value %q", s)
	}
	for _, i := range []int{0, 1, 3, 4} {
		if s[i] < '0' || s[i] > '9' {
			return 0, 0, fmt.Errorf("invalid clock value %q", s)
		}
	}
	hour = int(s[0]-'0')*10 + int(s[1]-'0')
	min = int(s[3]-'0')*10 + int(s[4]-'0')
	if hour > 23 || min > 59 {
		return 0, 0, fmt.Errorf("invalid clock value %q", s)
	}
	return hour, min, nil
}

// Source provides raw tenant configuration. The default build reads the
// shared database; split deployments swap in the gRPC-backed source.
type Source interface {
	BookingPolicy(ctx context.Context, companyID string) (RawPolicy, error)
	WorkingHours(ctx context.Context, providerID string, weekday time.Weekday) ([]ClockRange, error)
}

type Resolver struct {
	source Source
}

func NewResolver(source Source) *Resolver {
	return &Resolver{source: source}
}

// Resolve returns the tenant's booking policy. A missing settings row is
// not an error: documented defaults apply. An unknown timezone is an error
// (it means corrupt tenant config, not absence of config).
func (r *Resolver) Resolve(ctx context.Context, companyID string) (Policy, error) {
	raw, err := r.source.BookingPolicy(ctx, companyID)
	if errors.Is(err, ErrNotConfigured) {
		return Policy{
			BufferTime: DefaultBufferTime,
			MinAdvance: DefaultMinAdvance,
			MaxAdvance: DefaultMaxAdvance,
			Location:   time.UTC,
		}, nil
	}
	if err != nil {
		return Policy{}, err
	}

	loc := time.UTC
	if raw.Timezone != "" {
		loc, err = time.LoadLocation(raw.Timezone)
		if err != nil {
			return Policy{}, fmt.Errorf("company %s: %w", companyID, err)
		}
	}

	pol := Policy{
		BufferTime: time.Duration(raw.BufferTimeMinutes) * time.Minute,
		MinAdvance: time.Duration(raw.MinAdvanceMinutes) * time.Minute,
		MaxAdvance: time.Duration(raw.MaxAdvanceMinutes) * time.Minute,
		Location:   loc,
	}
	if pol.BufferTime < 0 {
		pol.BufferTime = 0
	}
	if pol.MinAdvance < 0 {
		pol.MinAdvance = 0
	}
	if pol.MaxAdvance <= 0 {
		pol.MaxAdvance = DefaultMaxAdvance
	}
	return pol, nil
}

// WorkingHours returns the provider's ordered ranges for the weekday.
// An empty slice with nil error means a day off.
func (r *Resolver) WorkingHours(ctx context.Context, providerID string, weekday time.Weekday) ([]ClockRange, error) {
	return r.source.WorkingHours(ctx, providerID, weekday)
}
