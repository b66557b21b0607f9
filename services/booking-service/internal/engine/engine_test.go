package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/slotbook/slotbook/services/booking-service/internal/availability"
	"github.com/slotbook/slotbook/services/booking-service/internal/policy"
)

type fakeStore struct {
	services map[string]Service
	eligible map[string]bool
	busy     []availability.Interval
}

func (f *fakeStore) ServiceByID(_ context.Context, companyID, serviceID string) (Service, error) {
	svc, ok := f.services[serviceID]
	if !ok {
		return Service{}, ErrNotFound
	}
	return svc, nil
}

func (f *fakeStore) ProviderEligible(_ context.Context, _, providerID, serviceID string) (bool, error) {
	return f.eligible[providerID+"/"+serviceID], nil
}

func (f *fakeStore) BlockingBookings(_ context.Context, _ string, from, to time.Time) ([]availability.Interval, error) {
	var out []availability.Interval
	for _, b := range f.busy {
		if b.Start.Before(to) && from.Before(b.End) {
			out = append(out, b)
		}
	}
	return out, nil
}

type fakePolicies struct {
	policy policy.Policy
	hours  map[time.Weekday][]policy.ClockRange
}

func (f *fakePolicies) Resolve(context.Context, string) (policy.Policy, error) {
	return f.policy, nil
}

func (f *fakePolicies) WorkingHours(_ context.Context, _ string, wd time.Weekday) ([]policy.ClockRange, error) {
	return f.hours[wd], nil
}

// Monday 2026-03-02 in UTC.
func mon(hour, min int) time.Time {
	return time.Date(2026, 3, 2, hour, min, 0, 0, time.UTC)
}

func newFixture(busy []availability.Interval, pol policy.Policy) (*fakeStore, *fakePolicies) {
	store := &fakeStore{
		services: map[string]Service{
			"svc-1": {ID: "svc-1", CompanyID: "co-1", Duration: 30 * time.Minute, Active: true, Public: true},
		},
		eligible: map[string]bool{"prov-1/svc-1": true},
		busy:     busy,
	}
	if pol.Location == nil {
		pol.Location = time.UTC
	}
	policies := &fakePolicies{
		policy: pol,
		hours: map[time.Weekday][]policy.ClockRange{
			time.Monday: {{Start: "09:00", End: "17:00"}},
		},
	}
	return store, policies
}

func baseQuery() Query {
	return Query{CompanyID: "co-1", ProviderID: "prov-1", ServiceID: "svc-1", Date: "2026-03-02"}
}

func TestAvailabilityOpenDay(t *testing.T) {
	store, policies := newFixture(nil, policy.Policy{MaxAdvance: 30 * 24 * time.Hour})
	e := New(store, policies, func() time.Time { return mon(8, 0) })

	slots, err := e.Availability(context.Background(), baseQuery())
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	if len(slots) != 31 {
		t.Fatalf("got %d slots, want 31", len(slots))
	}
	if !slots[0].Start.Equal(mon(9, 0)) {
		t.Errorf("first slot %v", slots[0].Start)
	}
	last := slots[len(slots)-1]
	if !last.Start.Equal(mon(16, 30)) || !last.End.Equal(mon(17, 0)) {
		t.Errorf("last slot %v-%v", last.Start, last.End)
	}
}

func TestAvailabilityBufferExcludesAroundBooking(t *testing.T) {
	busy := []availability.Interval{{Start: mon(10, 0), End: mon(10, 30)}}
	store, policies := newFixture(busy, policy.Policy{
		BufferTime: 15 * time.Minute,
		MaxAdvance: 30 * 24 * time.Hour,
	})
	e := New(store, policies, func() time.Time { return mon(8, 0) })

	slots, err := e.Availability(context.Background(), baseQuery())
	if err != nil {
		t.Fatalf("availability: %v", err)
	}

	starts := map[string]bool{}
	for _, s := range slots {
		starts[s.Start.Format("15:04")] = true
	}
	for _, excluded := range []string{"09:45", "10:00", "10:15", "10:30"} {
		if starts[excluded] {
			t.Errorf("slot %s should be excluded by the buffered booking", excluded)
		}
	}
	for _, included := range []string{"09:30", "10:45"} {
		if !starts[included] {
			t.Errorf("slot %s should remain available", included)
		}
	}
}

func TestAvailabilityMinAdvanceWindow(t *testing.T) {
	store, policies := newFixture(nil, policy.Policy{
		MinAdvance: 60 * time.Minute,
		MaxAdvance: 30 * 24 * time.Hour,
	})
	e := New(store, policies, func() time.Time { return mon(9, 30) })

	slots, err := e.Availability(context.Background(), baseQuery())
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	if len(slots) == 0 {
		t.Fatal("expected slots from 10:30 onward")
	}
	if !slots[0].Start.Equal(mon(10, 30)) {
		t.Fatalf("first slot %v, want 10:30", slots[0].Start)
	}
}

func TestAvailabilityMaxAdvanceGatesWholeDay(t *testing.T) {
	store, policies := newFixture(nil, policy.Policy{MaxAdvance: 24 * time.Hour})
	// Querying Monday from the previous Monday: whole day beyond the window.
	e := New(store, policies, func() time.Time { return mon(8, 0).AddDate(0, 0, -7) })

	slots, err := e.Availability(context.Background(), baseQuery())
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("got %d slots, want 0", len(slots))
	}
}

func TestAvailabilityPastDayIsEmpty(t *testing.T) {
	store, policies := newFixture(nil, policy.Policy{MaxAdvance: 30 * 24 * time.Hour})
	e := New(store, policies, func() time.Time { return mon(8, 0).AddDate(0, 0, 3) })

	slots, err := e.Availability(context.Background(), baseQuery())
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("got %d slots, want 0", len(slots))
	}
}

func TestAvailabilityDayOff(t *testing.T) {
	store, policies := newFixture(nil, policy.Policy{MaxAdvance: 30 * 24 * time.Hour})
	e := New(store, policies, func() time.Time { return mon(8, 0) })

	q := baseQuery()
	q.Date = "2026-03-03" // Tuesday: no working hours row
	slots, err := e.Availability(context.Background(), q)
	if err != nil {
		t.Fatalf("day off must not error: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("got %d slots, want 0", len(slots))
	}
}

func TestAvailabilityServiceGates(t *testing.T) {
	store, policies := newFixture(nil, policy.Policy{MaxAdvance: 30 * 24 * time.Hour})
	e := New(store, policies, func() time.Time { return mon(8, 0) })

	q := baseQuery()
	q.ServiceID = "missing"
	if _, err := e.Availability(context.Background(), q); !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("missing service: got %v", err)
	}

	store.services["svc-2"] = Service{ID: "svc-2", CompanyID: "co-1", Duration: 30 * time.Minute, Active: false, Public: true}
	store.eligible["prov-1/svc-2"] = true
	q.ServiceID = "svc-2"
	if _, err := e.Availability(context.Background(), q); !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("inactive service: got %v", err)
	}

	store.services["svc-3"] = Service{ID: "svc-3", CompanyID: "co-1", Duration: 30 * time.Minute, Active: true, Public: false}
	store.eligible["prov-1/svc-3"] = true
	q.ServiceID = "svc-3"
	if _, err := e.Availability(context.Background(), q); !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("private service: got %v", err)
	}
}

func TestAvailabilityProviderNotEligible(t *testing.T) {
	store, policies := newFixture(nil, policy.Policy{MaxAdvance: 30 * 24 * time.Hour})
	e := New(store, policies, func() time.Time { return mon(8, 0) })

	q := baseQuery()
	q.ProviderID = "prov-2"
	if _, err := e.Availability(context.Background(), q); !errors.Is(err, ErrProviderNotEligible) {
		t.Fatalf("got %v, want ErrProviderNotEligible", err)
	}
}

func TestAvailabilityInvalidDate(t *testing.T) {
	store, policies := newFixture(nil, policy.Policy{MaxAdvance: 30 * 24 * time.Hour})
	e := New(store, policies, func() time.Time { return mon(8, 0) })

	q := baseQuery()
	q.Date = "02-03-2026"
	if _, err := e.Availability(context.Background(), q); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("got %v, want ErrInvalidDate", err)
	}
}

func TestAvailabilityIdempotentRead(t *testing.T) {
	busy := []availability.Interval{{Start: mon(11, 0), End: mon(11, 30)}}
	store, policies := newFixture(busy, policy.Policy{
		BufferTime: 15 * time.Minute,
		MaxAdvance: 30 * 24 * time.Hour,
	})
	e := New(store, policies, func() time.Time { return mon(8, 0) })

	first, err := e.Availability(context.Background(), baseQuery())
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	second, err := e.Availability(context.Background(), baseQuery())
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if !first[i].Start.Equal(second[i].Start) || !first[i].End.Equal(second[i].End) {
			t.Fatalf("slot %d differs: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestAvailabilityCompanyTimezone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	store, policies := newFixture(nil, policy.Policy{
		MaxAdvance: 30 * 24 * time.Hour,
		Location:   loc,
	})
	e := New(store, policies, func() time.Time { return mon(8, 0) })

	slots, err := e.Availability(context.Background(), baseQuery())
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	if len(slots) == 0 {
		t.Fatal("expected slots")
	}
	// 09:00 wall clock in New York, not UTC.
	want := time.Date(2026, 3, 2, 9, 0, 0, 0, loc)
	if !slots[0].Start.Equal(want) {
		t.Fatalf("first slot %v, want %v", slots[0].Start, want)
	}
}

func TestValidateStart(t *testing.T) {
	store, policies := newFixture(nil, policy.Policy{MaxAdvance: 30 * 24 * time.Hour})
	e := New(store, policies, func() time.Time { return mon(8, 0) })
	q := baseQuery()

	if err := e.ValidateStart(context.Background(), store, q, mon(14, 0)); err != nil {
		t.Fatalf("open slot: %v", err)
	}

	// A commit landed between read and re-validation.
	store.busy = append(store.busy, availability.Interval{Start: mon(14, 0), End: mon(14, 30)})
	if err := e.ValidateStart(context.Background(), store, q, mon(14, 0)); !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("got %v, want ErrSlotTaken", err)
	}
}

func TestValidateStartRejectsOffGrid(t *testing.T) {
	store, policies := newFixture(nil, policy.Policy{MaxAdvance: 30 * 24 * time.Hour})
	e := New(store, policies, func() time.Time { return mon(8, 0) })

	err := e.ValidateStart(context.Background(), store, baseQuery(), mon(14, 5))
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("got %v, want ErrSlotTaken for off-grid start", err)
	}
}
