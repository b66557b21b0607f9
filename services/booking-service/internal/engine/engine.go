package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/slotbook/slotbook/services/booking-service/internal/availability"
	"github.com/slotbook/slotbook/services/booking-service/internal/policy"
)

var (
	// ErrNotFound is what stores return for missing rows; the engine maps
	// it to the eligibility errors below.
	ErrNotFound = errors.New("not found")

	ErrServiceUnavailable  = errors.New("service unavailable for booking")
	ErrProviderNotEligible = errors.New("provider not eligible for service")
	ErrInvalidDate         = errors.New("invalid date")

	// ErrSlotTaken is the commit-time outcome when a re-validated slot is
	// no longer in the available set.
	ErrSlotTaken = errors.New("slot no longer available")
)

// Service is the subset of a bookable service the engine cares about.
type Service struct {
	ID        string
	CompanyID string
	Duration  time.Duration
	Active    bool
	Public    bool
}

// Store is the read surface the engine needs. The booking repository
// implements it both pool-bound and transaction-bound; the tx-bound form
// is what makes commit-time re-validation race safe.
type Store interface {
	ServiceByID(ctx context.Context, companyID, serviceID string) (Service, error)
	ProviderEligible(ctx context.Context, companyID, providerID, serviceID string) (bool, error)
	// BlockingBookings returns PENDING/CONFIRMED booking intervals for the
	// provider overlapping [from, to).
	BlockingBookings(ctx context.Context, providerID string, from, to time.Time) ([]availability.Interval, error)
}

type PolicySource interface {
	Resolve(ctx context.Context, companyID string) (policy.Policy, error)
	WorkingHours(ctx context.Context, providerID string, weekday time.Weekday) ([]policy.ClockRange, error)
}

type Query struct {
	CompanyID  string
	ProviderID string
	ServiceID  string
	Date       string // "2006-01-02", interpreted in the company timezone
}

type Engine struct {
	store    Store
	policies PolicySource
	now      func() time.Time
}

func New(store Store, policies PolicySource, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{store: store, policies: policies, now: now}
}

// Availability computes the bookable slots for one provider+service+day.
// Policy gates (day off, advance window) yield an empty result, not an
// error; only eligibility and infrastructure failures error out.
func (e *Engine) Availability(ctx context.Context, q Query) ([]availability.Slot, error) {
	return e.availability(ctx, e.store, q)
}

// ValidateStart re-runs the availability computation for the day of start
// against the given store and checks that start is still in the available
// set. Called inside the commit transaction with a tx-bound store.
func (e *Engine) ValidateStart(ctx context.Context, store Store, q Query, start time.Time) error {
	if store == nil {
		store = e.store
	}
	pol, err := e.policies.Resolve(ctx, q.CompanyID)
	if err != nil {
		return err
	}
	q.Date = start.In(pol.Location).Format("2006-01-02")

	slots, err := e.availability(ctx, store, q)
	if err != nil {
		return err
	}
	for _, s := range slots {
		if s.Start.Equal(start) {
			return nil
		}
	}
	return ErrSlotTaken
}

func (e *Engine) availability(ctx context.Context, store Store, q Query) ([]availability.Slot, error) {
	svc, err := store.ServiceByID(ctx, q.CompanyID, q.ServiceID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrServiceUnavailable
	}
	if err != nil {
		return nil, err
	}
	if svc.CompanyID != q.CompanyID || !svc.Active || !svc.Public {
		return nil, ErrServiceUnavailable
	}

	eligible, err := store.ProviderEligible(ctx, q.CompanyID, q.ProviderID, q.ServiceID)
	if err != nil {
		return nil, err
	}
	if !eligible {
		return nil, ErrProviderNotEligible
	}

	pol, err := e.policies.Resolve(ctx, q.CompanyID)
	if err != nil {
		return nil, err
	}

	dayStart, err := time.ParseInLocation("2006-01-02", q.Date, pol.Location)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, q.Date)
	}
	dayEnd := dayStart.AddDate(0, 0, 1)

	hours, err := e.policies.WorkingHours(ctx, q.ProviderID, dayStart.Weekday())
	if err != nil {
		return nil, err
	}
	if len(hours) == 0 {
		return nil, nil
	}

	now := e.now()
	minStart := now.Add(pol.MinAdvance)
	maxStart := now.Add(pol.MaxAdvance)

	// Whole-day gates: every slot start falls inside [dayStart, dayEnd),
	// so a day entirely outside the advance window is empty up front.
	if !dayEnd.After(minStart) || dayStart.After(maxStart) {
		return nil, nil
	}

	busy, err := store.BlockingBookings(ctx, q.ProviderID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}

	intervals := make([]availability.Interval, 0, len(hours))
	for _, h := range hours {
		start, end, err := h.Interval(dayStart)
		if err != nil {
			return nil, fmt.Errorf("provider %s working hours: %w", q.ProviderID, err)
		}
		if !end.After(start) {
			continue
		}
		intervals = append(intervals, availability.Interval{Start: start, End: end})
	}

	var out []availability.Slot
	for _, slot := range availability.Candidates(intervals, svc.Duration) {
		if slot.Start.Before(now) {
			continue
		}
		if slot.Start.Before(minStart) || slot.Start.After(maxStart) {
			continue
		}
		if availability.Conflicts(slot, busy, pol.BufferTime) {
			continue
		}
		out = append(out, slot)
	}
	return out, nil
}
