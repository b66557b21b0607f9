package model

import (
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
	StatusCompleted Status = "COMPLETED"
	StatusNoShow    Status = "NO_SHOW"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

var ErrInvalidTransition = errors.New("invalid status transition")

// allowedTransitions encodes the booking lifecycle. CANCELLED, COMPLETED
// and NO_SHOW are terminal.
var allowedTransitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled, StatusNoShow},
}

func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted, StatusNoShow:
		return true
	}
	return false
}

func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Booking struct {
	ID            string
	CompanyID     string
	ProviderID    string
	ServiceID     string
	ClientName    string
	ClientEmail   string
	ClientPhone   string
	Notes         string
	StartTime     time.Time
	EndTime       time.Time
	Status        Status
	PaymentStatus PaymentStatus
	CancelledAt   *time.Time
	CancelReason  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Transition moves the booking to the requested status, enforcing the
// lifecycle edges. Cancellation stamps CancelledAt.
func (b *Booking) Transition(to Status, at time.Time) error {
	if !CanTransition(b.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, to)
	}
	b.Status = to
	b.UpdatedAt = at
	if to == StatusCancelled {
		t := at
		b.CancelledAt = &t
	}
	return nil
}

// Blocking reports whether the booking occupies its slot for availability
// purposes. Cancelled and no-show bookings free the slot.
func (b *Booking) Blocking() bool {
	return b.Status == StatusPending || b.Status == StatusConfirmed
}
