package model

import (
	"errors"
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusNoShow, false},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusNoShow, true},
		{StatusConfirmed, StatusPending, false},
		{StatusCancelled, StatusPending, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusNoShow, StatusConfirmed, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTransitionStampsCancelledAt(t *testing.T) {
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	b := &Booking{Status: StatusPending}

	if err := b.Transition(StatusCancelled, at); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if b.Status != StatusCancelled {
		t.Fatalf("status = %s", b.Status)
	}
	if b.CancelledAt == nil || !b.CancelledAt.Equal(at) {
		t.Fatalf("cancelled_at = %v", b.CancelledAt)
	}
}

func TestTransitionRejectsInvalidEdge(t *testing.T) {
	b := &Booking{Status: StatusCompleted}
	err := b.Transition(StatusCancelled, time.Now())
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("got %v, want ErrInvalidTransition", err)
	}
	if b.Status != StatusCompleted {
		t.Fatalf("status mutated to %s", b.Status)
	}
}

func TestBlocking(t *testing.T) {
	for status, want := range map[Status]bool{
		StatusPending:   true,
		StatusConfirmed: true,
		StatusCancelled: false,
		StatusCompleted: false,
		StatusNoShow:    false,
	} {
		b := &Booking{Status: status}
		if got := b.Blocking(); got != want {
			t.Errorf("Blocking(%s) = %v, want %v", status, got, want)
		}
	}
}
