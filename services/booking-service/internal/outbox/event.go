package outbox

import (
	"encoding/json"
	"time"

	"github.com/slotbook/slotbook/services/booking-service/internal/model"
)

const (
	EventBookingCreated   = "booking.created.v1"
	EventBookingCancelled = "booking.cancelled.v1"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType (event per topic).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

type bookingPayload struct {
	BookingID   string    `json:"booking_id"`
	CompanyID   string    `json:"company_id"`
	ProviderID  string    `json:"provider_id"`
	ServiceID   string    `json:"service_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Status      string    `json:"status"`
	ClientName  string    `json:"client_name,omitempty"`
	ClientEmail string    `json:"client_email,omitempty"`
	ClientPhone string    `json:"client_phone,omitempty"`
	Reason      string    `json:"reason,omitempty"`
}

func BookingCreated(b model.Booking) (Event, error) {
	return bookingEvent(EventBookingCreated, b, "")
}

func BookingCancelled(b model.Booking, reason string) (Event, error) {
	return bookingEvent(EventBookingCancelled, b, reason)
}

func bookingEvent(eventType string, b model.Booking, reason string) (Event, error) {
	payload, err := json.Marshal(bookingPayload{
		BookingID:   b.ID,
		CompanyID:   b.CompanyID,
		ProviderID:  b.ProviderID,
		ServiceID:   b.ServiceID,
		StartTime:   b.StartTime,
		EndTime:     b.EndTime,
		Status:      string(b.Status),
		ClientName:  b.ClientName,
		ClientEmail: b.ClientEmail,
		ClientPhone: b.ClientPhone,
		Reason:      reason,
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "booking",
		AggregateID:   b.ID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}
