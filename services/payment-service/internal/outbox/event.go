package outbox

import (
	"encoding/json"
	"time"
)

// Topics published by payment-service. booking-service consumes both to
// settle the booking's payment outcome.
const (
	EventCheckoutCompleted = "payments.checkout.completed.v1"
	EventCheckoutExpired   = "payments.checkout.expired.v1"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

type checkoutPayload struct {
	BookingID  string `json:"booking_id"`
	CompanyID  string `json:"company_id"`
	SessionID  string `json:"session_id"`
	OccurredAt string `json:"occurred_at"`
}

func CheckoutCompleted(companyID, bookingID, sessionID string, occurredAt time.Time) (Event, error) {
	return checkoutEvent(EventCheckoutCompleted, companyID, bookingID, sessionID, occurredAt)
}

func CheckoutExpired(companyID, bookingID, sessionID string, occurredAt time.Time) (Event, error) {
	return checkoutEvent(EventCheckoutExpired, companyID, bookingID, sessionID, occurredAt)
}

func checkoutEvent(eventType, companyID, bookingID, sessionID string, occurredAt time.Time) (Event, error) {
	payload, err := json.Marshal(checkoutPayload{
		BookingID:  bookingID,
		CompanyID:  companyID,
		SessionID:  sessionID,
		OccurredAt: occurredAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "checkout_session",
		AggregateID:   bookingID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}
