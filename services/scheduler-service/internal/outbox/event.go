package outbox

const (
	// EventReminderDue is consumed by notification-service.
	EventReminderDue = "scheduler.reminder.due.v1"
	// EventReminderDLQ carries jobs that exhausted their attempts.
	EventReminderDLQ = "scheduler.reminder.dlq.v1"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType (event per topic).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}
