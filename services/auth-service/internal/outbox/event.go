package outbox

// Topics published by auth-service.
const (
	EventUserCreated = "auth.user.created.v1"
	EventAudit       = "auth.audit.v1"
)

type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}
