package outbox

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

// Event is a row of the transactional outbox. Rows are inserted in the same
// database transaction as the state change they announce and published
// asynchronously by the Relay.
type Event struct {
	ID            int64
	AggregateType string
	AggregateID   string
	Topic         string
	Type          string
	Payload       []byte
	Traceparent   string
	CreatedAt     time.Time
	Status        Status
	RetryCount    int
	LastError     *string
}
