package outbox

import (
	"time"

	"github.com/google/uuid"
)

// Event is one row of the outbox_events table. A row with a nil SentAt is
// pending; once SentAt is set the row is never relayed again.
type Event struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       string
	CorrelationID string
	CreatedAt     time.Time
	SentAt        *time.Time
	Attempts      int
	LastError     *string
}

func (e *Event) Pending() bool {
	return e.SentAt == nil
}
