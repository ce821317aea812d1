package events

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"opsapi/internal/constants"
	"opsapi/internal/logger"
	"opsapi/internal/outbox"
	"opsapi/pkg/logging"
	"opsapi/pkg/metrics"
	"opsapi/pkg/models"
)

// Source identifies this service in v2+ envelopes. Version-1 consumers never
// see it.
const Source = "ops-api"

// Publisher appends event envelopes to the outbox inside the caller's
// transaction. It never touches the network; if the caller's transaction
// rolls back, the event was never visible.
type Publisher struct {
	outbox outbox.Repository
	logger logger.Logger
}

func NewPublisher(repo outbox.Repository, log logger.Logger) *Publisher {
	return &Publisher{
		outbox: repo,
		logger: log,
	}
}

// CustomerCreated builds a CUSTOMER_CREATED envelope and enqueues it in the
// same transaction as the customer insert. A marshal or insert failure
// propagates to the caller and rolls the whole transaction back; an event is
// never silently lost.
func (p *Publisher) CustomerCreated(ctx context.Context, tx *sql.Tx, customerID uuid.UUID, name, email string) error {
	correlationID := logging.GetCorrelationID(ctx)

	envelope := &models.Envelope{
		EventID:       uuid.New().String(),
		Type:          constants.EventTypeCustomerCreated,
		Timestamp:     time.Now().Format(time.RFC3339Nano),
		CustomerID:    customerID.String(),
		Name:          name,
		Email:         email,
		CorrelationID: correlationID,
		SchemaVersion: models.CurrentSchemaVersion,
	}
	if envelope.SchemaVersion >= 2 {
		envelope.Source = Source
	}

	payload, err := envelope.Encode()
	if err != nil {
		return fmt.Errorf("failed to build customer created event: %w", err)
	}

	event := &outbox.Event{
		ID:            uuid.New(),
		AggregateType: constants.AggregateTypeCustomer,
		AggregateID:   customerID,
		EventType:     constants.EventTypeCustomerCreated,
		Payload:       string(payload),
		CorrelationID: correlationID,
	}

	if err := p.outbox.Insert(ctx, tx, event); err != nil {
		return err
	}

	metrics.OutboxEnqueuedTotal.WithLabelValues(constants.EventTypeCustomerCreated).Inc()
	p.logger.InfowCtx(ctx, "Outbox event enqueued",
		"event_type", constants.EventTypeCustomerCreated,
		"aggregate_id", customerID,
		"schema_version", envelope.SchemaVersion,
	)

	return nil
}
