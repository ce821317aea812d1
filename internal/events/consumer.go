package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"opsapi/internal/logger"
	"opsapi/pkg/logging"
	"opsapi/pkg/metrics"
	"opsapi/pkg/models"
)

// Consumer applies broker deliveries exactly once. The broker delivers
// at-least-once; the ledger insert converts that into exactly-once effect by
// winning or losing the unique event_id constraint before any effect runs.
type Consumer struct {
	db     *sql.DB
	ledger Ledger
	logger logger.Logger
}

func NewConsumer(db *sql.DB, ledger Ledger, log logger.Logger) *Consumer {
	return &Consumer{
		db:     db,
		ledger: ledger,
		logger: log,
	}
}

// HandleMessage is the broker handler. Structurally invalid payloads are
// logged and dropped (returning nil so they are never redelivered); a
// processing failure returns an error so the broker retries, which is safe to
// replay because the ledger insert dedups the redelivery.
func (c *Consumer) HandleMessage(ctx context.Context, key, value []byte) error {
	envelope, err := models.DecodeEnvelope(value)
	if err != nil {
		metrics.EventsDroppedTotal.WithLabelValues("parse_error").Inc()
		c.logger.WarnwCtx(ctx, "Dropping malformed event",
			"error", err,
			"payload", string(value),
		)
		return nil
	}

	if envelope.EventID == "" {
		metrics.EventsDroppedTotal.WithLabelValues("missing_event_id").Inc()
		c.logger.WarnwCtx(ctx, "Dropping event without event id",
			"payload", string(value),
		)
		return nil
	}

	ctx = logging.WithEventID(ctx, envelope.EventID)
	if envelope.CorrelationID != "" {
		ctx = logging.WithCorrelationID(ctx, envelope.CorrelationID)
	}

	start := time.Now()
	eventType := envelope.Type
	if eventType == "" {
		eventType = "UNKNOWN"
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin consumer transaction: %w", err)
	}
	defer tx.Rollback()

	err = c.ledger.Record(ctx, tx, &ProcessedEvent{
		EventID:       envelope.EventID,
		EventType:     eventType,
		CorrelationID: envelope.CorrelationID,
	})
	if errors.Is(err, ErrDuplicate) {
		metrics.EventsDuplicateTotal.WithLabelValues(eventType).Inc()
		c.logger.InfowCtx(ctx, "Duplicate event ignored",
			"event_type", eventType,
			"schema_version", envelope.SchemaVersion,
		)
		return nil
	}
	if err != nil {
		return err
	}

	c.applyEffect(ctx, envelope, eventType)

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit consumer transaction: %w", err)
	}

	metrics.EventsProcessedTotal.WithLabelValues(eventType, "ok").Inc()
	metrics.EventProcessingDuration.WithLabelValues(eventType).Observe(float64(time.Since(start).Milliseconds()))
	return nil
}

// applyEffect branches on the schema version. Versions above
// models.MaxKnownSchemaVersion are handled with the base field set so future
// producers do not break old consumers.
func (c *Consumer) applyEffect(ctx context.Context, envelope *models.Envelope, eventType string) {
	switch {
	case envelope.SchemaVersion == 1:
		c.logger.InfowCtx(ctx, "Event processed",
			"event_type", eventType,
			"schema_version", 1,
			"customer_id", envelope.CustomerID,
			"name", envelope.Name,
			"email", envelope.Email,
		)
	case envelope.SchemaVersion <= models.MaxKnownSchemaVersion:
		c.logger.InfowCtx(ctx, "Event processed",
			"event_type", eventType,
			"schema_version", envelope.SchemaVersion,
			"customer_id", envelope.CustomerID,
			"name", envelope.Name,
			"email", envelope.Email,
			"source", envelope.Source,
		)
	default:
		c.logger.WarnwCtx(ctx, "Unknown schema version, processing base fields only",
			"event_type", eventType,
			"schema_version", envelope.SchemaVersion,
			"customer_id", envelope.CustomerID,
		)
	}
}
