package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// ErrDuplicate signals that the ledger already holds a row for this event id.
// It is the dedup signal, not a failure.
var ErrDuplicate = errors.New("event already processed")

// ProcessedEvent is one row of the processed_events ledger. Rows are created
// once and never updated or deleted.
type ProcessedEvent struct {
	EventID       string
	EventType     string
	CorrelationID string
	ProcessedAt   time.Time
}

type Ledger interface {
	Record(ctx context.Context, tx *sql.Tx, event *ProcessedEvent) error
}

type PostgresLedger struct{}

func NewLedger() Ledger {
	return &PostgresLedger{}
}

// Record inserts the ledger row inside the caller's transaction. The unique
// constraint on event_id arbitrates concurrent consumers racing on the same
// event: exactly one insert wins, the rest get ErrDuplicate. There is
// deliberately no existence pre-check, which would be racy.
func (l *PostgresLedger) Record(ctx context.Context, tx *sql.Tx, event *ProcessedEvent) error {
	if event.ProcessedAt.IsZero() {
		event.ProcessedAt = time.Now()
	}

	query := `
		INSERT INTO processed_events (event_id, event_type, correlation_id, processed_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := tx.ExecContext(ctx, query,
		event.EventID, event.EventType, nullableString(event.CorrelationID), event.ProcessedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrDuplicate
		}
		if strings.Contains(err.Error(), "duplicate key") || strings.Contains(err.Error(), "unique constraint") {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to record processed event: %w", err)
	}

	return nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
