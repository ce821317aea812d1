package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Insert(ctx context.Context, tx *sql.Tx, event *Event) error
	FetchUnsent(ctx context.Context, tx *sql.Tx, limit int) ([]Event, error)
	CountPending(ctx context.Context, tx *sql.Tx) (int, error)
	MarkSent(ctx context.Context, tx *sql.Tx, id uuid.UUID) error
	MarkFailed(ctx context.Context, tx *sql.Tx, id uuid.UUID, sendErr error) error
}

type PostgresRepository struct{}

func NewRepository() Repository {
	return &PostgresRepository{}
}

// Insert appends one event inside the caller's transaction. The caller owns
// the transaction boundary so the event commits or rolls back together with
// the business mutation that produced it.
func (r *PostgresRepository) Insert(ctx context.Context, tx *sql.Tx, event *Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO outbox_events (id, aggregate_type, aggregate_id, event_type, payload, correlation_id, created_at, attempts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0)
	`

	_, err := tx.ExecContext(ctx, query,
		event.ID, event.AggregateType, event.AggregateID,
		event.EventType, event.Payload, nullableString(event.CorrelationID), event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}

	return nil
}

// FetchUnsent returns pending rows oldest first, capped at limit. Rows are
// locked with SKIP LOCKED so two relay instances polling the same table never
// pick up the same row.
func (r *PostgresRepository) FetchUnsent(ctx context.Context, tx *sql.Tx, limit int) ([]Event, error) {
	query := `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, correlation_id, created_at, sent_at, attempts, last_error
		FROM outbox_events
		WHERE sent_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`

	rows, err := tx.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var event Event
		var correlationID, lastError sql.NullString
		var sentAt sql.NullTime
		if err := rows.Scan(
			&event.ID, &event.AggregateType, &event.AggregateID,
			&event.EventType, &event.Payload, &correlationID,
			&event.CreatedAt, &sentAt, &event.Attempts, &lastError,
		); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		event.CorrelationID = correlationID.String
		if sentAt.Valid {
			t := sentAt.Time
			event.SentAt = &t
		}
		if lastError.Valid {
			s := lastError.String
			event.LastError = &s
		}
		events = append(events, event)
	}

	return events, rows.Err()
}

// CountPending returns the full unsent backlog, not just what the current
// batch claimed. Rows locked by other relay instances are counted too.
func (r *PostgresRepository) CountPending(ctx context.Context, tx *sql.Tx) (int, error) {
	var count int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox_events WHERE sent_at IS NULL`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending outbox events: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) MarkSent(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {
	query := `UPDATE outbox_events SET sent_at = $1 WHERE id = $2 AND sent_at IS NULL`

	res, err := tx.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark outbox event sent: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("outbox event %s not found or already sent", id)
	}

	return nil
}

func (r *PostgresRepository) MarkFailed(ctx context.Context, tx *sql.Tx, id uuid.UUID, sendErr error) error {
	query := `UPDATE outbox_events SET attempts = attempts + 1, last_error = $1 WHERE id = $2`

	if _, err := tx.ExecContext(ctx, query, sendErr.Error(), id); err != nil {
		return fmt.Errorf("failed to mark outbox event failed: %w", err)
	}

	return nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
