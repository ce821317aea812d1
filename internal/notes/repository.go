package notes

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Insert(ctx context.Context, tx *sql.Tx, note *Note) error
	Append(ctx context.Context, tx *sql.Tx, taskID uuid.UUID, body string) error
	ListByTask(ctx context.Context, taskID uuid.UUID) ([]Note, error)
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, tx *sql.Tx, note *Note) error {
	note.CreatedAt = time.Now()

	query := `
		INSERT INTO notes (id, task_id, body, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := tx.ExecContext(ctx, query, note.ID, note.TaskID, note.Body, note.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert note: %w", err)
	}

	return nil
}

// Append writes an audit note inside the caller's transaction. The task
// service uses this to record creations and status changes.
func (r *PostgresRepository) Append(ctx context.Context, tx *sql.Tx, taskID uuid.UUID, body string) error {
	return r.Insert(ctx, tx, &Note{
		ID:     uuid.New(),
		TaskID: taskID,
		Body:   body,
	})
}

func (r *PostgresRepository) ListByTask(ctx context.Context, taskID uuid.UUID) ([]Note, error) {
	query := `
		SELECT id, task_id, body, created_at
		FROM notes
		WHERE task_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	notes := []Note{}
	for rows.Next() {
		var note Note
		if err := rows.Scan(&note.ID, &note.TaskID, &note.Body, &note.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, note)
	}

	return notes, rows.Err()
}
