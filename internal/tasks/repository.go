package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	pkgerrors "opsapi/pkg/errors"
)

type Repository interface {
	Insert(ctx context.Context, tx *sql.Tx, task *Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*Task, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]Task, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, task *Task) error
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	Summaries(ctx context.Context, customerID uuid.UUID) ([]SummaryItem, error)
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, tx *sql.Tx, task *Task) error {
	now := time.Now()
	task.CreatedAt = now
	task.UpdatedAt = now

	query := `
		INSERT INTO tasks (id, customer_id, title, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := tx.ExecContext(ctx, query,
		task.ID, task.CustomerID, task.Title, task.Status,
		task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}

	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Task, error) {
	query := `
		SELECT id, customer_id, title, status, created_at, updated_at
		FROM tasks
		WHERE id = $1
	`

	var task Task
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&task.ID, &task.CustomerID, &task.Title, &task.Status,
		&task.CreatedAt, &task.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound.WithDetail("message", fmt.Sprintf("task %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return &task, nil
}

func (r *PostgresRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]Task, error) {
	query := `
		SELECT id, customer_id, title, status, created_at, updated_at
		FROM tasks
		WHERE customer_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []Task{}
	for rows.Next() {
		var task Task
		if err := rows.Scan(
			&task.ID, &task.CustomerID, &task.Title, &task.Status,
			&task.CreatedAt, &task.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}

	return tasks, rows.Err()
}

// UpdateStatus runs inside the caller's transaction so the status change and
// its audit note commit together.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, task *Task) error {
	task.UpdatedAt = time.Now()

	query := `
		UPDATE tasks
		SET status = $2, updated_at = $3
		WHERE id = $1
	`

	result, err := tx.ExecContext(ctx, query, task.ID, task.Status, task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return pkgerrors.ErrNotFound.WithDetail("message", fmt.Sprintf("task %s not found", task.ID))
	}

	return nil
}

func (r *PostgresRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM tasks WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check task existence: %w", err)
	}
	return exists, nil
}

// Summaries joins each task with its most recent note in one query.
func (r *PostgresRepository) Summaries(ctx context.Context, customerID uuid.UUID) ([]SummaryItem, error) {
	query := `
		SELECT t.id, t.customer_id, t.title, t.status, t.updated_at, n.body, n.created_at
		FROM tasks t
		LEFT JOIN LATERAL (
			SELECT body, created_at
			FROM notes
			WHERE task_id = t.id
			ORDER BY created_at DESC
			LIMIT 1
		) n ON true
		WHERE t.customer_id = $1
		ORDER BY t.created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list task summaries: %w", err)
	}
	defer rows.Close()

	items := []SummaryItem{}
	for rows.Next() {
		var item SummaryItem
		var noteBody sql.NullString
		var noteCreatedAt sql.NullTime

		if err := rows.Scan(
			&item.ID, &item.CustomerID, &item.Title, &item.Status,
			&item.UpdatedAt, &noteBody, &noteCreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan task summary: %w", err)
		}

		if noteBody.Valid {
			item.LatestNoteSnippet = &noteBody.String
		}
		if noteCreatedAt.Valid {
			item.LatestNoteCreatedAt = &noteCreatedAt.Time
		}

		items = append(items, item)
	}

	return items, rows.Err()
}
