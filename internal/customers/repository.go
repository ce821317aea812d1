package customers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	pkgerrors "opsapi/pkg/errors"
)

type Repository interface {
	Create(ctx context.Context, tx *sql.Tx, customer *Customer) error
	GetByID(ctx context.Context, id uuid.UUID) (*Customer, error)
	List(ctx context.Context, limit, offset int) ([]Customer, error)
	Update(ctx context.Context, customer *Customer) error
	Delete(ctx context.Context, id uuid.UUID) error
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &PostgresRepository{db: db}
}

// Create runs inside the caller's transaction so the customer row and its
// outbox event commit or roll back together.
func (r *PostgresRepository) Create(ctx context.Context, tx *sql.Tx, customer *Customer) error {
	now := time.Now()
	customer.CreatedAt = now
	customer.UpdatedAt = now

	query := `
		INSERT INTO customers (id, name, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := tx.ExecContext(ctx, query,
		customer.ID, customer.Name, customer.Email,
		customer.CreatedAt, customer.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return pkgerrors.ErrConflict.WithCause(err).WithDetail("message", fmt.Sprintf("customer with email '%s' already exists", customer.Email))
		}
		return fmt.Errorf("failed to create customer: %w", err)
	}

	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Customer, error) {
	query := `
		SELECT id, name, email, created_at, updated_at
		FROM customers
		WHERE id = $1
	`

	var customer Customer
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&customer.ID, &customer.Name, &customer.Email,
		&customer.CreatedAt, &customer.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound.WithDetail("message", fmt.Sprintf("customer %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}

	return &customer, nil
}

func (r *PostgresRepository) List(ctx context.Context, limit, offset int) ([]Customer, error) {
	query := `
		SELECT id, name, email, created_at, updated_at
		FROM customers
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	customers := []Customer{}
	for rows.Next() {
		var customer Customer
		if err := rows.Scan(
			&customer.ID, &customer.Name, &customer.Email,
			&customer.CreatedAt, &customer.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		customers = append(customers, customer)
	}

	return customers, rows.Err()
}

func (r *PostgresRepository) Update(ctx context.Context, customer *Customer) error {
	customer.UpdatedAt = time.Now()

	query := `
		UPDATE customers
		SET name = $2, email = $3, updated_at = $4
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		customer.ID, customer.Name, customer.Email, customer.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return pkgerrors.ErrConflict.WithCause(err).WithDetail("message", fmt.Sprintf("customer with email '%s' already exists", customer.Email))
		}
		return fmt.Errorf("failed to update customer: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return pkgerrors.ErrNotFound.WithDetail("message", fmt.Sprintf("customer %s not found", customer.ID))
	}

	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete customer: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return pkgerrors.ErrNotFound.WithDetail("message", fmt.Sprintf("customer %s not found", id))
	}

	return nil
}

func (r *PostgresRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM customers WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check customer existence: %w", err)
	}
	return exists, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return true
	}
	return strings.Contains(err.Error(), "duplicate key") || strings.Contains(err.Error(), "unique constraint")
}
