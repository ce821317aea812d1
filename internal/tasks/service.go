package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"opsapi/internal/logger"
	pkgerrors "opsapi/pkg/errors"
)

// CustomerChecker is the slice of the customer repository this package needs.
type CustomerChecker interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// NoteAppender writes a note inside the caller's transaction. Task creation
// and status changes leave an audit trail as notes.
type NoteAppender interface {
	Append(ctx context.Context, tx *sql.Tx, taskID uuid.UUID, body string) error
}

type Service interface {
	Create(ctx context.Context, customerID uuid.UUID, req CreateTaskRequest) (*Task, error)
	ListForCustomer(ctx context.Context, customerID uuid.UUID) (*ListResponse, error)
	Summary(ctx context.Context, customerID uuid.UUID) (*SummaryResponse, error)
	UpdateStatus(ctx context.Context, taskID uuid.UUID, req UpdateStatusRequest) (*Task, error)
}

type service struct {
	db        *sql.DB
	repo      Repository
	customers CustomerChecker
	notes     NoteAppender
	logger    logger.Logger
}

func NewService(db *sql.DB, repo Repository, customers CustomerChecker, notes NoteAppender, log logger.Logger) Service {
	return &service{
		db:        db,
		repo:      repo,
		customers: customers,
		notes:     notes,
		logger:    log,
	}
}

// Create inserts the task and its "Task created" note in one transaction.
func (s *service) Create(ctx context.Context, customerID uuid.UUID, req CreateTaskRequest) (*Task, error) {
	if err := s.requireCustomer(ctx, customerID); err != nil {
		return nil, err
	}

	task := &Task{
		ID:         uuid.New(),
		CustomerID: customerID,
		Title:      strings.TrimSpace(req.Title),
		Status:     StatusOpen,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.repo.Insert(ctx, tx, task); err != nil {
		return nil, err
	}

	if req.SimulateFailure {
		return nil, pkgerrors.ErrInternal.WithDetail("message", "simulated failure after task insert")
	}

	if err := s.notes.Append(ctx, tx, task.ID, "Task created"); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit task create: %w", err)
	}

	s.logger.InfowCtx(ctx, "Task created",
		"task_id", task.ID,
		"customer_id", customerID,
	)

	return task, nil
}

func (s *service) ListForCustomer(ctx context.Context, customerID uuid.UUID) (*ListResponse, error) {
	if err := s.requireCustomer(ctx, customerID); err != nil {
		return nil, err
	}

	items, err := s.repo.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	return &ListResponse{Count: len(items), Items: items}, nil
}

func (s *service) Summary(ctx context.Context, customerID uuid.UUID) (*SummaryResponse, error) {
	if err := s.requireCustomer(ctx, customerID); err != nil {
		return nil, err
	}

	items, err := s.repo.Summaries(ctx, customerID)
	if err != nil {
		return nil, err
	}

	counts := map[Status]int{}
	for _, item := range items {
		counts[item.Status]++
	}

	return &SummaryResponse{
		Count:        len(items),
		StatusCounts: counts,
		Items:        items,
	}, nil
}

// UpdateStatus enforces forward-only transitions and writes an audit note in
// the same transaction as the status change.
func (s *service) UpdateStatus(ctx context.Context, taskID uuid.UUID, req UpdateStatusRequest) (*Task, error) {
	task, err := s.repo.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	next := Status(strings.ToUpper(strings.TrimSpace(req.Status)))
	if !next.Valid() {
		return nil, pkgerrors.ErrValidation.WithDetail("message", "invalid status, allowed: OPEN, IN_PROGRESS, DONE")
	}
	if !task.Status.CanTransitionTo(next) {
		return nil, pkgerrors.ErrConflict.WithDetail("message",
			fmt.Sprintf("cannot change status from %s to %s", task.Status, next))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	previous := task.Status
	task.Status = next
	if err := s.repo.UpdateStatus(ctx, tx, task); err != nil {
		return nil, err
	}

	if req.SimulateFailure {
		return nil, pkgerrors.ErrInternal.WithDetail("message", "simulated failure after task status update")
	}

	if err := s.notes.Append(ctx, tx, task.ID, "Status changed to "+string(next)); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit status update: %w", err)
	}

	s.logger.InfowCtx(ctx, "Task status updated",
		"task_id", task.ID,
		"from", previous,
		"to", next,
	)

	return task, nil
}

func (s *service) requireCustomer(ctx context.Context, customerID uuid.UUID) error {
	exists, err := s.customers.Exists(ctx, customerID)
	if err != nil {
		return err
	}
	if !exists {
		return pkgerrors.ErrNotFound.WithDetail("message", fmt.Sprintf("customer %s not found", customerID))
	}
	return nil
}
