package notes

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"opsapi/internal/logger"
	pkgerrors "opsapi/pkg/errors"
)

// TaskChecker is the slice of the task repository this package needs.
type TaskChecker interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

type Service interface {
	Create(ctx context.Context, taskID uuid.UUID, req CreateNoteRequest) (*Note, error)
	ListForTask(ctx context.Context, taskID uuid.UUID) (*ListResponse, error)
}

type service struct {
	db     *sql.DB
	repo   Repository
	tasks  TaskChecker
	logger logger.Logger
}

func NewService(db *sql.DB, repo Repository, tasks TaskChecker, log logger.Logger) Service {
	return &service{
		db:     db,
		repo:   repo,
		tasks:  tasks,
		logger: log,
	}
}

func (s *service) Create(ctx context.Context, taskID uuid.UUID, req CreateNoteRequest) (*Note, error) {
	if err := s.requireTask(ctx, taskID); err != nil {
		return nil, err
	}

	note := &Note{
		ID:     uuid.New(),
		TaskID: taskID,
		Body:   strings.TrimSpace(req.Body),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.repo.Insert(ctx, tx, note); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit note create: %w", err)
	}

	s.logger.InfowCtx(ctx, "Note created",
		"note_id", note.ID,
		"task_id", taskID,
	)

	return note, nil
}

func (s *service) ListForTask(ctx context.Context, taskID uuid.UUID) (*ListResponse, error) {
	if err := s.requireTask(ctx, taskID); err != nil {
		return nil, err
	}

	items, err := s.repo.ListByTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	return &ListResponse{Count: len(items), Items: items}, nil
}

func (s *service) requireTask(ctx context.Context, taskID uuid.UUID) error {
	exists, err := s.tasks.Exists(ctx, taskID)
	if err != nil {
		return err
	}
	if !exists {
		return pkgerrors.ErrNotFound.WithDetail("message", fmt.Sprintf("task %s not found", taskID))
	}
	return nil
}
