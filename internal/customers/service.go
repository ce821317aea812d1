package customers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"opsapi/internal/dependency"
	"opsapi/internal/events"
	"opsapi/internal/logger"
	"opsapi/pkg/metrics"
)

type Service interface {
	Create(ctx context.Context, req CreateCustomerRequest) (*Customer, error)
	Get(ctx context.Context, id uuid.UUID) (*Customer, error)
	List(ctx context.Context, limit, offset int) (*ListResponse, error)
	Update(ctx context.Context, id uuid.UUID, req UpdateCustomerRequest) (*Customer, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DependencyCheck(ctx context.Context, id uuid.UUID, baseURL, mode string, delayMs *int) (*dependency.Result, error)
}

type service struct {
	db         *sql.DB
	repo       Repository
	publisher  *events.Publisher
	dependency *dependency.Client
	logger     logger.Logger
}

func NewService(db *sql.DB, repo Repository, publisher *events.Publisher, dep *dependency.Client, log logger.Logger) Service {
	return &service{
		db:         db,
		repo:       repo,
		publisher:  publisher,
		dependency: dep,
		logger:     log,
	}
}

// Create inserts the customer and its CUSTOMER_CREATED outbox event in one
// transaction. Either both rows commit or neither does.
func (s *service) Create(ctx context.Context, req CreateCustomerRequest) (*Customer, error) {
	start := time.Now()

	customer := &Customer{
		ID:    uuid.New(),
		Name:  strings.TrimSpace(req.Name),
		Email: strings.ToLower(strings.TrimSpace(req.Email)),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.repo.Create(ctx, tx, customer); err != nil {
		metrics.CustomerOperationsTotal.WithLabelValues("create", "error").Inc()
		return nil, err
	}

	if err := s.publisher.CustomerCreated(ctx, tx, customer.ID, customer.Name, customer.Email); err != nil {
		metrics.CustomerOperationsTotal.WithLabelValues("create", "error").Inc()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		metrics.CustomerOperationsTotal.WithLabelValues("create", "error").Inc()
		return nil, fmt.Errorf("failed to commit customer create: %w", err)
	}

	metrics.CustomerOperationsTotal.WithLabelValues("create", "ok").Inc()
	metrics.CustomerCreateDuration.Observe(float64(time.Since(start).Milliseconds()))
	s.logger.InfowCtx(ctx, "Customer created",
		"customer_id", customer.ID,
		"email", customer.Email,
	)

	return customer, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*Customer, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) List(ctx context.Context, limit, offset int) (*ListResponse, error) {
	items, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, err
	}

	return &ListResponse{
		Limit:  limit,
		Offset: offset,
		Count:  len(items),
		Items:  items,
	}, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, req UpdateCustomerRequest) (*Customer, error) {
	customer, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	customer.Name = strings.TrimSpace(req.Name)
	customer.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if err := s.repo.Update(ctx, customer); err != nil {
		metrics.CustomerOperationsTotal.WithLabelValues("update", "error").Inc()
		return nil, err
	}

	metrics.CustomerOperationsTotal.WithLabelValues("update", "ok").Inc()
	return customer, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		metrics.CustomerOperationsTotal.WithLabelValues("delete", "error").Inc()
		return err
	}

	metrics.CustomerOperationsTotal.WithLabelValues("delete", "ok").Inc()
	s.logger.InfowCtx(ctx, "Customer deleted", "customer_id", id)
	return nil
}

// DependencyCheck verifies the customer exists, then exercises the guarded
// dependency client. baseURL is the caller-inferred address of this server;
// an explicitly configured base URL takes precedence inside the client.
func (s *service) DependencyCheck(ctx context.Context, id uuid.UUID, baseURL, mode string, delayMs *int) (*dependency.Result, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}

	return s.dependency.Call(ctx, baseURL, mode, delayMs), nil
}
