package customers

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsapi/internal/events"
	"opsapi/internal/logger"
	"opsapi/internal/outbox"
	pkgerrors "opsapi/pkg/errors"
	"opsapi/pkg/models"
)

type fakeRepo struct {
	created   []Customer
	byID      map[uuid.UUID]*Customer
	updateErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byID: map[uuid.UUID]*Customer{}}
}

func (r *fakeRepo) Create(ctx context.Context, tx *sql.Tx, customer *Customer) error {
	r.created = append(r.created, *customer)
	r.byID[customer.ID] = customer
	return nil
}

func (r *fakeRepo) GetByID(ctx context.Context, id uuid.UUID) (*Customer, error) {
	customer, ok := r.byID[id]
	if !ok {
		return nil, pkgerrors.ErrNotFound
	}
	copied := *customer
	return &copied, nil
}

func (r *fakeRepo) List(ctx context.Context, limit, offset int) ([]Customer, error) {
	items := []Customer{}
	for _, customer := range r.byID {
		items = append(items, *customer)
	}
	return items, nil
}

func (r *fakeRepo) Update(ctx context.Context, customer *Customer) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.byID[customer.ID] = customer
	return nil
}

func (r *fakeRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := r.byID[id]; !ok {
		return pkgerrors.ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

func (r *fakeRepo) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, ok := r.byID[id]
	return ok, nil
}

type fakeOutbox struct {
	inserted []outbox.Event
	err      error
}

func (o *fakeOutbox) Insert(ctx context.Context, tx *sql.Tx, event *outbox.Event) error {
	if o.err != nil {
		return o.err
	}
	o.inserted = append(o.inserted, *event)
	return nil
}

func (o *fakeOutbox) FetchUnsent(ctx context.Context, tx *sql.Tx, limit int) ([]outbox.Event, error) {
	return nil, nil
}

func (o *fakeOutbox) CountPending(ctx context.Context, tx *sql.Tx) (int, error) {
	return len(o.inserted), nil
}

func (o *fakeOutbox) MarkSent(ctx context.Context, tx *sql.Tx, id uuid.UUID) error { return nil }

func (o *fakeOutbox) MarkFailed(ctx context.Context, tx *sql.Tx, id uuid.UUID, sendErr error) error {
	return nil
}

func newTestService(t *testing.T, repo Repository, box *fakeOutbox) (Service, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	publisher := events.NewPublisher(box, logger.NopLogger())
	svc := NewService(db, repo, publisher, nil, logger.NopLogger())

	return svc, mock, func() { _ = db.Close() }
}

func TestServiceCreate_NormalizesAndPublishes(t *testing.T) {
	repo := newFakeRepo()
	box := &fakeOutbox{}
	svc, mock, cleanup := newTestService(t, repo, box)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectCommit()

	customer, err := svc.Create(context.Background(), CreateCustomerRequest{
		Name:  "  Ada Lovelace  ",
		Email: "  Ada@Example.COM ",
	})
	require.NoError(t, err)

	assert.Equal(t, "Ada Lovelace", customer.Name)
	assert.Equal(t, "ada@example.com", customer.Email)
	assert.NotEqual(t, uuid.Nil, customer.ID)

	// The outbox event rides the same transaction as the customer insert.
	require.Len(t, box.inserted, 1)
	assert.Equal(t, customer.ID, box.inserted[0].AggregateID)

	envelope, err := models.DecodeEnvelope([]byte(box.inserted[0].Payload))
	require.NoError(t, err)
	assert.Equal(t, "CUSTOMER_CREATED", envelope.Type)
	assert.Equal(t, "ada@example.com", envelope.Email)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServiceCreate_PublishFailureRollsBack(t *testing.T) {
	repo := newFakeRepo()
	box := &fakeOutbox{err: pkgerrors.ErrInternal}
	svc, mock, cleanup := newTestService(t, repo, box)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.Create(context.Background(), CreateCustomerRequest{Name: "Ada", Email: "ada@example.com"})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServiceUpdate_Normalizes(t *testing.T) {
	repo := newFakeRepo()
	id := uuid.New()
	repo.byID[id] = &Customer{ID: id, Name: "Old", Email: "old@example.com"}

	svc, _, cleanup := newTestService(t, repo, &fakeOutbox{})
	defer cleanup()

	customer, err := svc.Update(context.Background(), id, UpdateCustomerRequest{
		Name:  " New Name ",
		Email: " NEW@Example.com ",
	})
	require.NoError(t, err)
	assert.Equal(t, "New Name", customer.Name)
	assert.Equal(t, "new@example.com", customer.Email)
}

func TestServiceUpdate_NotFound(t *testing.T) {
	svc, _, cleanup := newTestService(t, newFakeRepo(), &fakeOutbox{})
	defer cleanup()

	_, err := svc.Update(context.Background(), uuid.New(), UpdateCustomerRequest{Name: "x", Email: "x@example.com"})
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestServiceDelete(t *testing.T) {
	repo := newFakeRepo()
	id := uuid.New()
	repo.byID[id] = &Customer{ID: id}

	svc, _, cleanup := newTestService(t, repo, &fakeOutbox{})
	defer cleanup()

	require.NoError(t, svc.Delete(context.Background(), id))
	assert.True(t, pkgerrors.IsNotFound(svc.Delete(context.Background(), id)))
}

func TestServiceList_EchoesWindow(t *testing.T) {
	repo := newFakeRepo()
	id := uuid.New()
	repo.byID[id] = &Customer{ID: id}

	svc, _, cleanup := newTestService(t, repo, &fakeOutbox{})
	defer cleanup()

	response, err := svc.List(context.Background(), 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 20, response.Limit)
	assert.Equal(t, 0, response.Offset)
	assert.Equal(t, 1, response.Count)
}

func TestServiceDependencyCheck_UnknownCustomer(t *testing.T) {
	svc, _, cleanup := newTestService(t, newFakeRepo(), &fakeOutbox{})
	defer cleanup()

	_, err := svc.DependencyCheck(context.Background(), uuid.New(), "http://localhost:1", "ok", nil)
	assert.True(t, pkgerrors.IsNotFound(err))
}
