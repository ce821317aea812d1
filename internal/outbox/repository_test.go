package outbox

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTx(t *testing.T) (*sql.Tx, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)

	return tx, mock, func() { _ = db.Close() }
}

func TestRepositoryInsert(t *testing.T) {
	tx, mock, cleanup := setupTx(t)
	defer cleanup()

	event := &Event{
		AggregateType: "CUSTOMER",
		AggregateID:   uuid.New(),
		EventType:     "CUSTOMER_CREATED",
		Payload:       `{"eventId":"e-1"}`,
		CorrelationID: "corr-1",
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO outbox_events")).
		WithArgs(sqlmock.AnyArg(), "CUSTOMER", event.AggregateID, "CUSTOMER_CREATED",
			event.Payload, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewRepository()
	err := repo.Insert(context.Background(), tx, event)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.False(t, event.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryFetchUnsent(t *testing.T) {
	tx, mock, cleanup := setupTx(t)
	defer cleanup()

	id := uuid.New()
	aggregateID := uuid.New()
	createdAt := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "aggregate_type", "aggregate_id", "event_type", "payload",
		"correlation_id", "created_at", "sent_at", "attempts", "last_error",
	}).AddRow(id, "CUSTOMER", aggregateID, "CUSTOMER_CREATED", `{"eventId":"e-1"}`,
		"corr-1", createdAt, nil, 0, nil)

	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).
		WithArgs(50).
		WillReturnRows(rows)

	repo := NewRepository()
	events, err := repo.FetchUnsent(context.Background(), tx, 50)
	require.NoError(t, err)
	require.Len(t, events, 1)

	assert.Equal(t, id, events[0].ID)
	assert.Equal(t, "corr-1", events[0].CorrelationID)
	assert.Nil(t, events[0].SentAt)
	assert.True(t, events[0].Pending())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryCountPending(t *testing.T) {
	tx, mock, cleanup := setupTx(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM outbox_events WHERE sent_at IS NULL")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	repo := NewRepository()
	count, err := repo.CountPending(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, 7, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryMarkSent(t *testing.T) {
	tx, mock, cleanup := setupTx(t)
	defer cleanup()

	id := uuid.New()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE outbox_events SET sent_at")).
		WithArgs(sqlmock.AnyArg(), id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewRepository()
	require.NoError(t, repo.MarkSent(context.Background(), tx, id))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryMarkSent_AlreadySent(t *testing.T) {
	tx, mock, cleanup := setupTx(t)
	defer cleanup()

	id := uuid.New()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE outbox_events SET sent_at")).
		WithArgs(sqlmock.AnyArg(), id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewRepository()
	err := repo.MarkSent(context.Background(), tx, id)
	assert.Error(t, err)
}

func TestRepositoryMarkFailed(t *testing.T) {
	tx, mock, cleanup := setupTx(t)
	defer cleanup()

	id := uuid.New()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE outbox_events SET attempts = attempts + 1")).
		WithArgs("broker unavailable", id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewRepository()
	err := repo.MarkFailed(context.Background(), tx, id, errors.New("broker unavailable"))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
