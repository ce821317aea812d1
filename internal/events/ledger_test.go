package events

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func beginTx(t *testing.T) (*sql.Tx, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)

	return tx, mock, func() { _ = db.Close() }
}

func TestLedgerRecord(t *testing.T) {
	tx, mock, cleanup := beginTx(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO processed_events")).
		WithArgs("e-1", "CUSTOMER_CREATED", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ledger := NewLedger()
	event := &ProcessedEvent{EventID: "e-1", EventType: "CUSTOMER_CREATED", CorrelationID: "corr-1"}

	require.NoError(t, ledger.Record(context.Background(), tx, event))
	assert.False(t, event.ProcessedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRecord_Duplicate(t *testing.T) {
	tx, mock, cleanup := beginTx(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO processed_events")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "processed_events_pkey"})

	ledger := NewLedger()
	err := ledger.Record(context.Background(), tx, &ProcessedEvent{EventID: "e-1", EventType: "CUSTOMER_CREATED"})

	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestLedgerRecord_DuplicateByMessage(t *testing.T) {
	tx, mock, cleanup := beginTx(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO processed_events")).
		WillReturnError(errors.New(`pq: duplicate key value violates unique constraint "processed_events_pkey"`))

	ledger := NewLedger()
	err := ledger.Record(context.Background(), tx, &ProcessedEvent{EventID: "e-1", EventType: "CUSTOMER_CREATED"})

	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestLedgerRecord_OtherError(t *testing.T) {
	tx, mock, cleanup := beginTx(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO processed_events")).
		WillReturnError(errors.New("connection reset"))

	ledger := NewLedger()
	err := ledger.Record(context.Background(), tx, &ProcessedEvent{EventID: "e-1", EventType: "CUSTOMER_CREATED"})

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicate)
}
