package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsapi/internal/logger"
	"opsapi/pkg/models"
)

type fakeLedger struct {
	recorded []ProcessedEvent
	err      error
}

func (l *fakeLedger) Record(ctx context.Context, tx *sql.Tx, event *ProcessedEvent) error {
	if l.err != nil {
		return l.err
	}
	l.recorded = append(l.recorded, *event)
	return nil
}

func newTestConsumer(t *testing.T, ledger Ledger) (*Consumer, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	consumer := NewConsumer(db, ledger, logger.NopLogger())
	return consumer, mock, func() { _ = db.Close() }
}

func TestHandleMessage_ProcessesNewEvent(t *testing.T) {
	ledger := &fakeLedger{}
	consumer, mock, cleanup := newTestConsumer(t, ledger)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectCommit()

	payload := `{"eventId":"e-1","type":"CUSTOMER_CREATED","customerId":"c-1","name":"Ada","email":"ada@example.com","correlationId":"corr-1","schemaVersion":2,"source":"ops-api"}`

	err := consumer.HandleMessage(context.Background(), []byte("c-1"), []byte(payload))
	require.NoError(t, err)

	require.Len(t, ledger.recorded, 1)
	assert.Equal(t, "e-1", ledger.recorded[0].EventID)
	assert.Equal(t, "CUSTOMER_CREATED", ledger.recorded[0].EventType)
	assert.Equal(t, "corr-1", ledger.recorded[0].CorrelationID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleMessage_DuplicateIsNotAnError(t *testing.T) {
	ledger := &fakeLedger{err: ErrDuplicate}
	consumer, mock, cleanup := newTestConsumer(t, ledger)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectRollback()

	payload := `{"eventId":"e-1","type":"CUSTOMER_CREATED","schemaVersion":1}`

	err := consumer.HandleMessage(context.Background(), []byte("c-1"), []byte(payload))
	assert.NoError(t, err)
}

func TestHandleMessage_MalformedPayloadIsDropped(t *testing.T) {
	ledger := &fakeLedger{}
	consumer, _, cleanup := newTestConsumer(t, ledger)
	defer cleanup()

	// No transaction expectations: a drop never touches the database.
	err := consumer.HandleMessage(context.Background(), nil, []byte(`{not json`))
	assert.NoError(t, err)
	assert.Empty(t, ledger.recorded)
}

func TestHandleMessage_MissingEventIDIsDropped(t *testing.T) {
	ledger := &fakeLedger{}
	consumer, _, cleanup := newTestConsumer(t, ledger)
	defer cleanup()

	err := consumer.HandleMessage(context.Background(), nil, []byte(`{"type":"CUSTOMER_CREATED"}`))
	assert.NoError(t, err)
	assert.Empty(t, ledger.recorded)
}

func TestHandleMessage_LedgerFailureIsRetryable(t *testing.T) {
	ledger := &fakeLedger{err: errors.New("connection reset")}
	consumer, mock, cleanup := newTestConsumer(t, ledger)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectRollback()

	payload := `{"eventId":"e-1","type":"CUSTOMER_CREATED","schemaVersion":1}`

	err := consumer.HandleMessage(context.Background(), nil, []byte(payload))
	assert.Error(t, err)
}

func TestHandleMessage_HighestKnownSchemaVersion(t *testing.T) {
	ledger := &fakeLedger{}
	consumer, mock, cleanup := newTestConsumer(t, ledger)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectCommit()

	payload := fmt.Sprintf(
		`{"eventId":"e-2","type":"CUSTOMER_CREATED","customerId":"c-1","schemaVersion":%d,"source":"ops-api"}`,
		models.MaxKnownSchemaVersion,
	)

	err := consumer.HandleMessage(context.Background(), nil, []byte(payload))
	require.NoError(t, err)
	require.Len(t, ledger.recorded, 1)
	assert.Equal(t, "e-2", ledger.recorded[0].EventID)
}

func TestHandleMessage_FutureSchemaVersion(t *testing.T) {
	ledger := &fakeLedger{}
	consumer, mock, cleanup := newTestConsumer(t, ledger)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectCommit()

	payload := `{"eventId":"e-9","type":"CUSTOMER_CREATED","customerId":"c-1","schemaVersion":5,"unknownField":"ignored"}`

	err := consumer.HandleMessage(context.Background(), nil, []byte(payload))
	require.NoError(t, err)
	require.Len(t, ledger.recorded, 1)
	assert.Equal(t, "e-9", ledger.recorded[0].EventID)
}
