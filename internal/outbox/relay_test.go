package outbox

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsapi/internal/config"
	"opsapi/internal/logger"
	"opsapi/pkg/metrics"
)

type fakeProducer struct {
	published []publishedMessage
	failKeys  map[string]error
}

type publishedMessage struct {
	topic string
	key   string
	value string
}

func (p *fakeProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	if err, ok := p.failKeys[string(key)]; ok {
		return err
	}
	p.published = append(p.published, publishedMessage{topic: topic, key: string(key), value: string(value)})
	return nil
}

func (p *fakeProducer) Close() error { return nil }

type fakeRepository struct {
	pending []Event
	sent    []uuid.UUID
	failed  []uuid.UUID
}

func (r *fakeRepository) Insert(ctx context.Context, tx *sql.Tx, event *Event) error {
	r.pending = append(r.pending, *event)
	return nil
}

func (r *fakeRepository) FetchUnsent(ctx context.Context, tx *sql.Tx, limit int) ([]Event, error) {
	if len(r.pending) > limit {
		return r.pending[:limit], nil
	}
	return r.pending, nil
}

func (r *fakeRepository) CountPending(ctx context.Context, tx *sql.Tx) (int, error) {
	return len(r.pending), nil
}

func (r *fakeRepository) MarkSent(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {
	r.sent = append(r.sent, id)
	return nil
}

func (r *fakeRepository) MarkFailed(ctx context.Context, tx *sql.Tx, id uuid.UUID, sendErr error) error {
	r.failed = append(r.failed, id)
	return nil
}

func newTestRelay(t *testing.T, repo Repository, producer *fakeProducer) (*Relay, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	cfg := config.OutboxConfig{PollInterval: 10 * time.Millisecond, BatchSize: 50}
	relay := NewRelay(db, repo, producer, "customer-events", cfg, logger.NopLogger())

	return relay, mock, func() { _ = db.Close() }
}

func TestRelayPoll_PublishesPendingEvents(t *testing.T) {
	first := Event{ID: uuid.New(), AggregateType: "CUSTOMER", AggregateID: uuid.New(),
		EventType: "CUSTOMER_CREATED", Payload: `{"eventId":"e-1"}`}
	second := Event{ID: uuid.New(), AggregateType: "CUSTOMER", AggregateID: uuid.New(),
		EventType: "CUSTOMER_CREATED", Payload: `{"eventId":"e-2"}`}

	repo := &fakeRepository{pending: []Event{first, second}}
	producer := &fakeProducer{}

	relay, mock, cleanup := newTestRelay(t, repo, producer)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectCommit()

	require.NoError(t, relay.Poll(context.Background()))

	require.Len(t, producer.published, 2)
	assert.Equal(t, "customer-events", producer.published[0].topic)
	assert.Equal(t, first.AggregateID.String(), producer.published[0].key)
	assert.Equal(t, first.Payload, producer.published[0].value)
	assert.Equal(t, []uuid.UUID{first.ID, second.ID}, repo.sent)
	assert.Empty(t, repo.failed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRelayPoll_FailureDoesNotAbortBatch(t *testing.T) {
	broken := Event{ID: uuid.New(), AggregateType: "CUSTOMER", AggregateID: uuid.New(),
		EventType: "CUSTOMER_CREATED", Payload: `{"eventId":"e-1"}`}
	healthy := Event{ID: uuid.New(), AggregateType: "CUSTOMER", AggregateID: uuid.New(),
		EventType: "CUSTOMER_CREATED", Payload: `{"eventId":"e-2"}`}

	repo := &fakeRepository{pending: []Event{broken, healthy}}
	producer := &fakeProducer{
		failKeys: map[string]error{broken.AggregateID.String(): errors.New("broker unavailable")},
	}

	relay, mock, cleanup := newTestRelay(t, repo, producer)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectCommit()

	require.NoError(t, relay.Poll(context.Background()))

	assert.Equal(t, []uuid.UUID{broken.ID}, repo.failed)
	assert.Equal(t, []uuid.UUID{healthy.ID}, repo.sent)
	require.Len(t, producer.published, 1)
	assert.Equal(t, healthy.Payload, producer.published[0].value)
}

func TestRelayPoll_EmptyBatch(t *testing.T) {
	repo := &fakeRepository{}
	producer := &fakeProducer{}

	relay, mock, cleanup := newTestRelay(t, repo, producer)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectCommit()

	require.NoError(t, relay.Poll(context.Background()))
	assert.Empty(t, producer.published)
}

func TestRelayPoll_PendingGaugeReportsBacklogNotBatch(t *testing.T) {
	var backlog []Event
	for i := 0; i < 3; i++ {
		backlog = append(backlog, Event{ID: uuid.New(), AggregateType: "CUSTOMER",
			AggregateID: uuid.New(), EventType: "CUSTOMER_CREATED", Payload: `{}`})
	}

	repo := &fakeRepository{pending: backlog}
	producer := &fakeProducer{}

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cfg := config.OutboxConfig{PollInterval: 10 * time.Millisecond, BatchSize: 2}
	relay := NewRelay(db, repo, producer, "customer-events", cfg, logger.NopLogger())

	mock.ExpectBegin()
	mock.ExpectCommit()

	require.NoError(t, relay.Poll(context.Background()))

	// The gauge carries the full backlog even though the batch was capped.
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.OutboxPendingEvents))
	assert.Len(t, producer.published, 2)
}

func TestRelayRun_StopsOnContextCancel(t *testing.T) {
	repo := &fakeRepository{}
	producer := &fakeProducer{}

	relay, mock, cleanup := newTestRelay(t, repo, producer)
	defer cleanup()

	// Allow any number of poll cycles before cancellation.
	for i := 0; i < 100; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Millisecond)
	defer cancel()

	err := relay.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
