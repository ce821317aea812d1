package integration

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"opsapi/internal/customers"
	"opsapi/internal/tasks"
)

func createKafkaTopic(t *testing.T, brokers []string, topic string) {
	t.Helper()

	conn, err := kafka.Dial("tcp", brokers[0])
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	require.NoError(t, err)
}

func createTestCustomer(t *testing.T, db *sql.DB, name, email string) *customers.Customer {
	t.Helper()

	customer := &customers.Customer{
		ID:    uuid.New(),
		Name:  name,
		Email: email,
	}

	tx, err := db.Begin()
	require.NoError(t, err)

	repo := customers.NewRepository(db)
	require.NoError(t, repo.Create(context.Background(), tx, customer))
	require.NoError(t, tx.Commit())

	return customer
}

func createTestTask(t *testing.T, db *sql.DB, customerID uuid.UUID, title string) *tasks.Task {
	t.Helper()

	task := &tasks.Task{
		ID:         uuid.New(),
		CustomerID: customerID,
		Title:      title,
		Status:     tasks.StatusOpen,
	}

	tx, err := db.Begin()
	require.NoError(t, err)

	repo := tasks.NewRepository(db)
	require.NoError(t, repo.Insert(context.Background(), tx, task))
	require.NoError(t, tx.Commit())

	return task
}

type publishedMessage struct {
	Topic string
	Key   string
	Value []byte
}

// memoryProducer stands in for the broker in relay tests that only exercise
// the outbox table.
type memoryProducer struct {
	mu        sync.Mutex
	messages  []publishedMessage
	failKeys  map[string]bool
	published int
}

func newMemoryProducer() *memoryProducer {
	return &memoryProducer{failKeys: map[string]bool{}}
}

func (p *memoryProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failKeys[string(key)] {
		return fmt.Errorf("simulated broker failure for key %s", key)
	}

	p.messages = append(p.messages, publishedMessage{Topic: topic, Key: string(key), Value: value})
	p.published++
	return nil
}

func (p *memoryProducer) Close() error { return nil }

func (p *memoryProducer) Messages() []publishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]publishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}
