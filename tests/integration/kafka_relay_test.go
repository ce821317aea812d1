package integration

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsapi/internal/broker"
	"opsapi/internal/config"
	"opsapi/internal/events"
	"opsapi/internal/logger"
	"opsapi/internal/outbox"
	"opsapi/pkg/models"
)

func TestOutboxRelay_DeliversThroughKafka(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, true)

	ctx := context.Background()
	topic := "customer-events-it"
	createKafkaTopic(t, infra.KafkaBrokers, topic)

	repo := outbox.NewRepository()
	publisher := events.NewPublisher(repo, logger.NopLogger())
	customer := createTestCustomer(t, infra.PostgresDB, "Ada", "ada@example.com")

	tx, err := infra.PostgresDB.Begin()
	require.NoError(t, err)
	require.NoError(t, publisher.CustomerCreated(ctx, tx, customer.ID, customer.Name, customer.Email))
	require.NoError(t, tx.Commit())

	producer := broker.NewKafkaProducer(config.KafkaConfig{Brokers: infra.KafkaBrokers}, logger.NopLogger())
	defer producer.Close()

	relay := outbox.NewRelay(infra.PostgresDB, repo, producer, topic, relayConfig(), logger.NopLogger())
	require.NoError(t, relay.Poll(ctx))

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     infra.KafkaBrokers,
		Topic:       topic,
		StartOffset: kafka.FirstOffset,
	})
	defer reader.Close()

	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	message, err := reader.ReadMessage(readCtx)
	require.NoError(t, err)
	assert.Equal(t, customer.ID.String(), string(message.Key))

	envelope, err := models.DecodeEnvelope(message.Value)
	require.NoError(t, err)
	assert.Equal(t, "CUSTOMER_CREATED", envelope.Type)
	assert.Equal(t, customer.ID.String(), envelope.CustomerID)

	var sent int
	err = infra.PostgresDB.QueryRow(
		`SELECT COUNT(*) FROM outbox_events WHERE sent_at IS NOT NULL`,
	).Scan(&sent)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}
