package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"opsapi/internal/broker"
	"opsapi/internal/config"
	"opsapi/internal/logger"
	"opsapi/pkg/logging"
	"opsapi/pkg/metrics"
)

// Relay polls the outbox table and forwards pending events to the broker.
// Each poll cycle runs in a single database transaction: fetch unsent rows
// oldest first, publish each keyed by aggregate id, mark it sent. A crash
// between publish and commit leaves the row pending, so it is re-sent on the
// next cycle; the duplicate is absorbed downstream by the idempotent
// consumer. Delivery is at-least-once by design.
type Relay struct {
	db       *sql.DB
	repo     Repository
	producer broker.Producer
	topic    string
	cfg      config.OutboxConfig
	logger   logger.Logger
}

func NewRelay(db *sql.DB, repo Repository, producer broker.Producer, topic string, cfg config.OutboxConfig, log logger.Logger) *Relay {
	return &Relay{
		db:       db,
		repo:     repo,
		producer: producer,
		topic:    topic,
		cfg:      cfg,
		logger:   log,
	}
}

// Run blocks until ctx is canceled, polling on the configured interval.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.InfowCtx(ctx, "Starting outbox relay",
		"topic", r.topic,
		"poll_interval", r.cfg.PollInterval,
		"batch_size", r.cfg.BatchSize,
	)

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.InfowCtx(ctx, "Stopping outbox relay")
			return ctx.Err()
		case <-ticker.C:
			if err := r.Poll(ctx); err != nil {
				r.logger.ErrorwCtx(ctx, "Outbox poll cycle failed",
					"error", err,
				)
			}
		}
	}
}

// Poll runs one relay cycle. Per-row send failures are recorded on the row
// and never abort the batch.
func (r *Relay) Poll(ctx context.Context) error {
	start := time.Now()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin relay transaction: %w", err)
	}
	defer tx.Rollback()

	pending, err := r.repo.CountPending(ctx, tx)
	if err != nil {
		return err
	}
	metrics.OutboxPendingEvents.Set(float64(pending))

	events, err := r.repo.FetchUnsent(ctx, tx, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	if len(events) == 0 {
		return tx.Commit()
	}

	sent := 0
	for i := range events {
		event := &events[i]
		evCtx := logging.WithCorrelationID(logging.WithEventID(ctx, event.ID.String()), event.CorrelationID)

		if err := r.producer.Publish(ctx, r.topic, []byte(event.AggregateID.String()), []byte(event.Payload)); err != nil {
			if markErr := r.repo.MarkFailed(ctx, tx, event.ID, err); markErr != nil {
				return fmt.Errorf("failed to record relay failure for %s: %w", event.ID, markErr)
			}
			metrics.OutboxSendFailuresTotal.WithLabelValues(event.EventType).Inc()
			r.logger.WarnwCtx(evCtx, "Outbox send failed",
				"event_type", event.EventType,
				"aggregate_id", event.AggregateID,
				"attempts", event.Attempts+1,
				"error", err,
			)
			continue
		}

		if err := r.repo.MarkSent(ctx, tx, event.ID); err != nil {
			return fmt.Errorf("failed to mark %s sent: %w", event.ID, err)
		}
		sent++
		metrics.OutboxSentTotal.WithLabelValues(event.EventType).Inc()
		r.logger.InfowCtx(evCtx, "Outbox event sent",
			"event_type", event.EventType,
			"aggregate_id", event.AggregateID,
			"attempts", event.Attempts,
		)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit relay transaction: %w", err)
	}

	metrics.OutboxBatchDuration.Observe(float64(time.Since(start).Milliseconds()))
	r.logger.InfowCtx(ctx, "Outbox batch done",
		"sent", sent,
		"failed", len(events)-sent,
	)

	return nil
}
