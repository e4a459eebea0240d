package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// DefaultTopic is where attendance audit events land.
const DefaultTopic = "gatelog.audit.events"

// KafkaSink drains the outbox table and publishes entries to Kafka. It is
// run as a background loop next to the HTTP server; at-least-once delivery
// is fine because the consumer materializes with ON CONFLICT DO NOTHING.
type KafkaSink struct {
	db       *sql.DB
	client   *kgo.Client
	topic    string
	logger   *slog.Logger
	interval time.Duration
}

func NewKafkaSink(db *sql.DB, client *kgo.Client, topic string, logger *slog.Logger) *KafkaSink {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaSink{db: db, client: client, topic: topic, logger: logger, interval: time.Second}
}

// EnsureTopic creates the audit topic when it does not exist yet.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string) error {
	if topic == "" {
		topic = DefaultTopic
	}
	admin := kadm.NewClient(client)
	resp, err := admin.CreateTopic(ctx, 1, 1, nil, topic)
	if err != nil {
		return fmt.Errorf("create audit topic: %w", err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create audit topic: %w", resp.Err)
	}
	return nil
}

// Run polls the outbox and forwards unpublished entries until ctx is done.
func (s *KafkaSink) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.drain(ctx); err != nil {
				if s.logger != nil {
					s.logger.ErrorContext(ctx, "outbox drain failed", "error", err)
				}
			}
		}
	}
}

type outboxRow struct {
	id      string
	key     string
	payload []byte
}

func (s *KafkaSink) drain(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, aggregate_id, payload
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT 100
	`)
	if err != nil {
		return fmt.Errorf("select outbox: %w", err)
	}
	defer rows.Close()

	var batch []outboxRow
	for rows.Next() {
		var row outboxRow
		if err := rows.Scan(&row.id, &row.key, &row.payload); err != nil {
			return fmt.Errorf("scan outbox row: %w", err)
		}
		batch = append(batch, row)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate outbox: %w", err)
	}

	for _, row := range batch {
		record := &kgo.Record{Topic: s.topic, Key: []byte(row.key), Value: row.payload}
		if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
			return fmt.Errorf("produce audit event: %w", err)
		}
		if _, err := s.db.ExecContext(ctx,
			`UPDATE outbox SET published_at = $1 WHERE id = $2`, time.Now(), row.id); err != nil {
			return fmt.Errorf("mark outbox published: %w", err)
		}
	}
	return nil
}

// DecodeEvent unmarshals a Kafka record payload back into an Event.
func DecodeEvent(value []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(value, &event); err != nil {
		return Event{}, fmt.Errorf("decode audit event: %w", err)
	}
	return event, nil
}
