// Package billing hands metering records to the durable logging pipeline
// through a Redis list and watches that queue's depth for congestion.
package billing

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/emberhq/cinder/internal/domain"
)

// QueuePublisher pushes billing records onto a Redis list consumed by the
// external log-persistence workers. Publication is fire-and-forget from the
// pipeline's perspective; the caller logs failures and moves on.
type QueuePublisher struct {
	client   *redis.Client
	queueKey string
}

// NewQueuePublisher creates a publisher writing to the named list.
func NewQueuePublisher(client *redis.Client, queueKey string) *QueuePublisher {
	return &QueuePublisher{
		client:   client,
		queueKey: queueKey,
	}
}

// Publish enqueues one billing record as a JSON document.
func (p *QueuePublisher) Publish(ctx context.Context, record *domain.BillingRecord) error {
	if record == nil {
		return fmt.Errorf("billing record cannot be nil")
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode billing record: %w", err)
	}

	if err := p.client.LPush(ctx, p.queueKey, payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue billing record: %w", err)
	}

	return nil
}

// Depth returns the approximate queue depth.
func (p *QueuePublisher) Depth(ctx context.Context) (int64, error) {
	depth, err := p.client.LLen(ctx, p.queueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue depth: %w", err)
	}
	return depth, nil
}
