package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"event-billing/internal/domain/ports/adapter"
)

const retryQueueKey = "subscriptions:pending_create"

var _ adapter.RetryQueue = (*RetryQueue)(nil)

// RetryQueue is a FIFO of subscription creates that failed after a captured
// payment. The reconciler drains it.
type RetryQueue struct {
	client RedisClient
	key    string
}

func NewRetryQueue(client RedisClient) *RetryQueue {
	return &RetryQueue{client: client, key: retryQueueKey}
}

func (q *RetryQueue) Push(ctx context.Context, p adapter.PendingCreate) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return q.client.RPush(ctx, q.key, string(data))
}

// Pop returns nil, nil when the queue is empty.
func (q *RetryQueue) Pop(ctx context.Context) (*adapter.PendingCreate, error) {
	data, err := q.client.LPop(ctx, q.key)
	if IsNil(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var p adapter.PendingCreate
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("decode pending create: %w", err)
	}
	return &p, nil
}

func (q *RetryQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key)
}
