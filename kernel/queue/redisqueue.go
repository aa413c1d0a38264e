package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/taskplan/kernel/plan"
)

// wireEvent is the JSON wire form of plan.ExternalEvent: Context must be
// JSON-serializable when routed through Redis (it is opaque application
// data carried alongside the generator ID, not interpreted by the queue).
type wireEvent struct {
	GeneratorID string          `json:"generator_id"`
	Context     json.RawMessage `json:"context,omitempty"`
}

// RedisQueue is a Redis list-backed Queue, letting the controller and the
// engine run in different processes (cross-node external-event delivery,
// mirroring the teacher's ResultStreamManager pattern).
type RedisQueue struct {
	rdb *redis.Client
	key string
}

// NewRedisQueue constructs a RedisQueue using list key under rdb.
func NewRedisQueue(rdb *redis.Client, key string) *RedisQueue {
	return &RedisQueue{rdb: rdb, key: key}
}

// Push RPUSHes the event onto the list.
func (q *RedisQueue) Push(ctx context.Context, ev plan.ExternalEvent) error {
	ctxJSON, err := json.Marshal(ev.Context)
	if err != nil {
		return fmt.Errorf("marshal external event context: %w", err)
	}
	payload, err := json.Marshal(wireEvent{GeneratorID: string(ev.GeneratorID), Context: ctxJSON})
	if err != nil {
		return fmt.Errorf("marshal external event: %w", err)
	}
	return q.rdb.RPush(ctx, q.key, payload).Err()
}

// Drain LPOPs every currently-queued event without blocking.
func (q *RedisQueue) Drain(ctx context.Context) ([]plan.ExternalEvent, error) {
	var out []plan.ExternalEvent
	for {
		raw, err := q.rdb.LPop(ctx, q.key).Result()
		if errors.Is(err, redis.Nil) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("drain redis queue: %w", err)
		}
		var we wireEvent
		if err := json.Unmarshal([]byte(raw), &we); err != nil {
			return out, fmt.Errorf("unmarshal external event: %w", err)
		}
		var payload any
		if len(we.Context) > 0 {
			if err := json.Unmarshal(we.Context, &payload); err != nil {
				return out, fmt.Errorf("unmarshal external event context: %w", err)
			}
		}
		out = append(out, plan.ExternalEvent{GeneratorID: plan.ID(we.GeneratorID), Context: payload})
	}
}

var _ Queue = (*RedisQueue)(nil)
